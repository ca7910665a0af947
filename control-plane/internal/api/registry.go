package api

import (
	"net/http"

	"github.com/pilot-net/fleet-control/control-plane/internal/service"
	"github.com/pilot-net/fleet-control/pkg/types"
)

// =============================================================================
// REGISTRY
// =============================================================================

type createMissionRequest struct {
	ID      string        `json:"id,omitempty"`
	Name    string        `json:"name"`
	Ruleset types.Ruleset `json:"ruleset"`
}

func (s *Server) handleCreateMission(w http.ResponseWriter, r *http.Request) {
	var req createMissionRequest
	if err := s.readJSON(w, r, &req); err != nil {
		s.writeDecodeError(w, err)
		return
	}

	mission, err := s.svc.CreateMission(r.Context(), service.CreateMissionRequest{
		ID:      req.ID,
		Name:    req.Name,
		Ruleset: req.Ruleset,
	})
	if err != nil {
		s.writeServiceError(w, "create mission", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, mission)
}

type registerDroneRequest struct {
	Name   string            `json:"name"`
	Status types.DroneStatus `json:"status,omitempty"`
}

func (s *Server) handleRegisterDrone(w http.ResponseWriter, r *http.Request) {
	var req registerDroneRequest
	if err := s.readJSON(w, r, &req); err != nil {
		s.writeDecodeError(w, err)
		return
	}

	drone, err := s.svc.RegisterDrone(r.Context(), types.Drone{
		ID:     r.PathValue("id"),
		Name:   req.Name,
		Status: req.Status,
	})
	if err != nil {
		s.writeServiceError(w, "register drone", err)
		return
	}
	s.writeJSON(w, http.StatusOK, drone)
}

type assignDroneRequest struct {
	DroneID string `json:"drone_id"`
	Role    string `json:"role"`
}

func (s *Server) handleAssignDrone(w http.ResponseWriter, r *http.Request) {
	var req assignDroneRequest
	if err := s.readJSON(w, r, &req); err != nil {
		s.writeDecodeError(w, err)
		return
	}

	a := types.DroneAssignment{
		MissionID: r.PathValue("id"),
		DroneID:   req.DroneID,
		Role:      req.Role,
	}
	if err := s.svc.AssignDrone(r.Context(), a); err != nil {
		s.writeServiceError(w, "assign drone", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleRegisterVideoSegment(w http.ResponseWriter, r *http.Request) {
	var req types.VideoSegment
	if err := s.readJSON(w, r, &req); err != nil {
		s.writeDecodeError(w, err)
		return
	}

	seg, err := s.svc.RegisterVideoSegment(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, "register video segment", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, seg)
}
