package api

import (
	"net/http"

	"github.com/pilot-net/fleet-control/control-plane/internal/service"
	"github.com/pilot-net/fleet-control/pkg/types"
)

// =============================================================================
// MISSION CONTROL
// =============================================================================

type missionControlRequest struct {
	MissionID  string              `json:"mission_id"`
	Action     string              `json:"action"`
	OperatorID string              `json:"operator_id,omitempty"`
	Payload    *types.RulesetPatch `json:"payload,omitempty"`
}

func (s *Server) handleMissionControl(w http.ResponseWriter, r *http.Request) {
	var req missionControlRequest
	if err := s.readJSON(w, r, &req); err != nil {
		s.writeDecodeError(w, err)
		return
	}
	if req.OperatorID == "" {
		req.OperatorID = r.Header.Get("X-Operator-ID")
	}

	result, err := s.svc.ControlMission(r.Context(), service.MissionControlRequest{
		MissionID:      req.MissionID,
		Action:         req.Action,
		OperatorID:     req.OperatorID,
		Payload:        req.Payload,
		IdempotencyKey: r.Header.Get(IdempotencyKeyHeader),
	})
	if err != nil {
		s.writeServiceError(w, "mission control", err)
		return
	}

	s.writeSuccess(w, http.StatusOK, result)
}

func (s *Server) handleGetMission(w http.ResponseWriter, r *http.Request) {
	mission, err := s.svc.GetMission(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, "get mission", err)
		return
	}
	s.writeJSON(w, http.StatusOK, mission)
}

// =============================================================================
// SWARM COORDINATION
// =============================================================================

type swarmCoordinateRequest struct {
	SwarmID      string              `json:"swarm_id"`
	MissionID    string              `json:"mission_id"`
	Formation    types.FormationType `json:"formation"`
	Roles        []types.SwarmRole   `json:"roles"`
	Coordination types.Coordination  `json:"coordination"`
	Constraints  types.Constraints   `json:"constraints"`
}

func (s *Server) handleSwarmCoordinate(w http.ResponseWriter, r *http.Request) {
	var req swarmCoordinateRequest
	if err := s.readJSON(w, r, &req); err != nil {
		s.writeDecodeError(w, err)
		return
	}

	result, err := s.svc.CoordinateSwarm(r.Context(), service.SwarmRequest{
		SwarmID:        req.SwarmID,
		MissionID:      req.MissionID,
		Formation:      req.Formation,
		Roles:          req.Roles,
		Coordination:   req.Coordination,
		Constraints:    req.Constraints,
		IdempotencyKey: r.Header.Get(IdempotencyKeyHeader),
	})
	if err != nil {
		s.writeServiceError(w, "swarm coordination", err)
		return
	}

	s.writeSuccess(w, http.StatusOK, result)
}

func (s *Server) handleGetSwarm(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.svc.GetSwarm(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, "get swarm", err)
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}
