package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/pilot-net/fleet-control/pkg/types"
)

// =============================================================================
// REGISTRY
// =============================================================================

// CreateMissionRequest registers a mission in the planning state.
type CreateMissionRequest struct {
	ID      string
	Name    string
	Ruleset types.Ruleset
}

// CreateMission registers a new mission. An empty ID is generated.
func (s *Service) CreateMission(ctx context.Context, req CreateMissionRequest) (*types.Mission, error) {
	patch := types.RulesetPatch{Waypoints: req.Ruleset.Waypoints, Speed: req.Ruleset.Speed}
	if err := patch.Validate(); err != nil {
		return nil, ValidationError("invalid ruleset: %v", err)
	}

	now := s.now().UTC()
	m := &types.Mission{
		ID:        req.ID,
		Name:      req.Name,
		Status:    types.MissionPlanning,
		Ruleset:   req.Ruleset,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	if err := s.store.CreateMission(ctx, m); err != nil {
		return nil, classify("creating mission", err)
	}
	s.logger.Info("mission created", "mission_id", m.ID, "name", m.Name)
	return m, nil
}

// RegisterDrone creates or updates a drone in the fleet registry.
func (s *Service) RegisterDrone(ctx context.Context, d types.Drone) (*types.Drone, error) {
	if d.ID == "" {
		return nil, ValidationError("drone id is required")
	}
	if d.Status == "" {
		d.Status = types.DroneOffline
	}
	if !d.Status.Valid() {
		return nil, ValidationError("invalid drone status: %q", d.Status)
	}
	d.UpdatedAt = s.now().UTC()

	if err := s.store.UpsertDrone(ctx, &d); err != nil {
		return nil, classify("registering drone", err)
	}
	s.logger.Info("drone registered", "drone_id", d.ID, "status", d.Status)
	return &d, nil
}

// AssignDrone binds a drone to a mission. Terminal missions take no new
// assignments. A drone joining a launched mission must be free of every other
// live mission and is moved to the mission status.
func (s *Service) AssignDrone(ctx context.Context, a types.DroneAssignment) error {
	if a.MissionID == "" || a.DroneID == "" {
		return ValidationError("mission_id and drone_id are required")
	}
	a.AssignedAt = s.now()
	if err := s.store.AssignDrone(ctx, a); err != nil {
		return classify("assigning drone", err)
	}
	s.logger.Info("drone assigned", "mission_id", a.MissionID, "drone_id", a.DroneID, "role", a.Role)
	return nil
}

// RegisterVideoSegment records which drone and mission a segment belongs to.
func (s *Service) RegisterVideoSegment(ctx context.Context, seg types.VideoSegment) (*types.VideoSegment, error) {
	if seg.DroneID == "" || seg.MissionID == "" {
		return nil, ValidationError("drone_id and mission_id are required")
	}
	if seg.ID == "" {
		seg.ID = uuid.New().String()
	}
	if err := s.store.CreateVideoSegment(ctx, &seg); err != nil {
		return nil, classify("registering video segment", err)
	}
	s.logger.Debug("video segment registered", "video_segment_id", seg.ID, "drone_id", seg.DroneID)
	return &seg, nil
}
