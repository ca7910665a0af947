package service

import (
	"context"
	"time"

	"github.com/pilot-net/fleet-control/pkg/types"
)

// =============================================================================
// MISSION LIFECYCLE CONTROLLER
// =============================================================================

// MissionControlRequest contains parameters for a mission control action.
type MissionControlRequest struct {
	MissionID      string
	Action         string
	OperatorID     string
	Payload        *types.RulesetPatch // Required for update_waypoints
	IdempotencyKey string
}

// MissionControlResult is returned after a successful action.
type MissionControlResult struct {
	MissionID     string              `json:"mission_id"`
	Action        types.MissionAction `json:"action"`
	OldStatus     types.MissionStatus `json:"old_status"`
	NewStatus     types.MissionStatus `json:"new_status"`
	DronesUpdated *int                `json:"drones_updated,omitempty"`
	Ruleset       *types.Ruleset      `json:"ruleset,omitempty"`
	EventID       string              `json:"event_id"`
	Timestamp     time.Time           `json:"timestamp"`
}

// MissionTransition is a guarded status change handed to the store.
//
// The store must lock the mission row, evaluate Action.Next against the
// status it just read, and apply status, timestamps, drone side effects and
// the MISSION_CONTROL event in the same transaction.
type MissionTransition struct {
	MissionID      string
	Action         types.MissionAction
	OperatorID     string
	IdempotencyKey string
	Now            time.Time
}

// TransitionOutcome reports what the store applied.
type TransitionOutcome struct {
	OldStatus     types.MissionStatus
	NewStatus     types.MissionStatus
	DronesUpdated int
	Event         types.Event
}

// RulesetUpdate is an update_waypoints merge handed to the store.
type RulesetUpdate struct {
	MissionID      string
	Patch          types.RulesetPatch
	OperatorID     string
	IdempotencyKey string
	Now            time.Time
}

// RulesetOutcome reports the merged ruleset.
type RulesetOutcome struct {
	Status  types.MissionStatus
	Ruleset types.Ruleset
	Event   types.Event
}

// ControlMission applies an operator action to a mission.
//
// The guard is evaluated by the store against the row it locks, so two
// concurrent launches of the same planning mission yield exactly one success
// and one InvalidState error.
func (s *Service) ControlMission(ctx context.Context, req MissionControlRequest) (*MissionControlResult, error) {
	if req.MissionID == "" {
		return nil, ValidationError("mission_id is required")
	}
	if req.Action == "" {
		return nil, ValidationError("action is required")
	}
	action, err := types.ParseMissionAction(req.Action)
	if err != nil {
		return nil, ValidationError("%v", err)
	}

	now := s.now().UTC()
	if action == types.ActionUpdateWaypoints {
		return s.updateWaypoints(ctx, req, now)
	}

	outcome, err := s.store.TransitionMission(ctx, MissionTransition{
		MissionID:      req.MissionID,
		Action:         action,
		OperatorID:     req.OperatorID,
		IdempotencyKey: req.IdempotencyKey,
		Now:            now,
	})
	if err != nil {
		if KindOf(err) == KindInvalidState {
			s.tel.transition(ctx, string(action), false)
		}
		return nil, classify("applying mission transition", err)
	}
	s.tel.transition(ctx, string(action), true)

	s.logger.Info("mission transitioned",
		"mission_id", req.MissionID,
		"action", action,
		"old_status", outcome.OldStatus,
		"new_status", outcome.NewStatus,
		"drones_updated", outcome.DronesUpdated,
		"operator_id", req.OperatorID,
	)

	result := &MissionControlResult{
		MissionID: req.MissionID,
		Action:    action,
		OldStatus: outcome.OldStatus,
		NewStatus: outcome.NewStatus,
		EventID:   outcome.Event.ID,
		Timestamp: now,
	}
	if action.DroneStatusEffect() != "" {
		n := outcome.DronesUpdated
		result.DronesUpdated = &n
	}
	return result, nil
}

func (s *Service) updateWaypoints(ctx context.Context, req MissionControlRequest, now time.Time) (*MissionControlResult, error) {
	if req.Payload == nil || req.Payload.IsEmpty() {
		return nil, ValidationError("payload with waypoints, formation or speed is required for update_waypoints")
	}
	if err := req.Payload.Validate(); err != nil {
		return nil, ValidationError("invalid payload: %v", err)
	}

	outcome, err := s.store.UpdateMissionRuleset(ctx, RulesetUpdate{
		MissionID:      req.MissionID,
		Patch:          *req.Payload,
		OperatorID:     req.OperatorID,
		IdempotencyKey: req.IdempotencyKey,
		Now:            now,
	})
	if err != nil {
		return nil, classify("updating mission ruleset", err)
	}
	s.tel.transition(ctx, string(types.ActionUpdateWaypoints), true)

	s.logger.Info("mission ruleset updated",
		"mission_id", req.MissionID,
		"waypoints", len(outcome.Ruleset.Waypoints),
		"operator_id", req.OperatorID,
	)

	ruleset := outcome.Ruleset
	return &MissionControlResult{
		MissionID: req.MissionID,
		Action:    types.ActionUpdateWaypoints,
		OldStatus: outcome.Status,
		NewStatus: outcome.Status,
		Ruleset:   &ruleset,
		EventID:   outcome.Event.ID,
		Timestamp: now,
	}, nil
}

// GetMission returns a mission with its drone assignments.
func (s *Service) GetMission(ctx context.Context, id string) (*types.MissionDetail, error) {
	if id == "" {
		return nil, ValidationError("mission_id is required")
	}
	m, err := s.store.GetMission(ctx, id)
	if err != nil {
		return nil, classify("getting mission", err)
	}
	if m == nil {
		return nil, NotFoundError("mission", id)
	}
	return m, nil
}
