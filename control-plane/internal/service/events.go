package service

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/pilot-net/fleet-control/pkg/types"
)

// Event constructors shared by every Store implementation, so the shape of
// the log does not depend on which backend wrote it.

// NewMissionControlEvent builds the MISSION_CONTROL event for a successful action.
// Abort is logged as a warning, everything else as info.
func NewMissionControlEvent(missionID string, payload types.MissionControlPayload, at time.Time) (types.Event, error) {
	severity := types.SeverityInfo
	if payload.Action == types.ActionAbort {
		severity = types.SeverityWarning
	}
	return newEvent(types.EventMissionControl, severity, nil, &missionID, payload, at)
}

// NewSwarmIntentEvents builds one SWARM_INTENT event per role, in role order.
func NewSwarmIntentEvents(cfg *types.SwarmConfig, idempotencyKey string, at time.Time) ([]types.Event, error) {
	events := make([]types.Event, 0, len(cfg.Roles))
	missionID := cfg.MissionID
	for _, r := range cfg.Roles {
		droneID := r.DroneID
		ev, err := newEvent(types.EventSwarmIntent, types.SeverityInfo, &droneID, &missionID, types.SwarmIntentPayload{
			SwarmID:        cfg.SwarmID,
			MissionID:      cfg.MissionID,
			Formation:      cfg.Formation,
			Role:           r.Role,
			Version:        cfg.Version,
			IdempotencyKey: idempotencyKey,
		}, at)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// NewCriticalDetectionEvent builds the CRITICAL_DETECTION event for a batch.
func NewCriticalDetectionEvent(segment *types.VideoSegment, payload types.CriticalDetectionPayload, at time.Time) (types.Event, error) {
	var droneID *string
	if segment.DroneID != "" {
		id := segment.DroneID
		droneID = &id
	}
	missionID := segment.MissionID
	return newEvent(types.EventCriticalDetection, types.SeverityCritical, droneID, &missionID, payload, at)
}

func newEvent(typ types.EventType, severity types.Severity, droneID, missionID *string, payload any, at time.Time) (types.Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return types.Event{}, err
	}
	return types.Event{
		ID:        uuid.New().String(),
		DroneID:   droneID,
		MissionID: missionID,
		Type:      typ,
		Severity:  severity,
		Payload:   data,
		CreatedAt: at.UTC(),
	}, nil
}
