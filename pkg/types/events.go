package types

import (
	"encoding/json"
	"time"
)

// =============================================================================
// EVENTS
// =============================================================================

// EventType categorizes a domain event.
type EventType string

const (
	EventMissionControl    EventType = "MISSION_CONTROL"
	EventSwarmIntent       EventType = "SWARM_INTENT"
	EventCriticalDetection EventType = "CRITICAL_DETECTION"
)

// Severity indicates urgency level.
type Severity string

const (
	SeverityCritical Severity = "critical" // Immediate action required
	SeverityWarning  Severity = "warning"  // Attention needed
	SeverityInfo     Severity = "info"     // Informational
)

// Level returns numeric level for comparison (higher = more severe).
func (s Severity) Level() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// Event is an immutable, timestamped record of a domain occurrence.
// Events are appended in the same transaction as the state they describe.
type Event struct {
	ID        string          `json:"id"`
	DroneID   *string         `json:"drone_id,omitempty"`
	MissionID *string         `json:"mission_id,omitempty"`
	Type      EventType       `json:"type"`
	Severity  Severity        `json:"severity"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// EventFilter selects events from the log.
type EventFilter struct {
	MissionID string
	DroneID   string
	Type      EventType
	Severity  Severity // Minimum severity
	Since     *time.Time
	Limit     int
}

// MissionControlPayload is the payload of a MISSION_CONTROL event.
type MissionControlPayload struct {
	Action         MissionAction `json:"action"`
	OldStatus      MissionStatus `json:"old_status"`
	NewStatus      MissionStatus `json:"new_status"`
	OperatorID     string        `json:"operator_id,omitempty"`
	DronesUpdated  int           `json:"drones_updated"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
}

// SwarmIntentPayload is the payload of a SWARM_INTENT event.
type SwarmIntentPayload struct {
	SwarmID        string        `json:"swarm_id"`
	MissionID      string        `json:"mission_id"`
	Formation      FormationType `json:"formation"`
	Role           SwarmRoleKind `json:"role"`
	Version        int64         `json:"version"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
}

// CriticalDetectionPayload is the payload of a CRITICAL_DETECTION event.
type CriticalDetectionPayload struct {
	VideoSegmentID string   `json:"video_segment_id"`
	MissionID      string   `json:"mission_id"`
	Count          int      `json:"count"`
	Classes        []string `json:"classes"`
	MaxConfidence  float64  `json:"max_confidence"`
	Model          string   `json:"model"`
	IdempotencyKey string   `json:"idempotency_key,omitempty"`
}
