// Package types defines the core domain types shared between the control plane,
// the operator CLI and API clients.
//
// # Design Principles
//
// 1. Simplicity: Types represent the domain model directly, no ORM abstractions
// 2. Serialization: All types are JSON-serializable for API transport
// 3. Closed enums: Statuses, actions and formations are string types with Valid() checks
// 4. Validation: Types include Validate() methods for business rule enforcement
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// =============================================================================
// MISSION
// =============================================================================

// Mission is a planned operation assigning drones to a ruleset of waypoints.
//
// StartsAt is set on the first launch only. EndsAt is set on abort (or by the
// external collaborator that completes missions).
type Mission struct {
	ID        string        `json:"id"`
	Name      string        `json:"name,omitempty"`
	Status    MissionStatus `json:"status"`
	Ruleset   Ruleset       `json:"ruleset"`
	StartsAt  *time.Time    `json:"starts_at,omitempty"`
	EndsAt    *time.Time    `json:"ends_at,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// MissionStatus represents the lifecycle state of a mission.
type MissionStatus string

const (
	// MissionPlanning - Initial state, drones assigned but not flying
	MissionPlanning MissionStatus = "planning"
	// MissionActive - Launched, drones executing the ruleset
	MissionActive MissionStatus = "active"
	// MissionPaused - Temporarily halted, can be resumed or aborted
	MissionPaused MissionStatus = "paused"
	// MissionAborted - Terminal, stopped by an operator
	MissionAborted MissionStatus = "aborted"
	// MissionCompleted - Terminal, only set by an external collaborator
	MissionCompleted MissionStatus = "completed"
)

// Valid reports whether s is a known mission status.
func (s MissionStatus) Valid() bool {
	switch s {
	case MissionPlanning, MissionActive, MissionPaused, MissionAborted, MissionCompleted:
		return true
	}
	return false
}

// IsTerminal reports whether no action can move the mission out of s.
func (s MissionStatus) IsTerminal() bool {
	return s == MissionAborted || s == MissionCompleted
}

// IsLive reports whether the mission has launched and not yet ended. A drone
// may belong to at most one live mission.
func (s MissionStatus) IsLive() bool {
	return s == MissionActive || s == MissionPaused
}

// MissionAction is an operator request against a mission.
type MissionAction string

const (
	ActionLaunch          MissionAction = "launch"
	ActionPause           MissionAction = "pause"
	ActionResume          MissionAction = "resume"
	ActionAbort           MissionAction = "abort"
	ActionUpdateWaypoints MissionAction = "update_waypoints"
)

// ParseMissionAction converts a wire string into a MissionAction.
func ParseMissionAction(s string) (MissionAction, error) {
	a := MissionAction(s)
	switch a {
	case ActionLaunch, ActionPause, ActionResume, ActionAbort, ActionUpdateWaypoints:
		return a, nil
	}
	return "", fmt.Errorf("unknown action: %q", s)
}

// Next returns the status a mission in from moves to when the action is applied,
// and whether the action is allowed from that status at all.
//
// update_waypoints is allowed from every status and never changes it.
func (a MissionAction) Next(from MissionStatus) (MissionStatus, bool) {
	switch a {
	case ActionLaunch:
		if from == MissionPlanning {
			return MissionActive, true
		}
	case ActionPause:
		if from == MissionActive {
			return MissionPaused, true
		}
	case ActionResume:
		if from == MissionPaused {
			return MissionActive, true
		}
	case ActionAbort:
		if from == MissionActive || from == MissionPaused {
			return MissionAborted, true
		}
	case ActionUpdateWaypoints:
		return from, true
	}
	return from, false
}

// AllowedFrom lists the statuses the action may be applied from.
func (a MissionAction) AllowedFrom() []MissionStatus {
	switch a {
	case ActionLaunch:
		return []MissionStatus{MissionPlanning}
	case ActionPause:
		return []MissionStatus{MissionActive}
	case ActionResume:
		return []MissionStatus{MissionPaused}
	case ActionAbort:
		return []MissionStatus{MissionActive, MissionPaused}
	case ActionUpdateWaypoints:
		return []MissionStatus{MissionPlanning, MissionActive, MissionPaused, MissionAborted, MissionCompleted}
	}
	return nil
}

// DroneStatusEffect returns the status every assigned drone is moved to as a
// side effect of the action, or "" when the action leaves drones untouched.
func (a MissionAction) DroneStatusEffect() DroneStatus {
	switch a {
	case ActionLaunch:
		return DroneMission
	case ActionAbort:
		return DroneOnline
	}
	return ""
}

// =============================================================================
// RULESET
// =============================================================================

// Waypoint is a single point of a mission route.
type Waypoint struct {
	Lat         float64  `json:"lat"`
	Lon         float64  `json:"lon"`
	Alt         float64  `json:"alt"`
	HoldSeconds *float64 `json:"hold_seconds,omitempty"`
}

// Ruleset is the mission behavior blob: route, formation name and speed.
//
// Keys the control plane does not model are kept in Extra and written back
// unchanged, so planning tools can store their own fields alongside.
type Ruleset struct {
	Waypoints []Waypoint                 `json:"waypoints,omitempty"`
	Formation string                     `json:"formation,omitempty"`
	Speed     *float64                   `json:"speed,omitempty"`
	Extra     map[string]json.RawMessage `json:"-"`
}

var rulesetKnownKeys = map[string]bool{"waypoints": true, "formation": true, "speed": true}

// MarshalJSON writes the modeled fields and every preserved extra key.
func (r Ruleset) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(r.Extra)+3)
	for k, v := range r.Extra {
		out[k] = v
	}
	if r.Waypoints != nil {
		b, err := json.Marshal(r.Waypoints)
		if err != nil {
			return nil, err
		}
		out["waypoints"] = b
	}
	if r.Formation != "" {
		b, err := json.Marshal(r.Formation)
		if err != nil {
			return nil, err
		}
		out["formation"] = b
	}
	if r.Speed != nil {
		b, err := json.Marshal(*r.Speed)
		if err != nil {
			return nil, err
		}
		out["speed"] = b
	}

	// Stable key order keeps stored blobs byte-identical across rewrites.
	keys := make([]string, 0, len(out))
	for k := range out {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(out[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the modeled fields and keeps the rest in Extra.
func (r *Ruleset) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Ruleset{}
	if v, ok := raw["waypoints"]; ok && string(v) != "null" {
		if err := json.Unmarshal(v, &r.Waypoints); err != nil {
			return fmt.Errorf("ruleset waypoints: %w", err)
		}
	}
	if v, ok := raw["formation"]; ok && string(v) != "null" {
		if err := json.Unmarshal(v, &r.Formation); err != nil {
			return fmt.Errorf("ruleset formation: %w", err)
		}
	}
	if v, ok := raw["speed"]; ok && string(v) != "null" {
		var speed float64
		if err := json.Unmarshal(v, &speed); err != nil {
			return fmt.Errorf("ruleset speed: %w", err)
		}
		r.Speed = &speed
	}
	for k, v := range raw {
		if rulesetKnownKeys[k] {
			continue
		}
		if r.Extra == nil {
			r.Extra = make(map[string]json.RawMessage)
		}
		r.Extra[k] = v
	}
	return nil
}

// RulesetPatch carries the fields of an update_waypoints payload.
// A nil field means "not present" and leaves the stored value alone; an empty
// non-nil Waypoints clears the route.
type RulesetPatch struct {
	Waypoints []Waypoint `json:"waypoints"`
	Formation *string    `json:"formation,omitempty"`
	Speed     *float64   `json:"speed,omitempty"`
}

// IsEmpty reports whether the patch would change nothing.
func (p RulesetPatch) IsEmpty() bool {
	return p.Waypoints == nil && p.Formation == nil && p.Speed == nil
}

// Validate checks the patch values.
func (p RulesetPatch) Validate() error {
	if p.Speed != nil && *p.Speed < 0 {
		return fmt.Errorf("speed must not be negative")
	}
	for i, wp := range p.Waypoints {
		if wp.Lat < -90 || wp.Lat > 90 {
			return fmt.Errorf("waypoints[%d]: lat out of range", i)
		}
		if wp.Lon < -180 || wp.Lon > 180 {
			return fmt.Errorf("waypoints[%d]: lon out of range", i)
		}
	}
	return nil
}

// Merge returns a copy of r with the fields present in p replaced.
// Unrelated fields, including preserved extra keys, are carried over unchanged.
func (r Ruleset) Merge(p RulesetPatch) Ruleset {
	out := Ruleset{
		Waypoints: r.Waypoints,
		Formation: r.Formation,
		Speed:     r.Speed,
	}
	if len(r.Extra) > 0 {
		out.Extra = make(map[string]json.RawMessage, len(r.Extra))
		for k, v := range r.Extra {
			out.Extra[k] = v
		}
	}
	if p.Waypoints != nil {
		out.Waypoints = make([]Waypoint, len(p.Waypoints))
		copy(out.Waypoints, p.Waypoints)
	}
	if p.Formation != nil {
		out.Formation = *p.Formation
	}
	if p.Speed != nil {
		speed := *p.Speed
		out.Speed = &speed
	}
	return out
}

// =============================================================================
// DRONES & ASSIGNMENTS
// =============================================================================

// DroneStatus is the fleet-registry status of a vehicle.
type DroneStatus string

const (
	DroneOffline DroneStatus = "offline"
	DroneOnline  DroneStatus = "online"
	DroneMission DroneStatus = "mission"
	DroneError   DroneStatus = "error"
	DroneArmed   DroneStatus = "armed"
	DroneFlying  DroneStatus = "flying"
)

// Valid reports whether s is a known drone status.
func (s DroneStatus) Valid() bool {
	switch s {
	case DroneOffline, DroneOnline, DroneMission, DroneError, DroneArmed, DroneFlying:
		return true
	}
	return false
}

// Drone is a vehicle in the fleet registry.
type Drone struct {
	ID        string      `json:"id"`
	Name      string      `json:"name,omitempty"`
	Status    DroneStatus `json:"status"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// DroneAssignment binds a drone to a mission with a free-text operational role.
type DroneAssignment struct {
	MissionID string `json:"mission_id"`
	DroneID   string `json:"drone_id"`
	Role      string `json:"role"`

	AssignedAt time.Time `json:"-"`
}

// MissionDetail is a mission together with its assigned drones.
type MissionDetail struct {
	Mission
	Assignments []DroneAssignment `json:"assignments"`
}
