package types

import (
	"fmt"
	"time"
)

// =============================================================================
// SWARM CONFIGURATION
// =============================================================================

// FormationType is the geometric arrangement of a swarm.
type FormationType string

const (
	FormationLine   FormationType = "line"
	FormationWedge  FormationType = "wedge"
	FormationCircle FormationType = "circle"
	FormationGrid   FormationType = "grid"
	FormationCustom FormationType = "custom" // Every role must carry an explicit offset
)

// Valid reports whether f is a known formation.
func (f FormationType) Valid() bool {
	switch f {
	case FormationLine, FormationWedge, FormationCircle, FormationGrid, FormationCustom:
		return true
	}
	return false
}

// Complexity is the coarse classification reported in swarm metrics.
func (f FormationType) Complexity() string {
	if f == FormationCustom {
		return "high"
	}
	return "standard"
}

// SwarmRoleKind is the role a drone plays inside a formation.
type SwarmRoleKind string

const (
	RoleLeader   SwarmRoleKind = "leader"
	RoleFollower SwarmRoleKind = "follower"
	RoleScout    SwarmRoleKind = "scout"
	RoleGuard    SwarmRoleKind = "guard"
)

// Valid reports whether r is a known swarm role.
func (r SwarmRoleKind) Valid() bool {
	switch r {
	case RoleLeader, RoleFollower, RoleScout, RoleGuard:
		return true
	}
	return false
}

// Offset is a position relative to the formation origin, in meters.
type Offset struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// SwarmRole assigns one drone a role and an optional slot offset.
type SwarmRole struct {
	DroneID  string        `json:"drone_id"`
	Role     SwarmRoleKind `json:"role"`
	Position *Offset       `json:"position,omitempty"`
}

// Coordination holds inter-vehicle coordination parameters.
type Coordination struct {
	Topology           string  `json:"topology,omitempty"` // e.g. mesh, star
	SyncFrequencyHz    float64 `json:"sync_frequency_hz,omitempty"`
	CollisionAvoidance bool    `json:"collision_avoidance"`
	AutoFailover       bool    `json:"auto_failover"`
}

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64  `json:"lat"`
	Lon float64  `json:"lon"`
	Alt *float64 `json:"alt,omitempty"`
}

// Constraints are the safety envelope of a swarm.
type Constraints struct {
	MaxSeparationM float64    `json:"max_separation_m,omitempty"`
	MinAltitudeM   float64    `json:"min_altitude_m"`
	MaxAltitudeM   float64    `json:"max_altitude_m"`
	Geofence       []GeoPoint `json:"geofence,omitempty"`
}

// SwarmConfig is a named, versioned coordination configuration.
//
// Every re-submission under the same SwarmID replaces the whole config and
// increments Version by one.
type SwarmConfig struct {
	SwarmID      string        `json:"swarm_id"`
	MissionID    string        `json:"mission_id"`
	Formation    FormationType `json:"formation"`
	Roles        []SwarmRole   `json:"roles"`
	Coordination Coordination  `json:"coordination"`
	Constraints  Constraints   `json:"constraints"`
	Version      int64         `json:"version"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Validate checks required fields and enum values.
// It does not check drone assignments, which need the store.
func (c *SwarmConfig) Validate() error {
	if c.SwarmID == "" {
		return fmt.Errorf("swarm_id is required")
	}
	if c.MissionID == "" {
		return fmt.Errorf("mission_id is required")
	}
	if !c.Formation.Valid() {
		return fmt.Errorf("invalid formation: %q", c.Formation)
	}
	if len(c.Roles) == 0 {
		return fmt.Errorf("roles must not be empty")
	}
	seen := make(map[string]bool, len(c.Roles))
	for i, r := range c.Roles {
		if r.DroneID == "" {
			return fmt.Errorf("roles[%d]: drone_id is required", i)
		}
		if !r.Role.Valid() {
			return fmt.Errorf("roles[%d]: invalid role: %q", i, r.Role)
		}
		if seen[r.DroneID] {
			return fmt.Errorf("roles[%d]: drone %s listed more than once", i, r.DroneID)
		}
		seen[r.DroneID] = true
		if c.Formation == FormationCustom && r.Position == nil {
			return fmt.Errorf("roles[%d]: custom formation requires a position", i)
		}
	}
	if c.Coordination.SyncFrequencyHz < 0 {
		return fmt.Errorf("sync_frequency_hz must not be negative")
	}
	if c.Constraints.MaxSeparationM < 0 {
		return fmt.Errorf("max_separation_m must not be negative")
	}
	if c.Constraints.MaxAltitudeM != 0 && c.Constraints.MinAltitudeM > c.Constraints.MaxAltitudeM {
		return fmt.Errorf("min_altitude_m must not exceed max_altitude_m")
	}
	if n := len(c.Constraints.Geofence); n > 0 && n < 3 {
		return fmt.Errorf("geofence needs at least 3 points, got %d", n)
	}
	return nil
}

// DroneIDs returns the drones referenced by the roles, in role order.
func (c *SwarmConfig) DroneIDs() []string {
	ids := make([]string, len(c.Roles))
	for i, r := range c.Roles {
		ids[i] = r.DroneID
	}
	return ids
}

// FormationCommand is the instruction generated for one drone of a swarm.
// Delivery to the vehicle is the job of a transport collaborator.
type FormationCommand struct {
	CommandID    string        `json:"command_id"`
	SwarmID      string        `json:"swarm_id"`
	MissionID    string        `json:"mission_id"`
	DroneID      string        `json:"drone_id"`
	Role         SwarmRoleKind `json:"role"`
	Formation    FormationType `json:"formation"`
	Position     Offset        `json:"position"`
	Coordination Coordination  `json:"coordination"`
	Constraints  Constraints   `json:"constraints"`
	Version      int64         `json:"version"`
}

// AltitudeRange is the configured altitude envelope.
type AltitudeRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// SwarmMetrics summarizes a coordinated swarm.
type SwarmMetrics struct {
	DroneCount          int           `json:"drone_count"`
	LeaderCount         int           `json:"leader_count"`
	AltitudeRange       AltitudeRange `json:"altitude_range"`
	FormationComplexity string        `json:"formation_complexity"`
	Version             int64         `json:"version"`
}
