// Package testutil provides testing utilities and fixtures for the control plane.
//
// This package contains:
//   - Test helper functions (loggers, pointers, clocks)
//   - Fixture factories for domain types (missions, drones, swarms, detections)
//   - MemStore, an in-memory service.Store with the same guards as the database
//
// # Usage
//
// Fixtures use functional options for customization:
//
//	mission := testutil.FixtureMission()
//	mission := testutil.FixtureMission(func(m *types.Mission) {
//		m.Status = types.MissionActive
//	})
package testutil

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/pilot-net/fleet-control/pkg/types"
)

// NewTestLogger returns a logger that discards all output.
// Use for tests where logging output is not needed.
func NewTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewVerboseTestLogger returns a debug logger that writes to stderr.
// Use for debugging test failures.
func NewVerboseTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// =============================================================================
// MISSION FIXTURES
// =============================================================================

// FixtureMission creates a planning mission with a two-waypoint route.
func FixtureMission(overrides ...func(*types.Mission)) *types.Mission {
	now := time.Now().UTC()
	mission := &types.Mission{
		ID:     "mission-" + uuid.New().String()[:8],
		Name:   "survey north ridge",
		Status: types.MissionPlanning,
		Ruleset: types.Ruleset{
			Waypoints: []types.Waypoint{
				{Lat: 47.6205, Lon: -122.3493, Alt: 120},
				{Lat: 47.6255, Lon: -122.3401, Alt: 120},
			},
			Formation: "line",
			Speed:     Ptr(12.0),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, override := range overrides {
		override(mission)
	}

	return mission
}

// FixtureMissionActive creates a mission that has been launched.
func FixtureMissionActive(overrides ...func(*types.Mission)) *types.Mission {
	return FixtureMission(append([]func(*types.Mission){
		func(m *types.Mission) {
			m.Status = types.MissionActive
			m.StartsAt = TimeAgoPtr(10 * time.Minute)
		},
	}, overrides...)...)
}

// =============================================================================
// DRONE FIXTURES
// =============================================================================

// FixtureDrone creates an online drone.
func FixtureDrone(overrides ...func(*types.Drone)) *types.Drone {
	drone := &types.Drone{
		ID:        "drone-" + uuid.New().String()[:8],
		Name:      "quad",
		Status:    types.DroneOnline,
		UpdatedAt: time.Now().UTC(),
	}

	for _, override := range overrides {
		override(drone)
	}

	return drone
}

// =============================================================================
// SWARM FIXTURES
// =============================================================================

// FixtureSwarmConfig creates a wedge swarm of one leader and the given followers.
func FixtureSwarmConfig(missionID, leaderID string, followerIDs []string, overrides ...func(*types.SwarmConfig)) *types.SwarmConfig {
	roles := []types.SwarmRole{{DroneID: leaderID, Role: types.RoleLeader}}
	for _, id := range followerIDs {
		roles = append(roles, types.SwarmRole{DroneID: id, Role: types.RoleFollower})
	}

	cfg := &types.SwarmConfig{
		SwarmID:   "swarm-" + uuid.New().String()[:8],
		MissionID: missionID,
		Formation: types.FormationWedge,
		Roles:     roles,
		Coordination: types.Coordination{
			Topology:           "mesh",
			SyncFrequencyHz:    10,
			CollisionAvoidance: true,
			AutoFailover:       true,
		},
		Constraints: types.Constraints{
			MaxSeparationM: 50,
			MinAltitudeM:   30,
			MaxAltitudeM:   120,
		},
	}

	for _, override := range overrides {
		override(cfg)
	}

	return cfg
}

// =============================================================================
// DETECTION FIXTURES
// =============================================================================

// FixtureVideoSegment creates a segment recorded by droneID during missionID.
func FixtureVideoSegment(droneID, missionID string, overrides ...func(*types.VideoSegment)) *types.VideoSegment {
	seg := &types.VideoSegment{
		ID:        "segment-" + uuid.New().String()[:8],
		DroneID:   droneID,
		MissionID: missionID,
	}

	for _, override := range overrides {
		override(seg)
	}

	return seg
}

// FixtureDetection creates a detection of class with the given confidence.
func FixtureDetection(class string, confidence float64, overrides ...func(*types.Detection)) types.Detection {
	d := types.Detection{
		Timestamp:  time.Now().UTC(),
		Class:      class,
		Confidence: confidence,
		BBox:       types.BBox{X: 0.1, Y: 0.2, W: 0.3, H: 0.4},
	}

	for _, override := range overrides {
		override(&d)
	}

	return d
}

// FixtureModel returns a detector model identity.
func FixtureModel(overrides ...func(*types.ModelInfo)) types.ModelInfo {
	m := types.ModelInfo{Name: "yolov8", Version: "1.2.0", Task: "detection"}

	for _, override := range overrides {
		override(&m)
	}

	return m
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Ptr returns a pointer to the given value.
// Useful for setting optional fields in fixtures.
func Ptr[T any](v T) *T {
	return &v
}

// TimeAgo returns a time in the past by the given duration.
func TimeAgo(d time.Duration) time.Time {
	return time.Now().Add(-d)
}

// TimeAgoPtr returns a pointer to a time in the past.
func TimeAgoPtr(d time.Duration) *time.Time {
	t := time.Now().Add(-d)
	return &t
}

// FixedClock returns a clock that always reports t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
