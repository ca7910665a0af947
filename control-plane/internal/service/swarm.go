package service

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/pilot-net/fleet-control/control-plane/internal/config"
	"github.com/pilot-net/fleet-control/pkg/types"
)

// =============================================================================
// SWARM FORMATION COORDINATOR
// =============================================================================

// SwarmRequest contains a complete swarm configuration submission.
// Partial updates are not merged: the role list replaces the stored one.
type SwarmRequest struct {
	SwarmID        string
	MissionID      string
	Formation      types.FormationType
	Roles          []types.SwarmRole
	Coordination   types.Coordination
	Constraints    types.Constraints
	IdempotencyKey string
}

// SwarmResult is returned after a swarm configuration is stored.
type SwarmResult struct {
	SwarmID           string                   `json:"swarm_id"`
	MissionID         string                   `json:"mission_id"`
	Formation         types.FormationType      `json:"formation"`
	Version           int64                    `json:"version"`
	CommandsGenerated int                      `json:"commands_generated"`
	Commands          []types.FormationCommand `json:"commands"`
	Metrics           types.SwarmMetrics       `json:"metrics"`
	Timestamp         time.Time                `json:"timestamp"`
}

// CoordinateSwarm validates and stores a swarm configuration and generates
// one formation command per role.
//
// The store checks, inside the upsert transaction, that the mission is active
// and that every drone is assigned to it, and derives the new version from the
// row it locks.
func (s *Service) CoordinateSwarm(ctx context.Context, req SwarmRequest) (*SwarmResult, error) {
	cfg := &types.SwarmConfig{
		SwarmID:      req.SwarmID,
		MissionID:    req.MissionID,
		Formation:    req.Formation,
		Roles:        req.Roles,
		Coordination: req.Coordination,
		Constraints:  req.Constraints,
	}
	if err := cfg.Validate(); err != nil {
		return nil, ValidationError("%v", err)
	}
	if cfg.Coordination.SyncFrequencyHz == 0 {
		cfg.Coordination.SyncFrequencyHz = config.DefaultSyncFrequencyHz
	}
	if cfg.Coordination.Topology == "" {
		cfg.Coordination.Topology = config.DefaultCommTopology
	}

	now := s.now().UTC()
	cfg.UpdatedAt = now

	stored, err := s.store.UpsertSwarmConfig(ctx, cfg, req.IdempotencyKey)
	if err != nil {
		return nil, classify("storing swarm configuration", err)
	}
	s.tel.swarm(ctx, string(stored.Formation))

	commands := GenerateFormationCommands(stored, config.DefaultFormationSpacingM)
	metrics := SummarizeSwarm(stored)

	s.logger.Info("swarm coordinated",
		"swarm_id", stored.SwarmID,
		"mission_id", stored.MissionID,
		"formation", stored.Formation,
		"version", stored.Version,
		"drones", metrics.DroneCount,
	)

	return &SwarmResult{
		SwarmID:           stored.SwarmID,
		MissionID:         stored.MissionID,
		Formation:         stored.Formation,
		Version:           stored.Version,
		CommandsGenerated: len(commands),
		Commands:          commands,
		Metrics:           metrics,
		Timestamp:         now,
	}, nil
}

// GetSwarm returns the current configuration of a swarm.
func (s *Service) GetSwarm(ctx context.Context, swarmID string) (*types.SwarmConfig, error) {
	if swarmID == "" {
		return nil, ValidationError("swarm_id is required")
	}
	cfg, err := s.store.GetSwarmConfig(ctx, swarmID)
	if err != nil {
		return nil, classify("getting swarm configuration", err)
	}
	if cfg == nil {
		return nil, NotFoundError("swarm", swarmID)
	}
	return cfg, nil
}

// GenerateFormationCommands builds one command per role, in role order.
// Roles without an explicit position get the slot offset of their index in
// the formation geometry.
func GenerateFormationCommands(cfg *types.SwarmConfig, spacing float64) []types.FormationCommand {
	n := len(cfg.Roles)
	commands := make([]types.FormationCommand, 0, n)
	for i, r := range cfg.Roles {
		pos := SlotOffset(cfg.Formation, i, n, spacing)
		if r.Position != nil {
			pos = *r.Position
		}
		commands = append(commands, types.FormationCommand{
			CommandID:    uuid.New().String(),
			SwarmID:      cfg.SwarmID,
			MissionID:    cfg.MissionID,
			DroneID:      r.DroneID,
			Role:         r.Role,
			Formation:    cfg.Formation,
			Position:     pos,
			Coordination: cfg.Coordination,
			Constraints:  cfg.Constraints,
			Version:      cfg.Version,
		})
	}
	return commands
}

// SlotOffset returns the default offset of slot i in a formation of n drones.
// Offsets are in meters relative to the formation origin; Y points forward.
func SlotOffset(f types.FormationType, i, n int, spacing float64) types.Offset {
	switch f {
	case types.FormationLine:
		return types.Offset{X: (float64(i) - float64(n-1)/2) * spacing}
	case types.FormationWedge:
		if i == 0 {
			return types.Offset{}
		}
		rank := float64((i + 1) / 2)
		side := 1.0
		if i%2 == 1 {
			side = -1.0
		}
		return types.Offset{X: side * rank * spacing, Y: -rank * spacing}
	case types.FormationCircle:
		if n <= 1 {
			return types.Offset{}
		}
		radius := math.Max(spacing, spacing*float64(n)/(2*math.Pi))
		angle := 2 * math.Pi * float64(i) / float64(n)
		return types.Offset{X: round2(radius * math.Cos(angle)), Y: round2(radius * math.Sin(angle))}
	case types.FormationGrid:
		cols := int(math.Ceil(math.Sqrt(float64(n))))
		if cols == 0 {
			cols = 1
		}
		return types.Offset{X: float64(i%cols) * spacing, Y: -float64(i/cols) * spacing}
	case types.FormationCustom:
		// Custom formations carry explicit positions on every role.
		return types.Offset{}
	}
	return types.Offset{}
}

// SummarizeSwarm computes the metrics reported with a coordinated swarm.
func SummarizeSwarm(cfg *types.SwarmConfig) types.SwarmMetrics {
	m := types.SwarmMetrics{
		DroneCount:          len(cfg.Roles),
		FormationComplexity: cfg.Formation.Complexity(),
		AltitudeRange: types.AltitudeRange{
			Min: cfg.Constraints.MinAltitudeM,
			Max: cfg.Constraints.MaxAltitudeM,
		},
		Version: cfg.Version,
	}
	for _, r := range cfg.Roles {
		if r.Role == types.RoleLeader {
			m.LeaderCount++
		}
	}
	return m
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
