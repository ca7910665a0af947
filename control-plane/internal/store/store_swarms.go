package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/pilot-net/fleet-control/control-plane/internal/service"
	"github.com/pilot-net/fleet-control/pkg/types"
)

// =============================================================================
// SWARMS
// =============================================================================

// GetSwarmConfig returns the current config of a swarm, or nil if none exists.
func (s *Store) GetSwarmConfig(ctx context.Context, swarmID string) (*types.SwarmConfig, error) {
	cfg, err := scanSwarmConfig(s.pool.QueryRow(ctx, `
		SELECT swarm_id, mission_id, formation, roles, coordination, constraints, version, created_at, updated_at
		FROM swarm_configs WHERE swarm_id = $1
	`, swarmID))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying swarm config: %w", err)
	}
	return cfg, nil
}

// UpsertSwarmConfig stores a complete swarm config and emits one SWARM_INTENT
// event per role, all in one transaction.
//
// The mission row is locked FOR SHARE so it cannot leave the active state
// while the config is written. The new version is computed by the upsert
// itself from the stored row, so concurrent submissions to one swarm_id each
// get a distinct version.
func (s *Store) UpsertSwarmConfig(ctx context.Context, cfg *types.SwarmConfig, idempotencyKey string) (*types.SwarmConfig, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	status, err := lockMission(ctx, tx, cfg.MissionID, "FOR SHARE")
	if err != nil {
		return nil, err
	}
	if status != types.MissionActive {
		return nil, service.InvalidStateError("mission %s is %s, swarm coordination requires an active mission",
			cfg.MissionID, status).WithContext("current_status", status)
	}

	missing, err := unassignedDrones(ctx, tx, cfg.MissionID, cfg.DroneIDs())
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, service.InvalidStateError("drones not assigned to mission %s: %s",
			cfg.MissionID, strings.Join(missing, ", ")).WithContext("drone_ids", missing)
	}

	roles, err := marshalJSON(cfg.Roles, "roles")
	if err != nil {
		return nil, err
	}
	coordination, err := marshalJSON(cfg.Coordination, "coordination")
	if err != nil {
		return nil, err
	}
	constraints, err := marshalJSON(cfg.Constraints, "constraints")
	if err != nil {
		return nil, err
	}

	stored, err := scanSwarmConfig(tx.QueryRow(ctx, `
		INSERT INTO swarm_configs (swarm_id, mission_id, formation, roles, coordination, constraints, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $7)
		ON CONFLICT (swarm_id) DO UPDATE SET
			mission_id = EXCLUDED.mission_id,
			formation = EXCLUDED.formation,
			roles = EXCLUDED.roles,
			coordination = EXCLUDED.coordination,
			constraints = EXCLUDED.constraints,
			version = swarm_configs.version + 1,
			updated_at = EXCLUDED.updated_at
		RETURNING swarm_id, mission_id, formation, roles, coordination, constraints, version, created_at, updated_at
	`, cfg.SwarmID, cfg.MissionID, cfg.Formation, roles, coordination, constraints, cfg.UpdatedAt))
	if err != nil {
		return nil, fmt.Errorf("upserting swarm config: %w", err)
	}

	events, err := service.NewSwarmIntentEvents(stored, idempotencyKey, cfg.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("building events: %w", err)
	}
	for _, ev := range events {
		if err := insertEvent(ctx, tx, ev); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing swarm config: %w", err)
	}
	return stored, nil
}

// unassignedDrones returns the ids in droneIDs that have no assignment to the
// mission, in input order.
func unassignedDrones(ctx context.Context, tx pgx.Tx, missionID string, droneIDs []string) ([]string, error) {
	rows, err := tx.Query(ctx, `
		SELECT drone_id FROM drone_assignments
		WHERE mission_id = $1 AND drone_id = ANY($2)
	`, missionID, droneIDs)
	if err != nil {
		return nil, fmt.Errorf("querying assignments: %w", err)
	}
	assigned, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning assignments: %w", err)
	}

	set := make(map[string]bool, len(assigned))
	for _, id := range assigned {
		set[id] = true
	}
	var missing []string
	for _, id := range droneIDs {
		if !set[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func scanSwarmConfig(row pgx.Row) (*types.SwarmConfig, error) {
	var cfg types.SwarmConfig
	var roles, coordination, constraints []byte
	if err := row.Scan(&cfg.SwarmID, &cfg.MissionID, &cfg.Formation, &roles, &coordination, &constraints,
		&cfg.Version, &cfg.CreatedAt, &cfg.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(roles, &cfg.Roles); err != nil {
		return nil, fmt.Errorf("decoding roles: %w", err)
	}
	if err := json.Unmarshal(coordination, &cfg.Coordination); err != nil {
		return nil, fmt.Errorf("decoding coordination: %w", err)
	}
	if err := json.Unmarshal(constraints, &cfg.Constraints); err != nil {
		return nil, fmt.Errorf("decoding constraints: %w", err)
	}
	return &cfg, nil
}
