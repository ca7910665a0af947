package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pilot-net/fleet-control/control-plane/internal/service"
	"github.com/pilot-net/fleet-control/pkg/types"
)

// =============================================================================
// MISSIONS
// =============================================================================

// GetMission returns a mission with its assignments, or nil if it does not exist.
func (s *Store) GetMission(ctx context.Context, id string) (*types.MissionDetail, error) {
	var m types.MissionDetail
	var ruleset []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, status, ruleset, starts_at, ends_at, created_at, updated_at
		FROM missions WHERE id = $1
	`, id).Scan(&m.ID, &m.Name, &m.Status, &ruleset, &m.StartsAt, &m.EndsAt, &m.CreatedAt, &m.UpdatedAt)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying mission: %w", err)
	}
	if err := json.Unmarshal(ruleset, &m.Ruleset); err != nil {
		return nil, fmt.Errorf("decoding ruleset: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT mission_id, drone_id, role
		FROM drone_assignments
		WHERE mission_id = $1
		ORDER BY drone_id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("querying assignments: %w", err)
	}
	defer rows.Close()

	m.Assignments = []types.DroneAssignment{}
	for rows.Next() {
		var a types.DroneAssignment
		if err := rows.Scan(&a.MissionID, &a.DroneID, &a.Role); err != nil {
			return nil, fmt.Errorf("scanning assignment: %w", err)
		}
		m.Assignments = append(m.Assignments, a)
	}
	return &m, rows.Err()
}

// TransitionMission applies a guarded status change in one transaction.
//
// The mission row is locked FOR UPDATE and the guard is evaluated against the
// status read under that lock, so concurrent actions on one mission serialize
// and at most one of two launches succeeds.
func (s *Store) TransitionMission(ctx context.Context, t service.MissionTransition) (*service.TransitionOutcome, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := lockMission(ctx, tx, t.MissionID, "FOR UPDATE")
	if err != nil {
		return nil, err
	}

	next, ok := t.Action.Next(current)
	if !ok {
		return nil, service.InvalidTransitionError(t.Action, current)
	}

	effect := t.Action.DroneStatusEffect()
	var droneIDs []string
	if effect != "" {
		droneIDs, err = lockAssignedDrones(ctx, tx, t.MissionID)
		if err != nil {
			return nil, err
		}
	}

	if t.Action == types.ActionLaunch && len(droneIDs) > 0 {
		busy, err := dronesInOtherMissions(ctx, tx, t.MissionID, droneIDs)
		if err != nil {
			return nil, err
		}
		if len(busy) > 0 {
			return nil, service.InvalidStateError("drones already assigned to an active mission: %s",
				strings.Join(busy, ", ")).WithContext("drone_ids", busy)
		}
	}

	var startsAt, endsAt *time.Time
	switch t.Action {
	case types.ActionLaunch:
		startsAt = &t.Now
	case types.ActionAbort:
		endsAt = &t.Now
	}

	tag, err := tx.Exec(ctx, `
		UPDATE missions SET
			status = $2,
			starts_at = COALESCE(starts_at, $3),
			ends_at = COALESCE($4, ends_at),
			updated_at = $5
		WHERE id = $1
	`, t.MissionID, next, startsAt, endsAt, t.Now)
	if err != nil {
		return nil, fmt.Errorf("updating mission status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, service.NotFoundError("mission", t.MissionID)
	}

	updated := 0
	if effect != "" && len(droneIDs) > 0 {
		tag, err := tx.Exec(ctx, `
			UPDATE drones SET status = $1, updated_at = $2
			WHERE id = ANY($3)
		`, effect, t.Now, droneIDs)
		if err != nil {
			return nil, fmt.Errorf("updating drone status: %w", err)
		}
		updated = int(tag.RowsAffected())
	}

	event, err := service.NewMissionControlEvent(t.MissionID, types.MissionControlPayload{
		Action:         t.Action,
		OldStatus:      current,
		NewStatus:      next,
		OperatorID:     t.OperatorID,
		DronesUpdated:  updated,
		IdempotencyKey: t.IdempotencyKey,
	}, t.Now)
	if err != nil {
		return nil, fmt.Errorf("building event: %w", err)
	}
	if err := insertEvent(ctx, tx, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transition: %w", err)
	}

	return &service.TransitionOutcome{
		OldStatus:     current,
		NewStatus:     next,
		DronesUpdated: updated,
		Event:         event,
	}, nil
}

// UpdateMissionRuleset merges a waypoint patch into the stored ruleset in one
// transaction. The status is left unchanged.
func (s *Store) UpdateMissionRuleset(ctx context.Context, u service.RulesetUpdate) (*service.RulesetOutcome, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var status types.MissionStatus
	var raw []byte
	err = tx.QueryRow(ctx, `
		SELECT status, ruleset FROM missions WHERE id = $1 FOR UPDATE
	`, u.MissionID).Scan(&status, &raw)
	if isNoRows(err) {
		return nil, service.NotFoundError("mission", u.MissionID)
	}
	if err != nil {
		return nil, fmt.Errorf("locking mission: %w", err)
	}

	var current types.Ruleset
	if err := json.Unmarshal(raw, &current); err != nil {
		return nil, fmt.Errorf("decoding ruleset: %w", err)
	}
	merged := current.Merge(u.Patch)

	data, err := marshalJSON(merged, "ruleset")
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE missions SET ruleset = $2, updated_at = $3 WHERE id = $1
	`, u.MissionID, data, u.Now); err != nil {
		return nil, fmt.Errorf("updating ruleset: %w", err)
	}

	event, err := service.NewMissionControlEvent(u.MissionID, types.MissionControlPayload{
		Action:         types.ActionUpdateWaypoints,
		OldStatus:      status,
		NewStatus:      status,
		OperatorID:     u.OperatorID,
		IdempotencyKey: u.IdempotencyKey,
	}, u.Now)
	if err != nil {
		return nil, fmt.Errorf("building event: %w", err)
	}
	if err := insertEvent(ctx, tx, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing ruleset update: %w", err)
	}
	return &service.RulesetOutcome{Status: status, Ruleset: merged, Event: event}, nil
}

// lockMission reads a mission's status under the given row lock.
func lockMission(ctx context.Context, tx pgx.Tx, id, lock string) (types.MissionStatus, error) {
	var status types.MissionStatus
	err := tx.QueryRow(ctx, `SELECT status FROM missions WHERE id = $1 `+lock, id).Scan(&status)
	if isNoRows(err) {
		return "", service.NotFoundError("mission", id)
	}
	if err != nil {
		return "", fmt.Errorf("locking mission: %w", err)
	}
	return status, nil
}

// lockAssignedDrones locks the drone rows assigned to a mission in id order,
// so two transactions touching overlapping drone sets cannot deadlock.
func lockAssignedDrones(ctx context.Context, tx pgx.Tx, missionID string) ([]string, error) {
	rows, err := tx.Query(ctx, `
		SELECT d.id FROM drones d
		JOIN drone_assignments da ON da.drone_id = d.id
		WHERE da.mission_id = $1
		ORDER BY d.id
		FOR UPDATE OF d
	`, missionID)
	if err != nil {
		return nil, fmt.Errorf("locking assigned drones: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning assigned drones: %w", err)
	}
	return ids, nil
}

// dronesInOtherMissions returns the drones that are assigned to another
// mission which is currently active or paused.
func dronesInOtherMissions(ctx context.Context, tx pgx.Tx, missionID string, droneIDs []string) ([]string, error) {
	rows, err := tx.Query(ctx, `
		SELECT DISTINCT da.drone_id
		FROM drone_assignments da
		JOIN missions m ON m.id = da.mission_id
		WHERE da.drone_id = ANY($2)
		  AND da.mission_id <> $1
		  AND m.status IN ('active', 'paused')
		ORDER BY da.drone_id
	`, missionID, droneIDs)
	if err != nil {
		return nil, fmt.Errorf("checking drone conflicts: %w", err)
	}
	busy, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning drone conflicts: %w", err)
	}
	return busy, nil
}
