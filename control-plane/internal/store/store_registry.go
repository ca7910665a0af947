package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pilot-net/fleet-control/control-plane/internal/service"
	"github.com/pilot-net/fleet-control/pkg/types"
)

// =============================================================================
// REGISTRY
// =============================================================================

// CreateMission inserts a new mission. An existing id is an InvalidState error.
func (s *Store) CreateMission(ctx context.Context, m *types.Mission) error {
	ruleset, err := marshalJSON(m.Ruleset, "ruleset")
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO missions (id, name, status, ruleset, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (id) DO NOTHING
	`, m.ID, m.Name, m.Status, ruleset, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting mission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return service.InvalidStateError("mission already exists: %s", m.ID)
	}
	return nil
}

// UpsertDrone creates a drone or updates its name and status.
func (s *Store) UpsertDrone(ctx context.Context, d *types.Drone) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO drones (id, name, status, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`, d.ID, d.Name, d.Status, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting drone: %w", err)
	}
	return nil
}

// AssignDrone binds a drone to a mission, replacing the role of an existing
// assignment. Aborted and completed missions are rejected.
//
// A drone joining an active or paused mission must not be flying another
// one, and is moved to the mission status in the same transaction.
func (s *Store) AssignDrone(ctx context.Context, a types.DroneAssignment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	status, err := lockMission(ctx, tx, a.MissionID, "FOR UPDATE")
	if err != nil {
		return err
	}
	if status.IsTerminal() {
		return service.InvalidStateError("mission %s is %s and takes no new assignments", a.MissionID, status)
	}
	if err := requireDrone(ctx, tx, a.DroneID); err != nil {
		return err
	}

	if status.IsLive() {
		busy, err := dronesInOtherMissions(ctx, tx, a.MissionID, []string{a.DroneID})
		if err != nil {
			return err
		}
		if len(busy) > 0 {
			return service.InvalidStateError("drone %s is already assigned to an active mission", a.DroneID).
				WithContext("drone_ids", busy)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE drones SET status = $2, updated_at = $3 WHERE id = $1
		`, a.DroneID, types.DroneMission, a.AssignedAt); err != nil {
			return fmt.Errorf("updating drone status: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO drone_assignments (mission_id, drone_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (mission_id, drone_id) DO UPDATE SET role = EXCLUDED.role
	`, a.MissionID, a.DroneID, a.Role); err != nil {
		return fmt.Errorf("inserting assignment: %w", err)
	}
	return tx.Commit(ctx)
}

// CreateVideoSegment registers a segment for an existing drone and mission.
func (s *Store) CreateVideoSegment(ctx context.Context, seg *types.VideoSegment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := lockMission(ctx, tx, seg.MissionID, "FOR SHARE"); err != nil {
		return err
	}
	if err := requireDrone(ctx, tx, seg.DroneID); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO video_segments (id, drone_id, mission_id) VALUES ($1, $2, $3)
	`, seg.ID, seg.DroneID, seg.MissionID)
	if isUniqueViolation(err) {
		return service.InvalidStateError("video segment already exists: %s", seg.ID)
	}
	if err != nil {
		return fmt.Errorf("inserting video segment: %w", err)
	}
	return tx.Commit(ctx)
}

func requireDrone(ctx context.Context, tx pgx.Tx, id string) error {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT true FROM drones WHERE id = $1 FOR UPDATE`, id).Scan(&exists)
	if isNoRows(err) {
		return service.NotFoundError("drone", id)
	}
	if err != nil {
		return fmt.Errorf("querying drone: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
