package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pilot-net/fleet-control/pkg/types"
)

// =============================================================================
// EVENT LOG
// =============================================================================

// insertEvent appends an event inside the caller's transaction.
func insertEvent(ctx context.Context, tx pgx.Tx, ev types.Event) error {
	payload := []byte(ev.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO events (id, drone_id, mission_id, type, severity, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ev.ID, ev.DroneID, ev.MissionID, ev.Type, ev.Severity, payload, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting %s event: %w", ev.Type, err)
	}
	return nil
}

// ListEvents returns events matching the filter, newest first.
func (s *Store) ListEvents(ctx context.Context, filter types.EventFilter) ([]types.Event, error) {
	query, args := buildEventQuery(filter)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []types.Event
	for rows.Next() {
		var ev types.Event
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.DroneID, &ev.MissionID, &ev.Type, &ev.Severity, &payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		ev.Payload = payload
		events = append(events, ev)
	}
	return events, rows.Err()
}

// buildEventQuery turns a filter into SQL. Severity is a minimum: filtering on
// warning also returns critical events.
func buildEventQuery(filter types.EventFilter) (string, []any) {
	var conditions []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filter.MissionID != "" {
		add("mission_id = $%d", filter.MissionID)
	}
	if filter.DroneID != "" {
		add("drone_id = $%d", filter.DroneID)
	}
	if filter.Type != "" {
		add("type = $%d", string(filter.Type))
	}
	if filter.Severity != "" {
		add("severity = ANY($%d)", severitiesAtLeast(filter.Severity))
	}
	if filter.Since != nil {
		add("created_at >= $%d", *filter.Since)
	}

	var b strings.Builder
	b.WriteString(`SELECT id, drone_id, mission_id, type, severity, payload, created_at FROM events`)
	if len(conditions) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conditions, " AND "))
	}
	args = append(args, filter.Limit)
	fmt.Fprintf(&b, " ORDER BY created_at DESC, id LIMIT $%d", len(args))
	return b.String(), args
}

func severitiesAtLeast(min types.Severity) []string {
	var out []string
	for _, s := range []types.Severity{types.SeverityInfo, types.SeverityWarning, types.SeverityCritical} {
		if s.Level() >= min.Level() {
			out = append(out, string(s))
		}
	}
	return out
}

// =============================================================================
// KEY-VALUE
// =============================================================================

// putKV upserts a JSON value in the key-value table inside a transaction.
func putKV(ctx context.Context, tx pgx.Tx, key string, value any, at time.Time) error {
	data, err := marshalJSON(value, key)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`, key, data, at)
	return err
}
