package store

import (
	"context"
	"fmt"

	"github.com/pilot-net/fleet-control/pkg/types"
)

// GetDatabaseSize returns the total size of the database in bytes.
func (s *Store) GetDatabaseSize(ctx context.Context) (int64, error) {
	var size int64
	err := s.pool.QueryRow(ctx, `
		SELECT pg_database_size(current_database())
	`).Scan(&size)
	return size, err
}

// GetTableStats returns size and estimated row count for every user table,
// largest first.
func (s *Store) GetTableStats(ctx context.Context) ([]types.TableStats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT
			relname::text,
			n_live_tup::bigint,
			pg_total_relation_size(relid)::bigint AS size_bytes
		FROM pg_stat_user_tables
		WHERE schemaname = 'public'
		ORDER BY size_bytes DESC, relname
	`)
	if err != nil {
		return nil, fmt.Errorf("querying table stats: %w", err)
	}
	defer rows.Close()

	var stats []types.TableStats
	for rows.Next() {
		var ts types.TableStats
		if err := rows.Scan(&ts.Name, &ts.Rows, &ts.SizeBytes); err != nil {
			return nil, fmt.Errorf("scanning table stats: %w", err)
		}
		ts.SizeFormatted = FormatBytes(ts.SizeBytes)
		stats = append(stats, ts)
	}
	return stats, rows.Err()
}

// GetPoolStats returns the current connection pool statistics.
func (s *Store) GetPoolStats() types.PoolStats {
	stat := s.pool.Stat()
	return types.PoolStats{
		TotalConnections:    stat.TotalConns(),
		IdleConnections:     stat.IdleConns(),
		AcquiredConnections: stat.AcquiredConns(),
		MaxConnections:      stat.MaxConns(),
	}
}

// FormatBytes converts bytes to a human-readable string.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.1f TB", float64(bytes)/TB)
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
