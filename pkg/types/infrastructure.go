package types

import "time"

// InfrastructureHealth contains all infrastructure health metrics.
type InfrastructureHealth struct {
	Timestamp    time.Time          `json:"timestamp"`
	ControlPlane ControlPlaneHealth `json:"control_plane"`
	Database     DatabaseHealth     `json:"database"`
	Cache        CacheHealth        `json:"cache"`
}

// ControlPlaneHealth contains control plane runtime metrics.
type ControlPlaneHealth struct {
	Status        string  `json:"status"` // healthy, degraded, down
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryMB      float64 `json:"memory_mb"`
	MemoryPercent float64 `json:"memory_percent"`
	Goroutines    int     `json:"goroutines"`
	UptimeSeconds int64   `json:"uptime_seconds"`
}

// DatabaseHealth contains database connection and table metrics.
type DatabaseHealth struct {
	Status            string       `json:"status"`
	Error             string       `json:"error,omitempty"`
	SizeBytes         int64        `json:"size_bytes"`
	SizeFormatted     string       `json:"size_formatted"`
	SchemaVersion     int          `json:"schema_version"`
	PendingMigrations []string     `json:"pending_migrations,omitempty"`
	Pool              PoolStats    `json:"pool"`
	Tables            []TableStats `json:"tables"`
}

// PoolStats contains pgxpool connection pool statistics.
type PoolStats struct {
	TotalConnections    int32 `json:"total_connections"`
	IdleConnections     int32 `json:"idle_connections"`
	AcquiredConnections int32 `json:"acquired_connections"`
	MaxConnections      int32 `json:"max_connections"`
}

// TableStats contains per-table size and estimated row count.
type TableStats struct {
	Name          string `json:"name"`
	Rows          int64  `json:"rows"`
	SizeBytes     int64  `json:"size_bytes"`
	SizeFormatted string `json:"size_formatted"`
}

// CacheHealth reports the idempotency cache.
type CacheHealth struct {
	Enabled   bool `json:"enabled"`
	Connected bool `json:"connected"`
}
