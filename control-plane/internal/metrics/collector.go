// Package metrics provides infrastructure metrics collection for the control plane.
package metrics

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/pilot-net/fleet-control/control-plane/internal/config"
	"github.com/pilot-net/fleet-control/control-plane/internal/store"
	"github.com/pilot-net/fleet-control/pkg/types"
)

// DatabaseSource is the part of the store the collector reads.
type DatabaseSource interface {
	Ping(ctx context.Context) error
	GetPoolStats() types.PoolStats
	GetDatabaseSize(ctx context.Context) (int64, error)
	GetTableStats(ctx context.Context) ([]types.TableStats, error)
}

// SchemaStatusFunc reports the applied schema version and pending migrations.
type SchemaStatusFunc func(ctx context.Context) (version int, pending []string, err error)

// Pinger is implemented by the idempotency cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Collector gathers infrastructure metrics with caching.
type Collector struct {
	db     DatabaseSource
	schema SchemaStatusFunc // may be nil
	cache  Pinger           // may be nil if the cache is disabled

	startTime time.Time

	// Cached values with TTL
	mu            sync.RWMutex
	cachedHealth  *types.InfrastructureHealth
	cacheExpiry   time.Time
	cacheDuration time.Duration
}

// NewCollector creates a new metrics collector.
func NewCollector(db DatabaseSource, schema SchemaStatusFunc, cache Pinger) *Collector {
	return &Collector{
		db:            db,
		schema:        schema,
		cache:         cache,
		startTime:     time.Now(),
		cacheDuration: config.HealthCacheDuration,
	}
}

// GetInfrastructureHealth returns the current infrastructure health metrics.
// Results are cached to avoid running the catalog queries on every request.
func (c *Collector) GetInfrastructureHealth(ctx context.Context) (*types.InfrastructureHealth, error) {
	c.mu.RLock()
	if c.cachedHealth != nil && time.Now().Before(c.cacheExpiry) {
		health := *c.cachedHealth
		c.mu.RUnlock()
		return &health, nil
	}
	c.mu.RUnlock()

	health := c.collectHealth(ctx)

	c.mu.Lock()
	c.cachedHealth = health
	c.cacheExpiry = time.Now().Add(c.cacheDuration)
	c.mu.Unlock()

	return health, nil
}

// Healthy reports whether the database answers a ping. Used by the liveness
// endpoint, which must stay cheap.
func (c *Collector) Healthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, config.DatabasePingTimeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c *Collector) collectHealth(ctx context.Context) *types.InfrastructureHealth {
	return &types.InfrastructureHealth{
		Timestamp:    time.Now().UTC(),
		ControlPlane: c.collectControlPlaneHealth(),
		Database:     c.collectDatabaseHealth(ctx),
		Cache:        c.collectCacheHealth(ctx),
	}
}

func (c *Collector) collectControlPlaneHealth() types.ControlPlaneHealth {
	health := types.ControlPlaneHealth{
		Status:        "healthy",
		Goroutines:    runtime.NumGoroutine(),
		UptimeSeconds: int64(time.Since(c.startTime).Seconds()),
	}

	// Get process metrics using gopsutil
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err == nil {
		if cpu, err := proc.CPUPercent(); err == nil {
			health.CPUPercent = cpu
		}
		if mem, err := proc.MemoryInfo(); err == nil {
			health.MemoryMB = float64(mem.RSS) / (1024 * 1024)
		}
		if memPct, err := proc.MemoryPercent(); err == nil {
			health.MemoryPercent = float64(memPct)
		}
	}

	if health.MemoryPercent > 90 || health.CPUPercent > 90 {
		health.Status = "degraded"
	}

	return health
}

func (c *Collector) collectDatabaseHealth(ctx context.Context) types.DatabaseHealth {
	health := types.DatabaseHealth{
		Status: "healthy",
		Tables: []types.TableStats{},
	}

	pingCtx, cancel := context.WithTimeout(ctx, config.DatabasePingTimeout)
	defer cancel()
	if err := c.db.Ping(pingCtx); err != nil {
		health.Status = "down"
		health.Error = err.Error()
		return health
	}

	// Pool stats need no query
	health.Pool = c.db.GetPoolStats()
	if health.Pool.MaxConnections > 0 && health.Pool.AcquiredConnections >= health.Pool.MaxConnections-2 {
		health.Status = "degraded"
	}

	size, err := c.db.GetDatabaseSize(ctx)
	if err != nil {
		health.Status = "degraded"
		health.Error = err.Error()
	} else {
		health.SizeBytes = size
		health.SizeFormatted = store.FormatBytes(size)
	}

	if tables, err := c.db.GetTableStats(ctx); err == nil {
		health.Tables = tables
	}

	if c.schema != nil {
		version, pending, err := c.schema(ctx)
		if err == nil {
			health.SchemaVersion = version
			health.PendingMigrations = pending
			if len(pending) > 0 {
				health.Status = "degraded"
			}
		}
	}

	return health
}

func (c *Collector) collectCacheHealth(ctx context.Context) types.CacheHealth {
	if c.cache == nil {
		return types.CacheHealth{Enabled: false}
	}
	pingCtx, cancel := context.WithTimeout(ctx, config.RedisConnectionTimeout)
	defer cancel()
	return types.CacheHealth{
		Enabled:   true,
		Connected: c.cache.Ping(pingCtx) == nil,
	}
}
