// Package config provides configuration for the control plane.
//
// constants.go centralizes the fixed domain thresholds and limits so they are
// easy to find and test. config.go loads the runtime configuration file.
package config

import "time"

// Detection classification thresholds.
const (
	// CriticalConfidenceThreshold - a detection in CriticalClasses raises an
	// alert only when its confidence is strictly above this value.
	CriticalConfidenceThreshold = 0.8

	// LowConfidenceThreshold - detections below this confidence are counted
	// as low-confidence in model metrics.
	LowConfidenceThreshold = 0.3

	// MaxDetectionBatchSize is the largest batch accepted in one request.
	MaxDetectionBatchSize = 10000
)

// CriticalClasses is the fixed high-priority class allow-list (lowercase).
var CriticalClasses = map[string]bool{
	"person":  true,
	"vehicle": true,
	"weapon":  true,
	"fire":    true,
	"smoke":   true,
}

// Swarm coordination defaults applied when a submission leaves them unset.
const (
	// DefaultFormationSpacingM is the slot spacing used for generated offsets.
	DefaultFormationSpacingM = 10.0

	// DefaultSyncFrequencyHz is the coordination sync rate.
	DefaultSyncFrequencyHz = 10.0

	// DefaultCommTopology is the inter-vehicle communication topology.
	DefaultCommTopology = "mesh"
)

// Pagination defaults for API list endpoints.
const (
	// DefaultPaginationLimit is the default number of items returned
	// when no limit is specified.
	DefaultPaginationLimit = 50

	// MaxPaginationLimit is the maximum number of items that can be
	// requested in a single API call.
	MaxPaginationLimit = 500
)

// Request handling.
const (
	// MaxRequestBodyBytes caps JSON request bodies.
	MaxRequestBodyBytes = 8 << 20

	// IdempotencyKeyTTL is how long a stored response can be replayed.
	IdempotencyKeyTTL = 24 * time.Hour

	// IdempotencyLockTTL bounds how long an in-flight reservation blocks
	// duplicates if the server dies before storing the response.
	IdempotencyLockTTL = 30 * time.Second

	// DefaultLocalIdempotencyKeys bounds the in-process idempotency store
	// used when Redis is not configured.
	DefaultLocalIdempotencyKeys = 10000

	// DefaultMetricExportInterval is how often counters are exported when
	// telemetry is enabled.
	DefaultMetricExportInterval = time.Minute

	// DefaultIngestRateLimit is the detection batches per second accepted.
	DefaultIngestRateLimit = 50

	// DefaultIngestBurst is the token bucket burst for ingestion.
	DefaultIngestBurst = 100
)

// HTTP client timeouts.
const (
	// DefaultHTTPTimeout is the default timeout for HTTP client requests.
	DefaultHTTPTimeout = 30 * time.Second
)

// Database and cache connection configuration.
const (
	// DatabasePingTimeout is the timeout for database connectivity checks.
	DatabasePingTimeout = 5 * time.Second

	// RedisConnectionTimeout is the timeout for Redis connectivity checks.
	RedisConnectionTimeout = 5 * time.Second

	// HealthCacheDuration is how long infrastructure health is cached.
	HealthCacheDuration = 30 * time.Second
)
