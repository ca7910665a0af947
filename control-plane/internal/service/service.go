// Package service contains the business logic for the fleet control plane.
//
// # Components
//
//   - Mission Lifecycle Controller (mission.go): guarded status transitions
//   - Swarm Formation Coordinator (swarm.go): versioned swarm configs and per-drone commands
//   - Detection Pipeline (detection.go): batch ingestion, critical alerts, model metrics
//   - Registry (registry.go): missions, drones, assignments and video segments
//     that the components above operate on
//
// Components never call each other. They compose through the Store and the
// event log it keeps. Every multi-row write is a single Store call that the
// implementation runs in one transaction.
package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/pilot-net/fleet-control/control-plane/internal/config"
	"github.com/pilot-net/fleet-control/pkg/types"
)

// Store is the persistence contract the service needs.
//
// Getters return (nil, nil) when the entity does not exist. Mutating methods
// return *Error values of kind NotFound or InvalidState when their guard fails,
// and must leave no partial writes behind on any error.
type Store interface {
	// Missions
	GetMission(ctx context.Context, id string) (*types.MissionDetail, error)
	TransitionMission(ctx context.Context, t MissionTransition) (*TransitionOutcome, error)
	UpdateMissionRuleset(ctx context.Context, u RulesetUpdate) (*RulesetOutcome, error)

	// Swarms
	GetSwarmConfig(ctx context.Context, swarmID string) (*types.SwarmConfig, error)
	UpsertSwarmConfig(ctx context.Context, cfg *types.SwarmConfig, idempotencyKey string) (*types.SwarmConfig, error)

	// Detections
	GetVideoSegment(ctx context.Context, id string) (*types.VideoSegment, error)
	RecordDetectionBatch(ctx context.Context, batch DetectionBatch) error
	GetModelMetrics(ctx context.Context, modelName, segmentID string) (*types.ModelMetrics, error)

	// Event log
	ListEvents(ctx context.Context, filter types.EventFilter) ([]types.Event, error)

	// Registry
	CreateMission(ctx context.Context, m *types.Mission) error
	UpsertDrone(ctx context.Context, d *types.Drone) error
	AssignDrone(ctx context.Context, a types.DroneAssignment) error
	CreateVideoSegment(ctx context.Context, seg *types.VideoSegment) error
}

// Service provides business logic operations.
type Service struct {
	store  Store
	logger *slog.Logger
	tel    *telemetry
	now    func() time.Time
}

// NewService creates a new service.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
		tel:    newTelemetry(nil, logger),
		now:    time.Now,
	}
}

// SetClock overrides the time source. Used by tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// SetMeterProvider reports the domain counters through mp instead of the
// global provider.
func (s *Service) SetMeterProvider(mp metric.MeterProvider) {
	s.tel = newTelemetry(mp, s.logger)
}

// Store returns the underlying store.
func (s *Service) Store() Store {
	return s.store
}

// =============================================================================
// EVENT LOG
// =============================================================================

// ListEvents returns events matching the filter, newest first.
func (s *Service) ListEvents(ctx context.Context, filter types.EventFilter) ([]types.Event, error) {
	if filter.Limit <= 0 {
		filter.Limit = config.DefaultPaginationLimit
	}
	if filter.Limit > config.MaxPaginationLimit {
		filter.Limit = config.MaxPaginationLimit
	}
	if filter.Severity != "" && filter.Severity.Level() == 0 {
		return nil, ValidationError("invalid severity: %q", filter.Severity)
	}
	events, err := s.store.ListEvents(ctx, filter)
	if err != nil {
		return nil, classify("listing events", err)
	}
	if events == nil {
		events = []types.Event{}
	}
	return events, nil
}
