package testutil

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/pilot-net/fleet-control/control-plane/internal/service"
	"github.com/pilot-net/fleet-control/pkg/types"
)

// MemStore is an in-memory service.Store for tests.
//
// Every method holds a single mutex for its whole duration, which gives the
// same serialization the database gets from row locks, and evaluates the same
// guards. Writes are staged and applied only after every check has passed, so
// a failed call leaves no partial state.
type MemStore struct {
	mu sync.Mutex

	missions    map[string]types.Mission
	drones      map[string]types.Drone
	assignments map[string]map[string]string // mission -> drone -> role
	swarms      map[string]types.SwarmConfig
	segments    map[string]types.VideoSegment
	detections  []types.Detection
	events      []types.Event
	kv          map[string]json.RawMessage

	// FailWrites, when set, is returned by every mutating call before anything
	// is written.
	FailWrites error
}

var _ service.Store = (*MemStore)(nil)

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		missions:    make(map[string]types.Mission),
		drones:      make(map[string]types.Drone),
		assignments: make(map[string]map[string]string),
		swarms:      make(map[string]types.SwarmConfig),
		segments:    make(map[string]types.VideoSegment),
		kv:          make(map[string]json.RawMessage),
	}
}

// =============================================================================
// SEEDING & INSPECTION
// =============================================================================

// AddMission seeds a mission.
func (s *MemStore) AddMission(m *types.Mission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missions[m.ID] = *m
}

// AddDrone seeds a drone.
func (s *MemStore) AddDrone(d *types.Drone) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drones[d.ID] = *d
}

// Assign seeds a drone assignment.
func (s *MemStore) Assign(missionID, droneID, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assign(missionID, droneID, role)
}

// AddSegment seeds a video segment.
func (s *MemStore) AddSegment(seg *types.VideoSegment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments[seg.ID] = *seg
}

// Mission returns a copy of a stored mission.
func (s *MemStore) Mission(id string) (types.Mission, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.missions[id]
	return m, ok
}

// Drone returns a copy of a stored drone.
func (s *MemStore) Drone(id string) (types.Drone, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drones[id]
	return d, ok
}

// Events returns every stored event in insertion order.
func (s *MemStore) Events() []types.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Event(nil), s.events...)
}

// EventsOfType returns stored events of one type in insertion order.
func (s *MemStore) EventsOfType(t types.EventType) []types.Event {
	var out []types.Event
	for _, ev := range s.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// Detections returns every stored detection in insertion order.
func (s *MemStore) Detections() []types.Detection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Detection(nil), s.detections...)
}

func (s *MemStore) assign(missionID, droneID, role string) {
	if s.assignments[missionID] == nil {
		s.assignments[missionID] = make(map[string]string)
	}
	s.assignments[missionID][droneID] = role
}

// assignedDrones returns a mission's drones in id order.
func (s *MemStore) assignedDrones(missionID string) []string {
	ids := make([]string, 0, len(s.assignments[missionID]))
	for id := range s.assignments[missionID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// =============================================================================
// MISSIONS
// =============================================================================

// GetMission implements service.Store.
func (s *MemStore) GetMission(_ context.Context, id string) (*types.MissionDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.missions[id]
	if !ok {
		return nil, nil
	}
	detail := &types.MissionDetail{Mission: m, Assignments: []types.DroneAssignment{}}
	for _, droneID := range s.assignedDrones(id) {
		detail.Assignments = append(detail.Assignments, types.DroneAssignment{
			MissionID: id,
			DroneID:   droneID,
			Role:      s.assignments[id][droneID],
		})
	}
	return detail, nil
}

// TransitionMission implements service.Store.
func (s *MemStore) TransitionMission(_ context.Context, t service.MissionTransition) (*service.TransitionOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites != nil {
		return nil, s.FailWrites
	}
	m, ok := s.missions[t.MissionID]
	if !ok {
		return nil, service.NotFoundError("mission", t.MissionID)
	}
	current := m.Status
	next, ok := t.Action.Next(current)
	if !ok {
		return nil, service.InvalidTransitionError(t.Action, current)
	}

	effect := t.Action.DroneStatusEffect()
	var droneIDs []string
	if effect != "" {
		droneIDs = s.assignedDrones(t.MissionID)
	}
	if t.Action == types.ActionLaunch {
		if busy := s.busyDrones(t.MissionID, droneIDs); len(busy) > 0 {
			return nil, service.InvalidStateError("drones already assigned to an active mission: %s",
				strings.Join(busy, ", ")).WithContext("drone_ids", busy)
		}
	}

	updated := 0
	for _, id := range droneIDs {
		if _, ok := s.drones[id]; ok {
			updated++
		}
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
		return nil, err
	}

	// Apply.
	m.Status = next
	m.UpdatedAt = t.Now
	switch t.Action {
	case types.ActionLaunch:
		if m.StartsAt == nil {
			at := t.Now
			m.StartsAt = &at
		}
	case types.ActionAbort:
		at := t.Now
		m.EndsAt = &at
	}
	s.missions[t.MissionID] = m
	for _, id := range droneIDs {
		if d, ok := s.drones[id]; ok {
			d.Status = effect
			d.UpdatedAt = t.Now
			s.drones[id] = d
		}
	}
	s.events = append(s.events, event)

	return &service.TransitionOutcome{
		OldStatus:     current,
		NewStatus:     next,
		DronesUpdated: updated,
		Event:         event,
	}, nil
}

// busyDrones returns the drones assigned to another active or paused mission.
func (s *MemStore) busyDrones(missionID string, droneIDs []string) []string {
	var busy []string
	for _, droneID := range droneIDs {
		for otherID, drones := range s.assignments {
			if otherID == missionID {
				continue
			}
			if _, ok := drones[droneID]; !ok {
				continue
			}
			if s.missions[otherID].Status.IsLive() {
				busy = append(busy, droneID)
				break
			}
		}
	}
	return busy
}

// UpdateMissionRuleset implements service.Store.
func (s *MemStore) UpdateMissionRuleset(_ context.Context, u service.RulesetUpdate) (*service.RulesetOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites != nil {
		return nil, s.FailWrites
	}
	m, ok := s.missions[u.MissionID]
	if !ok {
		return nil, service.NotFoundError("mission", u.MissionID)
	}
	merged := m.Ruleset.Merge(u.Patch)

	event, err := service.NewMissionControlEvent(u.MissionID, types.MissionControlPayload{
		Action:         types.ActionUpdateWaypoints,
		OldStatus:      m.Status,
		NewStatus:      m.Status,
		OperatorID:     u.OperatorID,
		IdempotencyKey: u.IdempotencyKey,
	}, u.Now)
	if err != nil {
		return nil, err
	}

	m.Ruleset = merged
	m.UpdatedAt = u.Now
	s.missions[u.MissionID] = m
	s.events = append(s.events, event)

	return &service.RulesetOutcome{Status: m.Status, Ruleset: merged, Event: event}, nil
}

// =============================================================================
// SWARMS
// =============================================================================

// GetSwarmConfig implements service.Store.
func (s *MemStore) GetSwarmConfig(_ context.Context, swarmID string) (*types.SwarmConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.swarms[swarmID]
	if !ok {
		return nil, nil
	}
	cfg.Roles = append([]types.SwarmRole(nil), cfg.Roles...)
	return &cfg, nil
}

// UpsertSwarmConfig implements service.Store.
func (s *MemStore) UpsertSwarmConfig(_ context.Context, cfg *types.SwarmConfig, idempotencyKey string) (*types.SwarmConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites != nil {
		return nil, s.FailWrites
	}
	m, ok := s.missions[cfg.MissionID]
	if !ok {
		return nil, service.NotFoundError("mission", cfg.MissionID)
	}
	if m.Status != types.MissionActive {
		return nil, service.InvalidStateError("mission %s is %s, swarm coordination requires an active mission",
			cfg.MissionID, m.Status).WithContext("current_status", m.Status)
	}
	var missing []string
	for _, id := range cfg.DroneIDs() {
		if _, ok := s.assignments[cfg.MissionID][id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, service.InvalidStateError("drones not assigned to mission %s: %s",
			cfg.MissionID, strings.Join(missing, ", ")).WithContext("drone_ids", missing)
	}

	stored := *cfg
	stored.Roles = append([]types.SwarmRole(nil), cfg.Roles...)
	stored.Version = 1
	stored.CreatedAt = cfg.UpdatedAt
	if prev, ok := s.swarms[cfg.SwarmID]; ok {
		stored.Version = prev.Version + 1
		stored.CreatedAt = prev.CreatedAt
	}

	events, err := service.NewSwarmIntentEvents(&stored, idempotencyKey, cfg.UpdatedAt)
	if err != nil {
		return nil, err
	}

	s.swarms[cfg.SwarmID] = stored
	s.events = append(s.events, events...)

	out := stored
	return &out, nil
}

// =============================================================================
// DETECTIONS
// =============================================================================

// GetVideoSegment implements service.Store.
func (s *MemStore) GetVideoSegment(_ context.Context, id string) (*types.VideoSegment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seg, ok := s.segments[id]
	if !ok {
		return nil, nil
	}
	return &seg, nil
}

// RecordDetectionBatch implements service.Store.
func (s *MemStore) RecordDetectionBatch(_ context.Context, batch service.DetectionBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites != nil {
		return s.FailWrites
	}
	if _, ok := s.segments[batch.Segment.ID]; !ok {
		return service.NotFoundError("video_segment", batch.Segment.ID)
	}
	metrics, err := json.Marshal(batch.Metrics)
	if err != nil {
		return err
	}

	s.detections = append(s.detections, batch.Detections...)
	if batch.Alert != nil {
		s.events = append(s.events, *batch.Alert)
	}
	s.kv[types.ModelMetricsKey(batch.Metrics.ModelName, batch.Metrics.VideoSegmentID)] = metrics
	return nil
}

// GetModelMetrics implements service.Store.
func (s *MemStore) GetModelMetrics(_ context.Context, modelName, segmentID string) (*types.ModelMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.kv[types.ModelMetricsKey(modelName, segmentID)]
	if !ok {
		return nil, nil
	}
	var m types.ModelMetrics
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// =============================================================================
// EVENT LOG
// =============================================================================

// ListEvents implements service.Store. Events are returned newest first;
// events with equal timestamps come back in reverse insertion order.
func (s *MemStore) ListEvents(_ context.Context, filter types.EventFilter) ([]types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.Event
	for i := len(s.events) - 1; i >= 0; i-- {
		ev := s.events[i]
		if filter.MissionID != "" && (ev.MissionID == nil || *ev.MissionID != filter.MissionID) {
			continue
		}
		if filter.DroneID != "" && (ev.DroneID == nil || *ev.DroneID != filter.DroneID) {
			continue
		}
		if filter.Type != "" && ev.Type != filter.Type {
			continue
		}
		if filter.Severity != "" && ev.Severity.Level() < filter.Severity.Level() {
			continue
		}
		if filter.Since != nil && ev.CreatedAt.Before(*filter.Since) {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// =============================================================================
// REGISTRY
// =============================================================================

// CreateMission implements service.Store.
func (s *MemStore) CreateMission(_ context.Context, m *types.Mission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites != nil {
		return s.FailWrites
	}
	if _, ok := s.missions[m.ID]; ok {
		return service.InvalidStateError("mission already exists: %s", m.ID)
	}
	s.missions[m.ID] = *m
	return nil
}

// UpsertDrone implements service.Store.
func (s *MemStore) UpsertDrone(_ context.Context, d *types.Drone) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites != nil {
		return s.FailWrites
	}
	s.drones[d.ID] = *d
	return nil
}

// AssignDrone implements service.Store.
func (s *MemStore) AssignDrone(_ context.Context, a types.DroneAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites != nil {
		return s.FailWrites
	}
	m, ok := s.missions[a.MissionID]
	if !ok {
		return service.NotFoundError("mission", a.MissionID)
	}
	if m.Status.IsTerminal() {
		return service.InvalidStateError("mission %s is %s and takes no new assignments", a.MissionID, m.Status)
	}
	d, ok := s.drones[a.DroneID]
	if !ok {
		return service.NotFoundError("drone", a.DroneID)
	}
	if m.Status.IsLive() {
		if busy := s.busyDrones(a.MissionID, []string{a.DroneID}); len(busy) > 0 {
			return service.InvalidStateError("drone %s is already assigned to an active mission", a.DroneID).
				WithContext("drone_ids", busy)
		}
		d.Status = types.DroneMission
		d.UpdatedAt = a.AssignedAt
		s.drones[a.DroneID] = d
	}
	s.assign(a.MissionID, a.DroneID, a.Role)
	return nil
}

// CreateVideoSegment implements service.Store.
func (s *MemStore) CreateVideoSegment(_ context.Context, seg *types.VideoSegment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites != nil {
		return s.FailWrites
	}
	if _, ok := s.missions[seg.MissionID]; !ok {
		return service.NotFoundError("mission", seg.MissionID)
	}
	if _, ok := s.drones[seg.DroneID]; !ok {
		return service.NotFoundError("drone", seg.DroneID)
	}
	if _, ok := s.segments[seg.ID]; ok {
		return service.InvalidStateError("video segment already exists: %s", seg.ID)
	}
	s.segments[seg.ID] = *seg
	return nil
}
