package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/pilot-net/fleet-control/control-plane/internal/service"
	"github.com/pilot-net/fleet-control/control-plane/internal/testutil"
	"github.com/pilot-net/fleet-control/pkg/types"
)

func swarmRequest(cfg *types.SwarmConfig) service.SwarmRequest {
	return service.SwarmRequest{
		SwarmID:      cfg.SwarmID,
		MissionID:    cfg.MissionID,
		Formation:    cfg.Formation,
		Roles:        cfg.Roles,
		Coordination: cfg.Coordination,
		Constraints:  cfg.Constraints,
	}
}

func TestCoordinateSwarm(t *testing.T) {
	store := testutil.NewMemStore()
	svc := newTestService(store)
	m, drones := seedMission(store, types.MissionActive, 3)
	cfg := testutil.FixtureSwarmConfig(m.ID, drones[0].ID, []string{drones[1].ID, drones[2].ID})

	req := swarmRequest(cfg)
	req.IdempotencyKey = "swarm-req-1"
	res, err := svc.CoordinateSwarm(context.Background(), req)
	if err != nil {
		t.Fatalf("CoordinateSwarm: %v", err)
	}
	if res.Version != 1 {
		t.Errorf("version = %d, want 1", res.Version)
	}
	if res.CommandsGenerated != 3 || len(res.Commands) != 3 {
		t.Fatalf("commands = %d, want 3", res.CommandsGenerated)
	}
	for i, cmd := range res.Commands {
		if cmd.DroneID != cfg.Roles[i].DroneID {
			t.Errorf("command %d is for %s, want %s (role order)", i, cmd.DroneID, cfg.Roles[i].DroneID)
		}
		if cmd.CommandID == "" || cmd.Version != 1 || cmd.SwarmID != cfg.SwarmID {
			t.Errorf("command %d incomplete: %+v", i, cmd)
		}
	}
	if res.Commands[0].Position != (types.Offset{}) {
		t.Errorf("wedge leader should sit at the origin, got %+v", res.Commands[0].Position)
	}

	want := types.SwarmMetrics{
		DroneCount:          3,
		LeaderCount:         1,
		AltitudeRange:       types.AltitudeRange{Min: 30, Max: 120},
		FormationComplexity: "standard",
		Version:             1,
	}
	if res.Metrics != want {
		t.Errorf("metrics = %+v, want %+v", res.Metrics, want)
	}

	events := store.EventsOfType(types.EventSwarmIntent)
	if len(events) != 3 {
		t.Fatalf("expected one SWARM_INTENT event per role, got %d", len(events))
	}
	for i, ev := range events {
		if ev.DroneID == nil || *ev.DroneID != cfg.Roles[i].DroneID {
			t.Errorf("event %d drone = %v, want %s", i, ev.DroneID, cfg.Roles[i].DroneID)
		}
		var p types.SwarmIntentPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			t.Fatal(err)
		}
		if p.Role != cfg.Roles[i].Role || p.Version != 1 || p.IdempotencyKey != "swarm-req-1" {
			t.Errorf("event %d payload = %+v", i, p)
		}
	}
}

func TestCoordinateSwarmVersioning(t *testing.T) {
	store := testutil.NewMemStore()
	svc := newTestService(store)
	m, drones := seedMission(store, types.MissionActive, 2)
	cfg := testutil.FixtureSwarmConfig(m.ID, drones[0].ID, []string{drones[1].ID})
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		res, err := svc.CoordinateSwarm(ctx, swarmRequest(cfg))
		if err != nil {
			t.Fatalf("submission %d: %v", want, err)
		}
		if res.Version != want {
			t.Errorf("submission %d: version = %d", want, res.Version)
		}
	}

	// A full replacement drops roles that are no longer listed.
	cfg.Roles = cfg.Roles[:1]
	cfg.Formation = types.FormationLine
	res, err := svc.CoordinateSwarm(ctx, swarmRequest(cfg))
	if err != nil {
		t.Fatal(err)
	}
	stored, err := svc.GetSwarm(ctx, cfg.SwarmID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Version != 4 || res.Version != 4 {
		t.Errorf("version = %d/%d, want 4", stored.Version, res.Version)
	}
	if len(stored.Roles) != 1 || stored.Formation != types.FormationLine {
		t.Errorf("config not replaced: %+v", stored)
	}
}

func TestCoordinateSwarmRejectsUnassignedDrones(t *testing.T) {
	store := testutil.NewMemStore()
	svc := newTestService(store)
	m, drones := seedMission(store, types.MissionActive, 1)
	stranger := testutil.FixtureDrone()
	store.AddDrone(stranger)

	cfg := testutil.FixtureSwarmConfig(m.ID, drones[0].ID, []string{stranger.ID})
	_, err := svc.CoordinateSwarm(context.Background(), swarmRequest(cfg))
	if !errors.Is(err, service.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if !strings.Contains(err.Error(), stranger.ID) {
		t.Errorf("error should list the unassigned drone: %v", err)
	}
	if len(store.Events()) != 0 {
		t.Error("rejected submission must not write events")
	}
	if got, _ := svc.GetSwarm(context.Background(), cfg.SwarmID); got != nil {
		t.Error("rejected submission must not store a config")
	}
}

func TestCoordinateSwarmRequiresActiveMission(t *testing.T) {
	for _, status := range []types.MissionStatus{
		types.MissionPlanning, types.MissionPaused, types.MissionAborted, types.MissionCompleted,
	} {
		t.Run(string(status), func(t *testing.T) {
			store := testutil.NewMemStore()
			svc := newTestService(store)
			m, drones := seedMission(store, status, 1)
			cfg := testutil.FixtureSwarmConfig(m.ID, drones[0].ID, nil)

			_, err := svc.CoordinateSwarm(context.Background(), swarmRequest(cfg))
			if !errors.Is(err, service.ErrInvalidState) {
				t.Errorf("expected invalid state, got %v", err)
			}
		})
	}

	store := testutil.NewMemStore()
	svc := newTestService(store)
	cfg := testutil.FixtureSwarmConfig("missing", "d-1", nil)
	if _, err := svc.CoordinateSwarm(context.Background(), swarmRequest(cfg)); !errors.Is(err, service.ErrNotFound) {
		t.Errorf("expected not found for unknown mission, got %v", err)
	}
}

func TestCoordinateSwarmValidation(t *testing.T) {
	store := testutil.NewMemStore()
	svc := newTestService(store)
	m, drones := seedMission(store, types.MissionActive, 2)

	tests := []struct {
		name   string
		modify func(*types.SwarmConfig)
	}{
		{"missing swarm id", func(c *types.SwarmConfig) { c.SwarmID = "" }},
		{"missing mission id", func(c *types.SwarmConfig) { c.MissionID = "" }},
		{"unknown formation", func(c *types.SwarmConfig) { c.Formation = "diamond" }},
		{"no roles", func(c *types.SwarmConfig) { c.Roles = nil }},
		{"unknown role", func(c *types.SwarmConfig) { c.Roles[0].Role = "captain" }},
		{"duplicate drone", func(c *types.SwarmConfig) { c.Roles[1].DroneID = c.Roles[0].DroneID }},
		{"custom without positions", func(c *types.SwarmConfig) { c.Formation = types.FormationCustom }},
		{"inverted altitude", func(c *types.SwarmConfig) { c.Constraints.MinAltitudeM = 500 }},
		{"two-point geofence", func(c *types.SwarmConfig) {
			c.Constraints.Geofence = []types.GeoPoint{{Lat: 1, Lon: 1}, {Lat: 2, Lon: 2}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testutil.FixtureSwarmConfig(m.ID, drones[0].ID, []string{drones[1].ID})
			tt.modify(cfg)
			_, err := svc.CoordinateSwarm(context.Background(), swarmRequest(cfg))
			if !errors.Is(err, service.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCoordinateSwarmAppliesDefaults(t *testing.T) {
	store := testutil.NewMemStore()
	svc := newTestService(store)
	m, drones := seedMission(store, types.MissionActive, 1)
	cfg := testutil.FixtureSwarmConfig(m.ID, drones[0].ID, nil, func(c *types.SwarmConfig) {
		c.Coordination = types.Coordination{}
	})

	if _, err := svc.CoordinateSwarm(context.Background(), swarmRequest(cfg)); err != nil {
		t.Fatal(err)
	}
	stored, _ := svc.GetSwarm(context.Background(), cfg.SwarmID)
	if stored.Coordination.Topology != "mesh" || stored.Coordination.SyncFrequencyHz != 10 {
		t.Errorf("defaults not applied: %+v", stored.Coordination)
	}
}

func TestCustomFormationUsesExplicitPositions(t *testing.T) {
	cfg := &types.SwarmConfig{
		SwarmID:   "s-1",
		MissionID: "m-1",
		Formation: types.FormationCustom,
		Roles: []types.SwarmRole{
			{DroneID: "d-1", Role: types.RoleLeader, Position: &types.Offset{X: 1, Y: 2, Z: 3}},
			{DroneID: "d-2", Role: types.RoleScout, Position: &types.Offset{X: -4, Y: 8}},
		},
	}
	cmds := service.GenerateFormationCommands(cfg, 10)
	if cmds[0].Position != (types.Offset{X: 1, Y: 2, Z: 3}) || cmds[1].Position != (types.Offset{X: -4, Y: 8}) {
		t.Errorf("explicit positions not used: %+v %+v", cmds[0].Position, cmds[1].Position)
	}
	if m := service.SummarizeSwarm(cfg); m.FormationComplexity != "high" {
		t.Errorf("custom complexity = %s, want high", m.FormationComplexity)
	}
}

func TestSlotOffset(t *testing.T) {
	tests := []struct {
		name      string
		formation types.FormationType
		i, n      int
		want      types.Offset
	}{
		{"line left end", types.FormationLine, 0, 3, types.Offset{X: -10}},
		{"line center", types.FormationLine, 1, 3, types.Offset{}},
		{"line right end", types.FormationLine, 2, 3, types.Offset{X: 10}},
		{"wedge leader", types.FormationWedge, 0, 5, types.Offset{}},
		{"wedge first left", types.FormationWedge, 1, 5, types.Offset{X: -10, Y: -10}},
		{"wedge first right", types.FormationWedge, 2, 5, types.Offset{X: 10, Y: -10}},
		{"wedge second left", types.FormationWedge, 3, 5, types.Offset{X: -20, Y: -20}},
		{"grid first row", types.FormationGrid, 1, 4, types.Offset{X: 10}},
		{"grid second row", types.FormationGrid, 2, 4, types.Offset{Y: -10}},
		{"circle single", types.FormationCircle, 0, 1, types.Offset{}},
		{"circle first", types.FormationCircle, 0, 4, types.Offset{X: 10}},
		{"circle quarter", types.FormationCircle, 1, 4, types.Offset{Y: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := service.SlotOffset(tt.formation, tt.i, tt.n, 10)
			if math.Abs(got.X-tt.want.X) > 1e-9 || math.Abs(got.Y-tt.want.Y) > 1e-9 || got.Z != tt.want.Z {
				t.Errorf("SlotOffset = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCircleSlotsAreDistinct(t *testing.T) {
	seen := make(map[types.Offset]bool)
	for i := 0; i < 12; i++ {
		o := service.SlotOffset(types.FormationCircle, i, 12, 10)
		if seen[o] {
			t.Errorf("slot %d collides at %+v", i, o)
		}
		seen[o] = true
	}
}
