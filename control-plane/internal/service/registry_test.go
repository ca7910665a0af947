package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/pilot-net/fleet-control/control-plane/internal/service"
	"github.com/pilot-net/fleet-control/control-plane/internal/testutil"
	"github.com/pilot-net/fleet-control/pkg/types"
)

func TestCreateMission(t *testing.T) {
	store := testutil.NewMemStore()
	svc := newTestService(store)
	ctx := context.Background()

	m, err := svc.CreateMission(ctx, service.CreateMissionRequest{
		Name: "coastline sweep",
		Ruleset: types.Ruleset{
			Waypoints: []types.Waypoint{{Lat: 1, Lon: 2, Alt: 50}},
		},
	})
	if err != nil {
		t.Fatalf("CreateMission: %v", err)
	}
	if m.ID == "" {
		t.Error("expected a generated id")
	}
	if m.Status != types.MissionPlanning {
		t.Errorf("status = %s, want planning", m.Status)
	}

	if _, err := svc.CreateMission(ctx, service.CreateMissionRequest{ID: m.ID}); !errors.Is(err, service.ErrInvalidState) {
		t.Errorf("duplicate id: got %v, want invalid state", err)
	}

	_, err = svc.CreateMission(ctx, service.CreateMissionRequest{
		Ruleset: types.Ruleset{Waypoints: []types.Waypoint{{Lat: 120}}},
	})
	if !errors.Is(err, service.ErrValidation) {
		t.Errorf("bad waypoint: got %v, want validation", err)
	}
}

func TestRegisterDrone(t *testing.T) {
	store := testutil.NewMemStore()
	svc := newTestService(store)
	ctx := context.Background()

	d, err := svc.RegisterDrone(ctx, types.Drone{ID: "drone-7"})
	if err != nil {
		t.Fatalf("RegisterDrone: %v", err)
	}
	if d.Status != types.DroneOffline {
		t.Errorf("status = %s, want offline default", d.Status)
	}

	if _, err := svc.RegisterDrone(ctx, types.Drone{ID: "drone-7", Status: types.DroneOnline}); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if got, _ := store.Drone("drone-7"); got.Status != types.DroneOnline {
		t.Errorf("stored status = %s, want online", got.Status)
	}

	if _, err := svc.RegisterDrone(ctx, types.Drone{}); !errors.Is(err, service.ErrValidation) {
		t.Errorf("missing id: got %v", err)
	}
	if _, err := svc.RegisterDrone(ctx, types.Drone{ID: "x", Status: "hovering"}); !errors.Is(err, service.ErrValidation) {
		t.Errorf("bad status: got %v", err)
	}
}

func TestAssignDrone(t *testing.T) {
	store := testutil.NewMemStore()
	svc := newTestService(store)
	ctx := context.Background()
	m := testutil.FixtureMission()
	done := testutil.FixtureMission(func(m *types.Mission) { m.Status = types.MissionAborted })
	d := testutil.FixtureDrone()
	store.AddMission(m)
	store.AddMission(done)
	store.AddDrone(d)

	tests := []struct {
		name string
		a    types.DroneAssignment
		want error
	}{
		{"ok", types.DroneAssignment{MissionID: m.ID, DroneID: d.ID, Role: "camera"}, nil},
		{"missing ids", types.DroneAssignment{Role: "camera"}, service.ErrValidation},
		{"unknown mission", types.DroneAssignment{MissionID: "nope", DroneID: d.ID}, service.ErrNotFound},
		{"unknown drone", types.DroneAssignment{MissionID: m.ID, DroneID: "nope"}, service.ErrNotFound},
		{"terminal mission", types.DroneAssignment{MissionID: done.ID, DroneID: d.ID}, service.ErrInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.AssignDrone(ctx, tt.a)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want kind %s", err, service.KindOf(tt.want))
			}
		})
	}

	detail, err := svc.GetMission(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(detail.Assignments) != 1 || detail.Assignments[0].Role != "camera" {
		t.Errorf("unexpected assignments: %+v", detail.Assignments)
	}
}

func TestAssignDroneToLiveMission(t *testing.T) {
	store := testutil.NewMemStore()
	svc := newTestService(store)
	ctx := context.Background()

	first, drones := seedMission(store, types.MissionPlanning, 1)
	if _, err := svc.ControlMission(ctx, service.MissionControlRequest{MissionID: first.ID, Action: "launch"}); err != nil {
		t.Fatalf("launch first: %v", err)
	}
	second, _ := seedMission(store, types.MissionPlanning, 0)
	if _, err := svc.ControlMission(ctx, service.MissionControlRequest{MissionID: second.ID, Action: "launch"}); err != nil {
		t.Fatalf("launch second: %v", err)
	}

	err := svc.AssignDrone(ctx, types.DroneAssignment{MissionID: second.ID, DroneID: drones[0].ID, Role: "camera"})
	if !errors.Is(err, service.ErrInvalidState) {
		t.Fatalf("drone flying another mission: got %v, want invalid state", err)
	}
	if detail, _ := svc.GetMission(ctx, second.ID); len(detail.Assignments) != 0 {
		t.Errorf("rejected assignment was stored: %+v", detail.Assignments)
	}

	if _, err := svc.ControlMission(ctx, service.MissionControlRequest{MissionID: second.ID, Action: "abort"}); err != nil {
		t.Fatalf("abort second: %v", err)
	}
	if got, _ := store.Drone(drones[0].ID); got.Status != types.DroneMission {
		t.Errorf("drone of the still active mission is %s, want mission", got.Status)
	}

	// A free drone joining a paused mission takes the mission status.
	if _, err := svc.ControlMission(ctx, service.MissionControlRequest{MissionID: first.ID, Action: "pause"}); err != nil {
		t.Fatalf("pause first: %v", err)
	}
	spare := testutil.FixtureDrone()
	store.AddDrone(spare)
	if err := svc.AssignDrone(ctx, types.DroneAssignment{MissionID: first.ID, DroneID: spare.ID, Role: "relay"}); err != nil {
		t.Fatalf("assign spare: %v", err)
	}
	got, _ := store.Drone(spare.ID)
	if got.Status != types.DroneMission || !got.UpdatedAt.Equal(testNow) {
		t.Errorf("spare drone = %s at %v, want mission at %v", got.Status, got.UpdatedAt, testNow)
	}
}

func TestRegisterVideoSegment(t *testing.T) {
	store := testutil.NewMemStore()
	svc := newTestService(store)
	ctx := context.Background()
	m, drones := seedMission(store, types.MissionActive, 1)

	seg, err := svc.RegisterVideoSegment(ctx, types.VideoSegment{DroneID: drones[0].ID, MissionID: m.ID})
	if err != nil {
		t.Fatalf("RegisterVideoSegment: %v", err)
	}
	if seg.ID == "" {
		t.Error("expected a generated id")
	}

	if _, err := svc.RegisterVideoSegment(ctx, *seg); !errors.Is(err, service.ErrInvalidState) {
		t.Errorf("duplicate: got %v, want invalid state", err)
	}
	if _, err := svc.RegisterVideoSegment(ctx, types.VideoSegment{MissionID: m.ID}); !errors.Is(err, service.ErrValidation) {
		t.Errorf("missing drone: got %v, want validation", err)
	}
}

func TestListEvents(t *testing.T) {
	store := testutil.NewMemStore()
	svc := newTestService(store)
	ctx := context.Background()
	m, _ := seedMission(store, types.MissionPlanning, 1)

	for _, a := range []string{"launch", "pause", "abort"} {
		if _, err := svc.ControlMission(ctx, service.MissionControlRequest{MissionID: m.ID, Action: a}); err != nil {
			t.Fatalf("%s: %v", a, err)
		}
	}

	all, err := svc.ListEvents(ctx, types.EventFilter{MissionID: m.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}

	limited, _ := svc.ListEvents(ctx, types.EventFilter{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("limit not applied: %d", len(limited))
	}

	empty, err := svc.ListEvents(ctx, types.EventFilter{MissionID: "other"})
	if err != nil {
		t.Fatal(err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("expected an empty non-nil slice, got %#v", empty)
	}

	if _, err := svc.ListEvents(ctx, types.EventFilter{Severity: "loud"}); !errors.Is(err, service.ErrValidation) {
		t.Errorf("bad severity: got %v", err)
	}
}
