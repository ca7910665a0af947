package types

import (
	"encoding/json"
	"testing"
)

func TestMissionActionNext(t *testing.T) {
	tests := []struct {
		action MissionAction
		from   MissionStatus
		want   MissionStatus
		ok     bool
	}{
		{ActionLaunch, MissionPlanning, MissionActive, true},
		{ActionLaunch, MissionActive, MissionActive, false},
		{ActionLaunch, MissionAborted, MissionAborted, false},
		{ActionPause, MissionActive, MissionPaused, true},
		{ActionPause, MissionPaused, MissionPaused, false},
		{ActionResume, MissionPaused, MissionActive, true},
		{ActionResume, MissionPlanning, MissionPlanning, false},
		{ActionAbort, MissionActive, MissionAborted, true},
		{ActionAbort, MissionPaused, MissionAborted, true},
		{ActionAbort, MissionPlanning, MissionPlanning, false},
		{ActionAbort, MissionCompleted, MissionCompleted, false},
		{ActionUpdateWaypoints, MissionCompleted, MissionCompleted, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.action)+"/"+string(tt.from), func(t *testing.T) {
			got, ok := tt.action.Next(tt.from)
			if got != tt.want || ok != tt.ok {
				t.Errorf("Next(%s) = %s, %v; want %s, %v", tt.from, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestAllowedFromMatchesNext(t *testing.T) {
	statuses := []MissionStatus{MissionPlanning, MissionActive, MissionPaused, MissionAborted, MissionCompleted}
	actions := []MissionAction{ActionLaunch, ActionPause, ActionResume, ActionAbort, ActionUpdateWaypoints}

	for _, a := range actions {
		allowed := make(map[MissionStatus]bool)
		for _, s := range a.AllowedFrom() {
			allowed[s] = true
		}
		for _, s := range statuses {
			if _, ok := a.Next(s); ok != allowed[s] {
				t.Errorf("%s from %s: Next ok=%v, AllowedFrom=%v", a, s, ok, allowed[s])
			}
		}
	}
}

func TestParseMissionAction(t *testing.T) {
	if a, err := ParseMissionAction("abort"); err != nil || a != ActionAbort {
		t.Errorf("ParseMissionAction(abort) = %s, %v", a, err)
	}
	for _, s := range []string{"", "Launch", "land"} {
		if _, err := ParseMissionAction(s); err == nil {
			t.Errorf("expected error for %q", s)
		}
	}
}

func TestRulesetPreservesExtraKeys(t *testing.T) {
	in := `{"formation":"line","planner":{"id":"p-1"},"speed":12,"waypoints":[{"lat":1,"lon":2,"alt":3}]}`

	var r Ruleset
	if err := json.Unmarshal([]byte(in), &r); err != nil {
		t.Fatal(err)
	}
	if r.Formation != "line" || r.Speed == nil || *r.Speed != 12 || len(r.Waypoints) != 1 {
		t.Fatalf("modeled fields not read: %+v", r)
	}
	if string(r.Extra["planner"]) != `{"id":"p-1"}` {
		t.Errorf("extra key lost: %s", r.Extra["planner"])
	}

	out, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	var back map[string]any
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatal(err)
	}
	if _, ok := back["planner"]; !ok {
		t.Errorf("extra key not written back: %s", out)
	}
}

func TestRulesetMerge(t *testing.T) {
	speed := 8.0
	base := Ruleset{
		Waypoints: []Waypoint{{Lat: 1, Lon: 1}},
		Formation: "grid",
		Speed:     &speed,
		Extra:     map[string]json.RawMessage{"note": json.RawMessage(`"keep"`)},
	}

	formation := "wedge"
	merged := base.Merge(RulesetPatch{Formation: &formation})
	if merged.Formation != "wedge" {
		t.Errorf("formation = %s", merged.Formation)
	}
	if len(merged.Waypoints) != 1 || *merged.Speed != 8 || string(merged.Extra["note"]) != `"keep"` {
		t.Errorf("unrelated fields not carried over: %+v", merged)
	}

	merged.Extra["note"] = json.RawMessage(`"changed"`)
	if string(base.Extra["note"]) != `"keep"` {
		t.Error("merge must not alias the original extra map")
	}

	wp := []Waypoint{{Lat: 5, Lon: 5}, {Lat: 6, Lon: 6}}
	again := base.Merge(RulesetPatch{Waypoints: wp})
	if len(again.Waypoints) != 2 || again.Formation != "grid" {
		t.Errorf("waypoint patch not applied: %+v", again)
	}
}

func TestRulesetMergeClearsWaypoints(t *testing.T) {
	base := Ruleset{Waypoints: []Waypoint{{Lat: 1, Lon: 1}}, Formation: "grid"}

	var patch RulesetPatch
	if err := json.Unmarshal([]byte(`{"waypoints":[]}`), &patch); err != nil {
		t.Fatal(err)
	}
	if patch.IsEmpty() {
		t.Fatal("an empty waypoint list is a change, not an empty patch")
	}

	merged := base.Merge(patch)
	if merged.Waypoints == nil || len(merged.Waypoints) != 0 {
		t.Fatalf("waypoints = %#v, want an empty list", merged.Waypoints)
	}
	out, err := json.Marshal(merged)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"formation":"grid","waypoints":[]}` {
		t.Errorf("stored blob = %s", out)
	}

	var reread Ruleset
	if err := json.Unmarshal(out, &reread); err != nil {
		t.Fatal(err)
	}
	if reread.Waypoints == nil {
		t.Error("cleared waypoints must survive a round trip as []")
	}

	// An absent key leaves the stored route alone.
	var absent RulesetPatch
	json.Unmarshal([]byte(`{"speed":4}`), &absent)
	if got := base.Merge(absent); len(got.Waypoints) != 1 {
		t.Errorf("absent waypoints changed the route: %+v", got.Waypoints)
	}
}

func TestRulesetPatchValidate(t *testing.T) {
	neg := -1.0
	tests := []struct {
		name    string
		patch   RulesetPatch
		wantErr bool
	}{
		{"empty", RulesetPatch{}, false},
		{"negative speed", RulesetPatch{Speed: &neg}, true},
		{"lat out of range", RulesetPatch{Waypoints: []Waypoint{{Lat: -91}}}, true},
		{"lon out of range", RulesetPatch{Waypoints: []Waypoint{{Lon: 181}}}, true},
		{"valid", RulesetPatch{Waypoints: []Waypoint{{Lat: 45, Lon: -120, Alt: 80}}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.patch.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSeverityLevel(t *testing.T) {
	if !(SeverityCritical.Level() > SeverityWarning.Level() && SeverityWarning.Level() > SeverityInfo.Level()) {
		t.Error("severity levels out of order")
	}
	if Severity("loud").Level() != 0 {
		t.Error("unknown severity should have level 0")
	}
}

func TestSwarmConfigDroneIDs(t *testing.T) {
	cfg := SwarmConfig{Roles: []SwarmRole{{DroneID: "b"}, {DroneID: "a"}}}
	ids := cfg.DroneIDs()
	if len(ids) != 2 || ids[0] != "b" || ids[1] != "a" {
		t.Errorf("DroneIDs should keep role order, got %v", ids)
	}
}

func TestModelMetricsKeyIsUnambiguous(t *testing.T) {
	if got := ModelMetricsKey("yolov8", "seg-1"); got != "model_metrics:yolov8:seg-1" {
		t.Errorf("plain key = %q", got)
	}

	pairs := [][2]string{
		{"yolo:v8", "seg"},
		{"yolo", "v8:seg"},
		{"yolo%3Av8", "seg"},
	}
	seen := make(map[string][2]string)
	for _, p := range pairs {
		k := ModelMetricsKey(p[0], p[1])
		if prev, ok := seen[k]; ok {
			t.Errorf("%v and %v share key %q", prev, p, k)
		}
		seen[k] = p
	}
}
