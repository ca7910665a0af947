package store

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/pilot-net/fleet-control/pkg/types"
)

func TestBuildEventQuery(t *testing.T) {
	since := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		filter    types.EventFilter
		wantWhere []string
		wantArgs  int
	}{
		{
			name:     "no filter",
			filter:   types.EventFilter{Limit: 50},
			wantArgs: 1,
		},
		{
			name:      "mission and type",
			filter:    types.EventFilter{MissionID: "m-1", Type: types.EventMissionControl, Limit: 10},
			wantWhere: []string{"mission_id = $1", "type = $2"},
			wantArgs:  3,
		},
		{
			name: "everything",
			filter: types.EventFilter{
				MissionID: "m-1",
				DroneID:   "d-1",
				Type:      types.EventCriticalDetection,
				Severity:  types.SeverityWarning,
				Since:     &since,
				Limit:     5,
			},
			wantWhere: []string{
				"mission_id = $1", "drone_id = $2", "type = $3",
				"severity = ANY($4)", "created_at >= $5",
			},
			wantArgs: 6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := buildEventQuery(tt.filter)

			if len(args) != tt.wantArgs {
				t.Fatalf("got %d args, want %d", len(args), tt.wantArgs)
			}
			if args[len(args)-1] != tt.filter.Limit {
				t.Errorf("last arg = %v, want limit %d", args[len(args)-1], tt.filter.Limit)
			}
			if len(tt.wantWhere) == 0 && strings.Contains(query, "WHERE") {
				t.Errorf("unexpected WHERE clause: %s", query)
			}
			for _, cond := range tt.wantWhere {
				if !strings.Contains(query, cond) {
					t.Errorf("query missing %q: %s", cond, query)
				}
			}
			if !strings.Contains(query, "ORDER BY created_at DESC") {
				t.Errorf("events must be newest first: %s", query)
			}
		})
	}
}

func TestSeveritiesAtLeast(t *testing.T) {
	tests := []struct {
		min  types.Severity
		want []string
	}{
		{types.SeverityInfo, []string{"info", "warning", "critical"}},
		{types.SeverityWarning, []string{"warning", "critical"}},
		{types.SeverityCritical, []string{"critical"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.min), func(t *testing.T) {
			if got := severitiesAtLeast(tt.min); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("severitiesAtLeast(%s) = %v, want %v", tt.min, got, tt.want)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
