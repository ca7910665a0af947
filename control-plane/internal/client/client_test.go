package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pilot-net/fleet-control/pkg/types"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:    srv.URL,
		APIKey:     "s3cret",
		OperatorID: "op-7",
		Backoff:    time.Millisecond,
	})
}

func TestControlMission(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/api/v1/missions/control" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer s3cret" {
			t.Errorf("Authorization = %q", got)
		}
		if r.Header.Get("Idempotency-Key") == "" {
			t.Error("expected an idempotency key")
		}

		var req MissionControlRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.OperatorID != "op-7" {
			t.Errorf("operator_id = %q, want default from config", req.OperatorID)
		}

		w.Write([]byte(`{"success":true,"mission_id":"m-1","action":"launch","old_status":"planning","new_status":"active","drones_updated":3}`))
	})

	result, err := c.ControlMission(context.Background(), MissionControlRequest{MissionID: "m-1", Action: "launch"})
	if err != nil {
		t.Fatalf("ControlMission: %v", err)
	}
	if result.NewStatus != types.MissionActive {
		t.Errorf("NewStatus = %s", result.NewStatus)
	}
	if result.DronesUpdated == nil || *result.DronesUpdated != 3 {
		t.Errorf("DronesUpdated = %v", result.DronesUpdated)
	}
}

func TestRetriesKeepIdempotencyKey(t *testing.T) {
	var (
		mu   sync.Mutex
		keys []string
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		n := len(keys)
		mu.Unlock()

		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"idempotency store unavailable"}`))
			return
		}
		w.Write([]byte(`{"success":true,"video_segment_id":"s-1","processed_detections":2,"critical_alerts":0}`))
	})

	result, err := c.IngestDetections(context.Background(), DetectionBatch{VideoSegmentID: "s-1"})
	if err != nil {
		t.Fatalf("IngestDetections: %v", err)
	}
	if result.ProcessedDetections != 2 {
		t.Errorf("ProcessedDetections = %d", result.ProcessedDetections)
	}
	if len(keys) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(keys))
	}
	if keys[0] != keys[1] || keys[1] != keys[2] {
		t.Errorf("retries must reuse the key: %v", keys)
	}
}

func TestErrorsAreNotRetried(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"cannot pause mission in status planning"}`))
	})

	_, err := c.ControlMission(context.Background(), MissionControlRequest{MissionID: "m-1", Action: "pause"})
	if !IsStatus(err, http.StatusConflict) {
		t.Fatalf("expected 409 APIError, got %v", err)
	}
	if apiErr := err.(*APIError); apiErr.Message != "cannot pause mission in status planning" {
		t.Errorf("Message = %q", apiErr.Message)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetriesExhausted(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := c.AssignDrone(context.Background(), "m-1", "d-1", "camera")
	if !IsStatus(err, http.StatusServiceUnavailable) {
		t.Errorf("expected wrapped 503, got %v", err)
	}
}

func TestListEventsQuery(t *testing.T) {
	since := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("mission_id") != "m-1" || q.Get("severity") != "critical" || q.Get("limit") != "10" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if q.Get("since") != "2026-03-01T12:00:00Z" {
			t.Errorf("since = %q", q.Get("since"))
		}
		if r.Header.Get("Idempotency-Key") != "" {
			t.Error("reads must not carry an idempotency key")
		}
		w.Write([]byte(`{"events":[{"id":"e-1","type":"CRITICAL_DETECTION","severity":"critical"}],"count":1}`))
	})

	events, err := c.ListEvents(context.Background(), types.EventFilter{
		MissionID: "m-1",
		Severity:  types.SeverityCritical,
		Since:     &since,
		Limit:     10,
	})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 || events[0].Type != types.EventCriticalDetection {
		t.Errorf("unexpected events: %+v", events)
	}
}

func TestGetMissionNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/missions/a%2Fb" && r.URL.RawPath != "/api/v1/missions/a%2Fb" {
			t.Errorf("id must be path-escaped, got %s", r.URL.RawPath)
		}
		http.Error(w, "not found", http.StatusNotFound)
	})

	_, err := c.GetMission(context.Background(), "a/b")
	if !IsStatus(err, http.StatusNotFound) {
		t.Errorf("expected 404, got %v", err)
	}
}
