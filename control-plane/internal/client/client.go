// Package client provides the control plane API client for operators.
//
// # Operations
//
// - ControlMission: Launch, pause, resume, abort or re-plan a mission
// - CoordinateSwarm: Publish a swarm formation
// - IngestDetections: Submit a detection batch
// - ListEvents: Read the event log
// - Registry calls: CreateMission, RegisterDrone, AssignDrone, RegisterVideoSegment
//
// Every mutating call carries an Idempotency-Key, generated per call, and is
// retried with the same key on transport errors and 503 responses.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/pilot-net/fleet-control/control-plane/internal/config"
	"github.com/pilot-net/fleet-control/control-plane/internal/service"
	"github.com/pilot-net/fleet-control/pkg/types"
)

// Client communicates with the control plane.
type Client struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	operatorID string
	retries    int
	backoff    time.Duration
}

// Config for the client.
type Config struct {
	BaseURL            string
	APIKey             string // operator API key, sent as a bearer token
	OperatorID         string
	HTTPClient         *http.Client
	InsecureSkipVerify bool
	Retries            int           // extra attempts for mutating calls (default 2)
	Backoff            time.Duration // delay before the first retry, doubled each time (default 500ms)
}

// NewClient creates a new control plane client.
func NewClient(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		transport := &http.Transport{}
		if cfg.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		cfg.HTTPClient = &http.Client{
			Timeout:   config.DefaultHTTPTimeout,
			Transport: transport,
		}
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	} else if cfg.Retries == 0 {
		cfg.Retries = 2
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: cfg.HTTPClient,
		apiKey:     cfg.APIKey,
		operatorID: cfg.OperatorID,
		retries:    cfg.Retries,
		backoff:    cfg.Backoff,
	}
}

// APIError is a non-2xx response from the control plane.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// =============================================================================
// MISSIONS
// =============================================================================

// MissionControlRequest is sent to change a mission's state.
type MissionControlRequest struct {
	MissionID  string              `json:"mission_id"`
	Action     string              `json:"action"`
	OperatorID string              `json:"operator_id,omitempty"`
	Payload    *types.RulesetPatch `json:"payload,omitempty"`
}

// ControlMission applies an action to a mission.
func (c *Client) ControlMission(ctx context.Context, req MissionControlRequest) (*service.MissionControlResult, error) {
	if req.OperatorID == "" {
		req.OperatorID = c.operatorID
	}
	var result service.MissionControlResult
	if err := c.mutate(ctx, "POST", "/api/v1/missions/control", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetMission fetches a mission and its assigned drones.
func (c *Client) GetMission(ctx context.Context, id string) (*types.MissionDetail, error) {
	var result types.MissionDetail
	if err := c.get(ctx, "/api/v1/missions/"+url.PathEscape(id), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// =============================================================================
// SWARMS
// =============================================================================

// CoordinateSwarm publishes a swarm formation.
func (c *Client) CoordinateSwarm(ctx context.Context, cfg types.SwarmConfig) (*service.SwarmResult, error) {
	var result service.SwarmResult
	if err := c.mutate(ctx, "POST", "/api/v1/swarms/coordinate", cfg, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetSwarm fetches the current configuration of a swarm.
func (c *Client) GetSwarm(ctx context.Context, id string) (*types.SwarmConfig, error) {
	var result types.SwarmConfig
	if err := c.get(ctx, "/api/v1/swarms/"+url.PathEscape(id), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// =============================================================================
// DETECTIONS
// =============================================================================

// DetectionBatch is one segment's worth of detector output.
type DetectionBatch struct {
	VideoSegmentID string            `json:"video_segment_id"`
	Detections     []types.Detection `json:"detections"`
	ModelInfo      types.ModelInfo   `json:"model_info"`
}

// IngestDetections submits a detection batch.
func (c *Client) IngestDetections(ctx context.Context, batch DetectionBatch) (*service.DetectionResult, error) {
	var result service.DetectionResult
	if err := c.mutate(ctx, "POST", "/api/v1/detections", batch, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetModelMetrics fetches the aggregate for a model on a segment.
func (c *Client) GetModelMetrics(ctx context.Context, model, segmentID string) (*types.ModelMetrics, error) {
	path := fmt.Sprintf("/api/v1/models/%s/segments/%s/metrics", url.PathEscape(model), url.PathEscape(segmentID))
	var result types.ModelMetrics
	if err := c.get(ctx, path, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// =============================================================================
// EVENTS
// =============================================================================

// ListEvents reads the event log, newest first.
func (c *Client) ListEvents(ctx context.Context, filter types.EventFilter) ([]types.Event, error) {
	q := url.Values{}
	if filter.MissionID != "" {
		q.Set("mission_id", filter.MissionID)
	}
	if filter.DroneID != "" {
		q.Set("drone_id", filter.DroneID)
	}
	if filter.Type != "" {
		q.Set("type", string(filter.Type))
	}
	if filter.Severity != "" {
		q.Set("severity", string(filter.Severity))
	}
	if filter.Since != nil {
		q.Set("since", filter.Since.UTC().Format(time.RFC3339))
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}

	path := "/api/v1/events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var result struct {
		Events []types.Event `json:"events"`
	}
	if err := c.get(ctx, path, &result); err != nil {
		return nil, err
	}
	return result.Events, nil
}

// =============================================================================
// REGISTRY
// =============================================================================

// CreateMission creates a mission in planning. An empty ID is generated by
// the server.
func (c *Client) CreateMission(ctx context.Context, id, name string, ruleset types.Ruleset) (*types.Mission, error) {
	req := map[string]any{"id": id, "name": name, "ruleset": ruleset}
	var result types.Mission
	if err := c.mutate(ctx, "POST", "/api/v1/missions", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RegisterDrone creates or updates a drone.
func (c *Client) RegisterDrone(ctx context.Context, id, name string, status types.DroneStatus) (*types.Drone, error) {
	req := map[string]any{"name": name, "status": status}
	var result types.Drone
	if err := c.mutate(ctx, "PUT", "/api/v1/drones/"+url.PathEscape(id), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AssignDrone assigns a drone to a mission.
func (c *Client) AssignDrone(ctx context.Context, missionID, droneID, role string) error {
	req := map[string]string{"drone_id": droneID, "role": role}
	path := fmt.Sprintf("/api/v1/missions/%s/assignments", url.PathEscape(missionID))
	return c.mutate(ctx, "POST", path, req, nil)
}

// RegisterVideoSegment records a video segment so detections can reference it.
func (c *Client) RegisterVideoSegment(ctx context.Context, seg types.VideoSegment) (*types.VideoSegment, error) {
	var result types.VideoSegment
	if err := c.mutate(ctx, "POST", "/api/v1/video-segments", seg, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Health checks the control plane's liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/api/v1/health", nil)
}

// =============================================================================
// TRANSPORT
// =============================================================================

func (c *Client) get(ctx context.Context, path string, out any) error {
	resp, err := c.doRequest(ctx, "GET", path, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.decode(resp, out)
}

// mutate sends a body under a fresh idempotency key and retries with the same
// key, so a retry after a lost response is replayed instead of re-applied.
func (c *Client) mutate(ctx context.Context, method, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	key := uuid.New().String()
	delay := c.backoff

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		resp, err := c.doRequest(ctx, method, path, data, key)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			lastErr = err
			continue
		}

		err = c.decode(resp, out)
		resp.Body.Close()
		if IsStatus(err, http.StatusServiceUnavailable) {
			lastErr = err
			continue
		}
		return err
	}
	return fmt.Errorf("giving up after %d attempts: %w", c.retries+1, lastErr)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte, idempotencyKey string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "fleetctl/1.0")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.operatorID != "" {
		req.Header.Set("X-Operator-ID", c.operatorID)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	return c.httpClient.Do(req)
}

func (c *Client) decode(resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.readError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// readError extracts an error message from a failed response.
func (c *Client) readError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	var payload struct {
		Error string `json:"error"`
	}
	msg := string(bytes.TrimSpace(body))
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
