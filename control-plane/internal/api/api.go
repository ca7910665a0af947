// Package api provides HTTP handlers for the control plane.
//
// # Endpoints
//
// Components:
//   - POST /api/v1/missions/control - Apply a mission action (launch, pause, resume, abort, update_waypoints)
//   - POST /api/v1/swarms/coordinate - Store a swarm configuration and generate formation commands
//   - POST /api/v1/detections - Ingest a detection batch
//
// Reads:
//   - GET /api/v1/missions/{id} - Mission with assignments
//   - GET /api/v1/swarms/{id} - Current swarm configuration
//   - GET /api/v1/events - Event log (mission_id, drone_id, type, severity, since, limit)
//   - GET /api/v1/models/{name}/segments/{segment}/metrics - Model metrics for a segment
//
// Registry:
//   - POST /api/v1/missions - Create a planning mission
//   - PUT  /api/v1/drones/{id} - Register or update a drone
//   - POST /api/v1/missions/{id}/assignments - Assign a drone to a mission
//   - POST /api/v1/video-segments - Register a video segment
//
// Health:
//   - GET /api/v1/health - Liveness
//   - GET /api/v1/health/infrastructure - Process, database and cache health
//
// Every POST endpoint accepts an Idempotency-Key header. Keys are held in
// Redis when configured and in process memory otherwise.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/pilot-net/fleet-control/control-plane/internal/cache"
	"github.com/pilot-net/fleet-control/control-plane/internal/config"
	"github.com/pilot-net/fleet-control/control-plane/internal/service"
	"github.com/pilot-net/fleet-control/pkg/types"
)

// HealthReporter reports infrastructure health.
type HealthReporter interface {
	Healthy(ctx context.Context) error
	GetInfrastructureHealth(ctx context.Context) (*types.InfrastructureHealth, error)
}

// Options configures optional server collaborators.
type Options struct {
	Health      HealthReporter // nil disables the infrastructure endpoint
	Idempotency Idempotency    // nil keeps keys in process memory
	IngestLimit rate.Limit     // detection batches per second
	IngestBurst int
	Auth        config.AuthConfig
}

// Server is the HTTP API server.
type Server struct {
	svc     *service.Service
	health  HealthReporter
	idem    Idempotency
	limiter *rate.Limiter
	auth    config.AuthConfig
	logger  *slog.Logger
	mux     *http.ServeMux
}

// NewServer creates a new API server.
func NewServer(svc *service.Service, opts Options, logger *slog.Logger) *Server {
	if opts.IngestLimit <= 0 {
		opts.IngestLimit = rate.Limit(config.DefaultIngestRateLimit)
	}
	if opts.IngestBurst <= 0 {
		opts.IngestBurst = config.DefaultIngestBurst
	}
	if opts.Idempotency == nil {
		opts.Idempotency = cache.NewLocal(config.DefaultLocalIdempotencyKeys)
	}
	s := &Server{
		svc:     svc,
		health:  opts.Health,
		idem:    opts.Idempotency,
		limiter: rate.NewLimiter(opts.IngestLimit, opts.IngestBurst),
		auth:    opts.Auth,
		logger:  logger,
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Mux returns the underlying ServeMux for registering additional routes.
func (s *Server) Mux() *http.ServeMux {
	return s.mux
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Add CORS headers
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Encoding, Authorization, Idempotency-Key, X-Operator-ID")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	start := time.Now()
	s.mux.ServeHTTP(w, r)
	s.logger.Debug("request",
		"method", r.Method,
		"path", r.URL.Path,
		"duration", time.Since(start))
}

func (s *Server) registerRoutes() {
	operatorAuth := s.OperatorAuthMiddleware()

	// Health
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/health/infrastructure", s.handleInfrastructureHealth)

	// Components
	s.mux.HandleFunc("POST /api/v1/missions/control",
		wrapHandler(s.idempotent("mission_control", s.handleMissionControl), operatorAuth))
	s.mux.HandleFunc("POST /api/v1/swarms/coordinate",
		wrapHandler(s.idempotent("swarm_coordinate", s.handleSwarmCoordinate), operatorAuth))
	s.mux.HandleFunc("POST /api/v1/detections",
		s.rateLimited(s.idempotent("detections", s.handleIngestDetections)))

	// Reads
	s.mux.HandleFunc("GET /api/v1/missions/{id}", s.handleGetMission)
	s.mux.HandleFunc("GET /api/v1/swarms/{id}", s.handleGetSwarm)
	s.mux.HandleFunc("GET /api/v1/events", s.handleListEvents)
	s.mux.HandleFunc("GET /api/v1/models/{name}/segments/{segment}/metrics", s.handleGetModelMetrics)

	// Registry
	s.mux.HandleFunc("POST /api/v1/missions",
		wrapHandler(s.idempotent("mission_create", s.handleCreateMission), operatorAuth))
	s.mux.HandleFunc("PUT /api/v1/drones/{id}", wrapHandler(s.handleRegisterDrone, operatorAuth))
	s.mux.HandleFunc("POST /api/v1/missions/{id}/assignments",
		wrapHandler(s.idempotent("assignment", s.handleAssignDrone), operatorAuth))
	s.mux.HandleFunc("POST /api/v1/video-segments",
		wrapHandler(s.idempotent("video_segment", s.handleRegisterVideoSegment), operatorAuth))
}

// =============================================================================
// HEALTH
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if s.health != nil {
		if err := s.health.Healthy(r.Context()); err != nil {
			s.logger.Warn("health check failed", "error", err)
			status = "unavailable"
			code = http.StatusServiceUnavailable
		}
	}
	s.writeJSON(w, code, map[string]string{
		"status": status,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleInfrastructureHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		s.writeError(w, http.StatusServiceUnavailable, "metrics collector not initialized")
		return
	}

	health, err := s.health.GetInfrastructureHealth(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to get infrastructure health: "+err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, health)
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeSuccess writes v with a top-level "success": true added next to its fields.
func (s *Server) writeSuccess(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("encoding response", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		s.logger.Error("encoding response", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	fields["success"] = json.RawMessage("true")
	s.writeJSON(w, status, fields)
}

// writeServiceError maps a service error kind to an HTTP status.
// Store failures are logged with their cause and reported generically.
func (s *Server) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch service.KindOf(err) {
	case service.KindValidation:
		s.writeError(w, http.StatusBadRequest, err.Error())
	case service.KindNotFound:
		s.writeError(w, http.StatusNotFound, err.Error())
	case service.KindInvalidState:
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error(op+" failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// writeDecodeError reports a body that could not be decoded.
func (s *Server) writeDecodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
}

// responseRecorder captures the status and body written by a handler while
// passing them through to the client.
type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
