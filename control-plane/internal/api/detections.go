package api

import (
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/pilot-net/fleet-control/control-plane/internal/config"
	"github.com/pilot-net/fleet-control/control-plane/internal/service"
	"github.com/pilot-net/fleet-control/pkg/types"
)

// =============================================================================
// DETECTION INGESTION
// =============================================================================

type detectionBatchRequest struct {
	VideoSegmentID string            `json:"video_segment_id"`
	Detections     []types.Detection `json:"detections"`
	ModelInfo      types.ModelInfo   `json:"model_info"`
}

func (s *Server) handleIngestDetections(w http.ResponseWriter, r *http.Request) {
	// Perception pipelines may gzip large batches
	var reader io.Reader = http.MaxBytesReader(w, r.Body, config.MaxRequestBodyBytes)
	if r.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(reader)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid gzip")
			return
		}
		defer gz.Close()
		reader = io.LimitReader(gz, config.MaxRequestBodyBytes)
	}

	var req detectionBatchRequest
	if err := json.NewDecoder(reader).Decode(&req); err != nil {
		s.writeDecodeError(w, err)
		return
	}

	result, err := s.svc.IngestDetections(r.Context(), service.DetectionBatchRequest{
		VideoSegmentID: req.VideoSegmentID,
		Detections:     req.Detections,
		Model:          req.ModelInfo,
		IdempotencyKey: r.Header.Get(IdempotencyKeyHeader),
	})
	if err != nil {
		s.writeServiceError(w, "detection ingestion", err)
		return
	}

	s.writeSuccess(w, http.StatusOK, result)
}

func (s *Server) handleGetModelMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.svc.GetModelMetrics(r.Context(), r.PathValue("name"), r.PathValue("segment"))
	if err != nil {
		s.writeServiceError(w, "get model metrics", err)
		return
	}
	s.writeJSON(w, http.StatusOK, m)
}

// =============================================================================
// EVENT LOG
// =============================================================================

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := types.EventFilter{
		MissionID: q.Get("mission_id"),
		DroneID:   q.Get("drone_id"),
		Type:      types.EventType(q.Get("type")),
		Severity:  types.Severity(q.Get("severity")),
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = &since
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	events, err := s.svc.ListEvents(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, "list events", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}
