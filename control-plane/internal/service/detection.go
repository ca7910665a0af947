package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pilot-net/fleet-control/control-plane/internal/config"
	"github.com/pilot-net/fleet-control/pkg/types"
)

// =============================================================================
// DETECTION INGESTION & ALERT PIPELINE
// =============================================================================

// DetectionBatchRequest is a batch of detections from one video segment.
type DetectionBatchRequest struct {
	VideoSegmentID string
	Detections     []types.Detection
	Model          types.ModelInfo
	IdempotencyKey string
}

// DetectionResult is returned after a batch is stored.
type DetectionResult struct {
	VideoSegmentID      string             `json:"video_segment_id"`
	ProcessedDetections int                `json:"processed_detections"`
	CriticalAlerts      int                `json:"critical_alerts"`
	Model               types.ModelInfo    `json:"model"`
	Metrics             types.ModelMetrics `json:"metrics"`
	AlertEventID        string             `json:"alert_event_id,omitempty"`
	Timestamp           time.Time          `json:"timestamp"`
}

// DetectionBatch is everything one ingestion writes. The store applies the
// detection inserts, the optional alert event and the metrics upsert as a
// single unit of work.
type DetectionBatch struct {
	Segment    types.VideoSegment
	Detections []types.Detection
	Alert      *types.Event
	Metrics    types.ModelMetrics
}

// IngestDetections stores a detection batch, raises at most one critical alert
// and upserts the model metrics for the (model, segment) pair.
func (s *Service) IngestDetections(ctx context.Context, req DetectionBatchRequest) (*DetectionResult, error) {
	if req.VideoSegmentID == "" {
		return nil, ValidationError("video_segment_id is required")
	}
	if len(req.Detections) == 0 {
		return nil, ValidationError("detections must not be empty")
	}
	if len(req.Detections) > config.MaxDetectionBatchSize {
		return nil, ValidationError("detection batch too large: %d (max %d)", len(req.Detections), config.MaxDetectionBatchSize)
	}
	if err := req.Model.Validate(); err != nil {
		return nil, ValidationError("%v", err)
	}
	for i := range req.Detections {
		if err := req.Detections[i].Validate(); err != nil {
			return nil, ValidationError("detections[%d]: %v", i, err)
		}
	}

	segment, err := s.store.GetVideoSegment(ctx, req.VideoSegmentID)
	if err != nil {
		return nil, classify("resolving video segment", err)
	}
	if segment == nil {
		return nil, NotFoundError("video_segment", req.VideoSegmentID)
	}

	now := s.now().UTC()
	modelID := req.Model.Identity()

	detections := make([]types.Detection, len(req.Detections))
	for i, d := range req.Detections {
		d.ID = uuid.New().String()
		d.VideoSegmentID = segment.ID
		d.ModelID = modelID
		detections[i] = d
	}

	critical := ClassifyCritical(detections)
	metrics := ComputeModelMetrics(req.Model, segment.ID, detections, now)

	batch := DetectionBatch{
		Segment:    *segment,
		Detections: detections,
		Metrics:    metrics,
	}
	if len(critical) > 0 {
		payload := criticalPayload(segment, modelID, critical)
		payload.IdempotencyKey = req.IdempotencyKey
		ev, err := NewCriticalDetectionEvent(segment, payload, now)
		if err != nil {
			return nil, StoreError("building critical detection event", err)
		}
		batch.Alert = &ev
	}

	if err := s.store.RecordDetectionBatch(ctx, batch); err != nil {
		return nil, classify("recording detection batch", err)
	}
	s.tel.ingest(ctx, req.Model.Name, len(detections), len(critical))

	logArgs := []any{
		"video_segment_id", segment.ID,
		"mission_id", segment.MissionID,
		"model", modelID,
		"detections", len(detections),
		"critical", len(critical),
	}
	if len(critical) > 0 {
		s.logger.Warn("critical detections ingested", logArgs...)
	} else {
		s.logger.Debug("detections ingested", logArgs...)
	}

	result := &DetectionResult{
		VideoSegmentID:      segment.ID,
		ProcessedDetections: len(detections),
		CriticalAlerts:      len(critical),
		Model:               req.Model,
		Metrics:             metrics,
		Timestamp:           now,
	}
	if batch.Alert != nil {
		result.AlertEventID = batch.Alert.ID
	}
	return result, nil
}

// GetModelMetrics returns the stored metrics for a (model, segment) pair.
func (s *Service) GetModelMetrics(ctx context.Context, modelName, segmentID string) (*types.ModelMetrics, error) {
	if modelName == "" || segmentID == "" {
		return nil, ValidationError("model name and video segment id are required")
	}
	m, err := s.store.GetModelMetrics(ctx, modelName, segmentID)
	if err != nil {
		return nil, classify("getting model metrics", err)
	}
	if m == nil {
		return nil, NotFoundError("model_metrics", types.ModelMetricsKey(modelName, segmentID))
	}
	return m, nil
}

// IsCritical reports whether a detection is in the critical allow-list and
// above the confidence threshold.
func IsCritical(d types.Detection) bool {
	return config.CriticalClasses[strings.ToLower(d.Class)] && d.Confidence > config.CriticalConfidenceThreshold
}

// IsLowConfidence reports whether a detection counts as low-confidence or
// anomalous for metrics. It never raises an event on its own.
func IsLowConfidence(d types.Detection) bool {
	return d.Confidence < config.LowConfidenceThreshold ||
		strings.Contains(strings.ToLower(d.Class), "anomaly")
}

// ClassifyCritical returns the critical detections of a batch, in batch order.
func ClassifyCritical(detections []types.Detection) []types.Detection {
	var out []types.Detection
	for _, d := range detections {
		if IsCritical(d) {
			out = append(out, d)
		}
	}
	return out
}

// ComputeModelMetrics summarizes one batch for the (model, segment) pair.
func ComputeModelMetrics(model types.ModelInfo, segmentID string, detections []types.Detection, at time.Time) types.ModelMetrics {
	m := types.ModelMetrics{
		ModelName:       model.Name,
		ModelVersion:    model.Version,
		VideoSegmentID:  segmentID,
		TotalDetections: len(detections),
		ClassCounts:     make(map[string]int),
		Timestamp:       at,
	}
	var sum float64
	for _, d := range detections {
		sum += d.Confidence
		m.ClassCounts[d.Class]++
		if IsCritical(d) {
			m.CriticalDetections++
		}
		if IsLowConfidence(d) {
			m.LowConfidenceCount++
		}
	}
	if len(detections) > 0 {
		m.AverageConfidence = round4(sum / float64(len(detections)))
	}
	m.UniqueClasses = len(m.ClassCounts)
	return m
}

func criticalPayload(segment *types.VideoSegment, modelID string, critical []types.Detection) types.CriticalDetectionPayload {
	seen := make(map[string]bool)
	var classes []string
	var maxConf float64
	for _, d := range critical {
		if !seen[d.Class] {
			seen[d.Class] = true
			classes = append(classes, d.Class)
		}
		if d.Confidence > maxConf {
			maxConf = d.Confidence
		}
	}
	sort.Strings(classes)
	return types.CriticalDetectionPayload{
		VideoSegmentID: segment.ID,
		MissionID:      segment.MissionID,
		Count:          len(critical),
		Classes:        classes,
		MaxConfidence:  maxConf,
		Model:          modelID,
	}
}

func round4(f float64) float64 {
	return float64(int64(f*10000+0.5)) / 10000
}
