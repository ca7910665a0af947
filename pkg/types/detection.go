package types

import (
	"fmt"
	"net/url"
	"time"
)

// =============================================================================
// DETECTIONS
// =============================================================================

// BBox is a bounding box in frame coordinates.
type BBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Detection is a single perception-model output tied to a video segment.
type Detection struct {
	ID             string    `json:"id,omitempty"`
	VideoSegmentID string    `json:"video_segment_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Class          string    `json:"class"`
	Confidence     float64   `json:"confidence"`
	BBox           BBox      `json:"bbox"`
	TrackingID     *string   `json:"tracking_id,omitempty"`
	Geo            *GeoPoint `json:"geo,omitempty"`
	ModelID        string    `json:"model_id,omitempty"` // name:version, stamped at insert
}

// Validate checks a detection as received from a perception pipeline.
func (d *Detection) Validate() error {
	if d.Class == "" {
		return fmt.Errorf("class is required")
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("confidence must be within [0,1], got %v", d.Confidence)
	}
	if d.BBox.W < 0 || d.BBox.H < 0 {
		return fmt.Errorf("bbox width and height must not be negative")
	}
	if d.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

// ModelInfo identifies the perception model that produced a batch.
type ModelInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Task    string `json:"task,omitempty"` // e.g. detection, segmentation
}

// Identity returns the name:version string recorded on every detection.
func (m ModelInfo) Identity() string {
	return m.Name + ":" + m.Version
}

// Validate checks that the model is identified.
func (m ModelInfo) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("model_info.name is required")
	}
	if m.Version == "" {
		return fmt.Errorf("model_info.version is required")
	}
	return nil
}

// VideoSegment is a recorded stretch of video from one drone during a mission.
type VideoSegment struct {
	ID        string `json:"id"`
	DroneID   string `json:"drone_id"`
	MissionID string `json:"mission_id"`
}

// ModelMetrics is the per-run performance summary of a model on a segment.
// It is upserted on every batch, keyed by (ModelName, VideoSegmentID).
type ModelMetrics struct {
	ModelName          string         `json:"model_name"`
	ModelVersion       string         `json:"model_version"`
	VideoSegmentID     string         `json:"video_segment_id"`
	TotalDetections    int            `json:"total_detections"`
	AverageConfidence  float64        `json:"average_confidence"`
	UniqueClasses      int            `json:"unique_classes"`
	CriticalDetections int            `json:"critical_detections"`
	LowConfidenceCount int            `json:"low_confidence_count"`
	ClassCounts        map[string]int `json:"class_counts,omitempty"`
	Timestamp          time.Time      `json:"timestamp"`
}

// ModelMetricsKey is the key-value row key for a (model, segment) pair.
// Both parts are query-escaped, so neither can contain the ':' separator.
func ModelMetricsKey(modelName, segmentID string) string {
	return "model_metrics:" + url.QueryEscape(modelName) + ":" + url.QueryEscape(segmentID)
}
