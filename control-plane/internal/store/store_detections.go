package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pilot-net/fleet-control/control-plane/internal/service"
	"github.com/pilot-net/fleet-control/pkg/types"
)

// =============================================================================
// DETECTIONS
// =============================================================================

var detectionColumns = []string{
	"id", "video_segment_id", "detected_at", "class", "confidence",
	"bbox", "tracking_id", "geo", "model_id",
}

// GetVideoSegment resolves a segment to its drone and mission, or nil.
func (s *Store) GetVideoSegment(ctx context.Context, id string) (*types.VideoSegment, error) {
	var seg types.VideoSegment
	err := s.pool.QueryRow(ctx, `
		SELECT id, drone_id, mission_id FROM video_segments WHERE id = $1
	`, id).Scan(&seg.ID, &seg.DroneID, &seg.MissionID)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying video segment: %w", err)
	}
	return &seg, nil
}

// RecordDetectionBatch writes a detection batch, its optional critical alert
// and the model metrics upsert in one transaction. Any failure rolls back
// all three.
func (s *Store) RecordDetectionBatch(ctx context.Context, batch service.DetectionBatch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// The segment must still exist when the batch lands.
	var exists bool
	err = tx.QueryRow(ctx, `
		SELECT true FROM video_segments WHERE id = $1 FOR SHARE
	`, batch.Segment.ID).Scan(&exists)
	if isNoRows(err) {
		return service.NotFoundError("video_segment", batch.Segment.ID)
	}
	if err != nil {
		return fmt.Errorf("locking video segment: %w", err)
	}

	rows := make([][]any, len(batch.Detections))
	for i, d := range batch.Detections {
		bbox, err := marshalJSON(d.BBox, "bbox")
		if err != nil {
			return err
		}
		var geo []byte
		if d.Geo != nil {
			if geo, err = marshalJSON(d.Geo, "geo"); err != nil {
				return err
			}
		}
		rows[i] = []any{
			d.ID, d.VideoSegmentID, d.Timestamp, d.Class, d.Confidence,
			bbox, d.TrackingID, geo, d.ModelID,
		}
	}

	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{"detections"},
		detectionColumns,
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("copying detections: %w", err)
	}
	if int(n) != len(rows) {
		return fmt.Errorf("copying detections: wrote %d of %d rows", n, len(rows))
	}

	if batch.Alert != nil {
		if err := insertEvent(ctx, tx, *batch.Alert); err != nil {
			return err
		}
	}

	if err := putKV(ctx, tx, types.ModelMetricsKey(batch.Metrics.ModelName, batch.Metrics.VideoSegmentID),
		batch.Metrics, batch.Metrics.Timestamp); err != nil {
		return fmt.Errorf("upserting model metrics: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing detection batch: %w", err)
	}
	return nil
}

// GetModelMetrics returns the latest metrics for a (model, segment) pair, or nil.
func (s *Store) GetModelMetrics(ctx context.Context, modelName, segmentID string) (*types.ModelMetrics, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `
		SELECT value FROM kv_store WHERE key = $1
	`, types.ModelMetricsKey(modelName, segmentID)).Scan(&raw)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying model metrics: %w", err)
	}

	var m types.ModelMetrics
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decoding model metrics: %w", err)
	}
	return &m, nil
}
