package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/pilot-net/fleet-control/control-plane/internal/service"

// telemetry holds the domain counters. By default they report through the
// global OTel meter provider, which is a no-op until the process installs an SDK.
type telemetry struct {
	transitions  metric.Int64Counter
	rejections   metric.Int64Counter
	swarmUpserts metric.Int64Counter
	detections   metric.Int64Counter
	critical     metric.Int64Counter
}

func newTelemetry(mp metric.MeterProvider, logger *slog.Logger) *telemetry {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	t, err := buildTelemetry(mp.Meter(instrumentationName))
	if err != nil {
		logger.Warn("failed to create service instruments, using no-op meter", "error", err)
		t, _ = buildTelemetry(noop.NewMeterProvider().Meter(instrumentationName))
	}
	return t
}

func buildTelemetry(m metric.Meter) (*telemetry, error) {
	var (
		t   telemetry
		err error
	)
	if t.transitions, err = m.Int64Counter("mission.transitions",
		metric.WithDescription("Successful mission control actions")); err != nil {
		return nil, err
	}
	if t.rejections, err = m.Int64Counter("mission.transitions.rejected",
		metric.WithDescription("Mission control actions rejected by their guard")); err != nil {
		return nil, err
	}
	if t.swarmUpserts, err = m.Int64Counter("swarm.config.upserts",
		metric.WithDescription("Swarm configurations written")); err != nil {
		return nil, err
	}
	if t.detections, err = m.Int64Counter("detections.ingested",
		metric.WithDescription("Detections persisted")); err != nil {
		return nil, err
	}
	if t.critical, err = m.Int64Counter("detections.critical",
		metric.WithDescription("Detections matching the critical allow-list")); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *telemetry) transition(ctx context.Context, action string, ok bool) {
	attrs := metric.WithAttributes(attribute.String("action", action))
	if ok {
		t.transitions.Add(ctx, 1, attrs)
		return
	}
	t.rejections.Add(ctx, 1, attrs)
}

func (t *telemetry) swarm(ctx context.Context, formation string) {
	t.swarmUpserts.Add(ctx, 1, metric.WithAttributes(attribute.String("formation", formation)))
}

func (t *telemetry) ingest(ctx context.Context, model string, total, critical int) {
	attrs := metric.WithAttributes(attribute.String("model", model))
	t.detections.Add(ctx, int64(total), attrs)
	if critical > 0 {
		t.critical.Add(ctx, int64(critical), attrs)
	}
}
