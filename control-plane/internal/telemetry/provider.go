// Package telemetry installs the OpenTelemetry metric SDK for the server.
//
// Domain counters are created against the global meter provider. Until New
// is called with telemetry enabled they go to the no-op provider; afterwards
// they are exported periodically as JSON to the configured output.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/pilot-net/fleet-control/control-plane/internal/config"
)

// Provider owns the installed meter provider and its output.
type Provider struct {
	mp  *sdkmetric.MeterProvider
	out io.Closer
}

// New builds a meter provider from cfg and installs it globally.
// A disabled config returns a provider that exports nothing.
func New(ctx context.Context, cfg config.TelemetryConfig, version string) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{}, nil
	}

	w, closer, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		closeQuietly(closer)
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		closeQuietly(closer)
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(cfg.Interval),
		)),
	)
	otel.SetMeterProvider(mp)

	return &Provider{mp: mp, out: closer}, nil
}

// Enabled reports whether metrics are being exported.
func (p *Provider) Enabled() bool {
	return p.mp != nil
}

// MeterProvider returns the installed provider, or a no-op one when disabled.
func (p *Provider) MeterProvider() metric.MeterProvider {
	if p.mp == nil {
		return noop.NewMeterProvider()
	}
	return p.mp
}

// Shutdown flushes pending measurements and closes the output.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.mp == nil {
		return nil
	}
	err := p.mp.Shutdown(ctx)
	if p.out != nil {
		if cerr := p.out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		return fmt.Errorf("metric shutdown failed: %w", err)
	}
	return nil
}

func openOutput(name string) (io.Writer, io.Closer, error) {
	switch name {
	case "", "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	}
	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening telemetry output: %w", err)
	}
	return f, f, nil
}

func closeQuietly(c io.Closer) {
	if c != nil {
		c.Close()
	}
}
