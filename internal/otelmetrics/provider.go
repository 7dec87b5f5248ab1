package otelmetrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MeterName is the instrumentation scope name for every instrument in this
// package.
const MeterName = "agentos"

// Config selects the metrics exporter; defaulting to stdout for local runs
// matches spec §4.12.
type Config struct {
	Enabled  bool
	Exporter string // "stdout" (default) or "none"
}

// Provider wraps an OTel MeterProvider with cleanup and the pre-built
// Metrics instrument set.
type Provider struct {
	MeterProvider metric.MeterProvider
	Metrics       *Metrics
	shutdown      func(context.Context) error
}

// Init builds the meter provider and instrument set. A disabled config
// returns a no-op provider so the orchestrator never has to branch on
// whether telemetry is on.
func Init(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		mp := noop.NewMeterProvider()
		m, err := New(mp.Meter(MeterName))
		if err != nil {
			return nil, err
		}
		return &Provider{MeterProvider: mp, Metrics: m, shutdown: func(context.Context) error { return nil }}, nil
	}

	reader, err := newReader(cfg)
	if err != nil {
		return nil, fmt.Errorf("otelmetrics: create reader: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := New(mp.Meter(MeterName))
	if err != nil {
		return nil, fmt.Errorf("otelmetrics: create instruments: %w", err)
	}

	return &Provider{
		MeterProvider: mp,
		Metrics:       m,
		shutdown:      mp.Shutdown,
	}, nil
}

// Shutdown flushes and releases the underlying meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.shutdown == nil {
		return nil
	}
	return p.shutdown(ctx)
}

func newReader(cfg Config) (sdkmetric.Reader, error) {
	switch cfg.Exporter {
	case "stdout", "":
		exp, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		return sdkmetric.NewPeriodicReader(exp), nil
	case "none":
		return sdkmetric.NewManualReader(), nil
	default:
		return nil, fmt.Errorf("unknown exporter: %s (supported: stdout, none)", cfg.Exporter)
	}
}
