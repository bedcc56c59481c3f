// Package observability exports simulation metrics over OTLP.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const meterName = "contagion.sim"

// Config configures the metric provider.
type Config struct {
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string        // e.g. "localhost:4317"
	ExportInterval time.Duration // periodic reader interval
	Enabled        bool
	Insecure       bool
}

// DefaultConfig returns local-collector defaults with export disabled.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "contagion",
		ServiceVersion: "dev",
		OTLPEndpoint:   "localhost:4317",
		ExportInterval: 15 * time.Second,
		Enabled:        false,
		Insecure:       true,
	}
}

// Provider owns the meter provider and the simulation instruments. A disabled
// Provider records nothing.
type Provider struct {
	config        *Config
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	logger        *slog.Logger

	days          metric.Int64Counter
	infections    metric.Int64Counter
	statusChanges metric.Int64Counter
	containers    metric.Int64Counter
	dayDuration   metric.Float64Histogram
	regime        metric.Int64Gauge
}

// New creates a provider exporting to cfg.OTLPEndpoint.
func New(ctx context.Context, cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	p := &Provider{config: cfg, logger: slog.Default().With("component", "observability")}
	if !cfg.Enabled {
		p.logger.DebugContext(ctx, "metrics disabled")
		return p, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}
	interval := cfg.ExportInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if err := p.init(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))); err != nil {
		return nil, err
	}
	otel.SetMeterProvider(p.meterProvider)

	p.logger.InfoContext(ctx, "metrics initialized", "endpoint", cfg.OTLPEndpoint, "interval", interval)
	return p, nil
}

// NewWithReader creates an enabled provider over reader. Useful with a ManualReader.
func NewWithReader(cfg *Config, reader sdkmetric.Reader) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	p := &Provider{config: cfg, logger: slog.Default().With("component", "observability")}
	if err := p.init(reader); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Provider) init(reader sdkmetric.Reader) error {
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(p.config.ServiceName),
		semconv.ServiceVersion(p.config.ServiceVersion),
	)
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	p.meter = p.meterProvider.Meter(meterName, metric.WithInstrumentationVersion(p.config.ServiceVersion))
	return p.initInstruments()
}

func (p *Provider) initInstruments() error {
	var err error

	p.days, err = p.meter.Int64Counter("contagion.days.total",
		metric.WithDescription("Simulated days completed"),
		metric.WithUnit("{day}"),
	)
	if err != nil {
		return err
	}

	p.infections, err = p.meter.Int64Counter("contagion.infections.total",
		metric.WithDescription("Infections applied, by strain"),
		metric.WithUnit("{infection}"),
	)
	if err != nil {
		return err
	}

	p.statusChanges, err = p.meter.Int64Counter("contagion.status_changes.total",
		metric.WithDescription("Disease status transitions, by target status"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return err
	}

	p.containers, err = p.meter.Int64Counter("contagion.containers.total",
		metric.WithDescription("Containers processed"),
		metric.WithUnit("{container}"),
	)
	if err != nil {
		return err
	}

	p.dayDuration, err = p.meter.Float64Histogram("contagion.day.duration",
		metric.WithDescription("Wall time of one simulated day"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30),
	)
	if err != nil {
		return err
	}

	p.regime, err = p.meter.Int64Gauge("contagion.policy.restricted",
		metric.WithDescription("1 while an adaptive context is in the restricted regime"),
	)
	return err
}

// DayStats is what one simulated day reports to metrics.
type DayStats struct {
	Day           int
	Containers    int
	Infections    map[string]int // strain -> count
	StatusChanges map[string]int // target status -> count
	Duration      time.Duration
}

// RecordDay records one completed day.
func (p *Provider) RecordDay(ctx context.Context, stats DayStats, attrs ...attribute.KeyValue) {
	if p.days == nil {
		return
	}
	base := metric.WithAttributes(attrs...)
	p.days.Add(ctx, 1, base)
	p.containers.Add(ctx, int64(stats.Containers), base)
	p.dayDuration.Record(ctx, stats.Duration.Seconds(), base)

	for _, k := range sortedKeys(stats.Infections) {
		p.infections.Add(ctx, int64(stats.Infections[k]), metric.WithAttributes(append(attrs, AttrStrain.String(k))...))
	}
	for _, k := range sortedKeys(stats.StatusChanges) {
		p.statusChanges.Add(ctx, int64(stats.StatusChanges[k]), metric.WithAttributes(append(attrs, AttrStatus.String(k))...))
	}
}

// RecordRegime records whether a context is restricted.
func (p *Provider) RecordRegime(ctx context.Context, restricted bool, attrs ...attribute.KeyValue) {
	if p.regime == nil {
		return
	}
	v := int64(0)
	if restricted {
		v = 1
	}
	p.regime.Record(ctx, v, metric.WithAttributes(attrs...))
}

// Meter returns the provider's meter, or the global one when disabled.
func (p *Provider) Meter() metric.Meter {
	if p.meter == nil {
		return otel.Meter(meterName)
	}
	return p.meter
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.meterProvider == nil {
		return nil
	}
	if err := p.meterProvider.Shutdown(ctx); err != nil {
		p.logger.ErrorContext(ctx, "failed to shutdown metric provider", "error", err)
		return err
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
