package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	submissionsDecided metric.Int64Counter
	reconcileRuns      metric.Int64Counter
	reconcileDuration  metric.Float64Histogram
	tierCompletions    metric.Int64Counter
	ledgerEntries      metric.Int64Counter
	rateLimitDenied    metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "incentiva"
	}
	meter := provider.Meter(name)

	submissionsDecided, err := meter.Int64Counter("incentiva_submissions_decided_total")
	if err != nil {
		return nil, err
	}
	reconcileRuns, err := meter.Int64Counter("incentiva_reconcile_runs_total")
	if err != nil {
		return nil, err
	}
	reconcileDuration, err := meter.Float64Histogram("incentiva_reconcile_duration_seconds")
	if err != nil {
		return nil, err
	}
	tierCompletions, err := meter.Int64Counter("incentiva_tier_completions_total")
	if err != nil {
		return nil, err
	}
	ledgerEntries, err := meter.Int64Counter("incentiva_ledger_entries_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("incentiva_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		submissionsDecided: submissionsDecided,
		reconcileRuns:      reconcileRuns,
		reconcileDuration:  reconcileDuration,
		tierCompletions:    tierCompletions,
		ledgerEntries:      ledgerEntries,
		rateLimitDenied:    rateLimitDenied,
	}, nil
}

// RecordDecision increments per-status decision counts.
func (m *Metrics) RecordDecision(ctx context.Context, status string, simulated bool) {
	if m == nil {
		return
	}
	m.submissionsDecided.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", strings.ToLower(strings.TrimSpace(status))),
		attribute.Bool("simulated", simulated),
	))
}

// RecordReconcileRun increments batch run counts and observes duration.
func (m *Metrics) RecordReconcileRun(ctx context.Context, simulated bool, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("simulated", simulated))
	m.reconcileRuns.Add(ctx, 1, attrs)
	m.reconcileDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordTierCompletion increments tier completion counts.
func (m *Metrics) RecordTierCompletion(ctx context.Context, tierNumber int) {
	if m == nil {
		return
	}
	m.tierCompletions.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("tier_number", tierNumber),
	))
}

// RecordLedgerEntry increments ledger entry counts.
func (m *Metrics) RecordLedgerEntry(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.ledgerEntries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", strings.ToLower(strings.TrimSpace(kind))),
	))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
	))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}
