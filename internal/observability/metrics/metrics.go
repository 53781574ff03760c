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
	rollupRows       metric.Int64Counter
	rollupFailures   metric.Int64Counter
	analyticsQueries metric.Int64Counter
	analyticsCache   metric.Int64Counter
	approvals        metric.Int64Counter
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

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "stitchboard"
	}
	meter := provider.Meter(name)

	rollupRows, err := meter.Int64Counter("stitchboard_rollup_rows_written_total")
	if err != nil {
		return nil, err
	}
	rollupFailures, err := meter.Int64Counter("stitchboard_rollup_style_failures_total")
	if err != nil {
		return nil, err
	}
	analyticsQueries, err := meter.Int64Counter("stitchboard_analytics_queries_total")
	if err != nil {
		return nil, err
	}
	analyticsCache, err := meter.Int64Counter("stitchboard_analytics_cache_total")
	if err != nil {
		return nil, err
	}
	approvals, err := meter.Int64Counter("stitchboard_approval_decisions_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		rollupRows:       rollupRows,
		rollupFailures:   rollupFailures,
		analyticsQueries: analyticsQueries,
		analyticsCache:   analyticsCache,
		approvals:        approvals,
	}, nil
}

// NewNoop returns instruments bound to a no-op provider, for tests and CLIs.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

// RecordRollup counts rows written and style failures for one tenant refresh.
func (m *Metrics) RecordRollup(ctx context.Context, tenantID string, written, failed int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(FilterAttributes(attribute.String("tenant_id", strings.TrimSpace(tenantID)))...)
	if written > 0 {
		m.rollupRows.Add(ctx, int64(written), attrs)
	}
	if failed > 0 {
		m.rollupFailures.Add(ctx, int64(failed), attrs)
	}
}

// RecordAnalyticsQuery counts dashboard queries by operation and caller role.
func (m *Metrics) RecordAnalyticsQuery(ctx context.Context, operation, role string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("operation", strings.TrimSpace(operation)),
		attribute.String("role", strings.TrimSpace(role)),
	)
	m.analyticsQueries.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCacheLookup counts analytics cache hits and misses.
func (m *Metrics) RecordCacheLookup(ctx context.Context, operation string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	attrs := FilterAttributes(
		attribute.String("operation", strings.TrimSpace(operation)),
		attribute.String("result", result),
	)
	m.analyticsCache.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordApprovalDecision counts approval transitions per target entity.
func (m *Metrics) RecordApprovalDecision(ctx context.Context, entity, decision string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("entity", strings.TrimSpace(entity)),
		attribute.String("decision", strings.TrimSpace(decision)),
	)
	m.approvals.Add(ctx, 1, metric.WithAttributes(attrs...))
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

var allowedLabelKeys = map[attribute.Key]struct{}{
	"tenant_id": {},
	"operation": {},
	"role":      {},
	"result":    {},
	"entity":    {},
	"decision":  {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
