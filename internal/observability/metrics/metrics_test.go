package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("tenant_id", "123"),
		attribute.String("style_id", "456"),
		attribute.String("operation", "kpi"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "tenant_id" && attrs[1].Key != "tenant_id" {
		t.Fatalf("expected tenant_id to be retained")
	}
	if attrs[0].Key != "operation" && attrs[1].Key != "operation" {
		t.Fatalf("expected operation to be retained")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordRollup(context.Background(), "1", 3, 1)
	m.RecordAnalyticsQuery(context.Background(), "kpi", "admin")
	m.RecordCacheLookup(context.Background(), "kpi", true)
	m.RecordApprovalDecision(context.Background(), "style", "approved")
}

func TestNoopMetricsRecord(t *testing.T) {
	m := NewNoop()
	if m == nil {
		t.Fatalf("expected noop metrics")
	}
	m.RecordRollup(context.Background(), "1", 3, 0)
}
