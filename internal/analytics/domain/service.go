package domain

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	production "github.com/smallbiznis/stitchboard/internal/production/domain"
	"github.com/smallbiznis/stitchboard/pkg/db/pagination"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidFilter      = errors.New("invalid_filter")
	ErrInvalidMetric      = errors.New("invalid_metric")
	ErrInvalidGroupBy     = errors.New("invalid_group_by")
	ErrInvalidGranularity = errors.New("invalid_granularity")
	ErrMetricUnavailable  = errors.New("metric_unavailable_for_scope")
)

type Metric string

const (
	MetricCuttingReceived Metric = "cutting_received"
	MetricPiecesIssued    Metric = "pieces_issued"
	MetricPiecesReturned  Metric = "pieces_returned"
	MetricInProduction    Metric = "in_production"
	MetricTailorExpense   Metric = "tailor_expense"
	MetricShippedPcs      Metric = "shipped_pcs"
)

// ParseMetric accepts only the known metric names.
func ParseMetric(raw string) (Metric, error) {
	switch m := Metric(raw); m {
	case MetricCuttingReceived, MetricPiecesIssued, MetricPiecesReturned,
		MetricInProduction, MetricTailorExpense, MetricShippedPcs:
		return m, nil
	default:
		return "", ErrInvalidMetric
	}
}

// JobDerived reports whether the metric can be computed from tailor jobs alone.
func (m Metric) JobDerived() bool {
	switch m {
	case MetricPiecesIssued, MetricPiecesReturned, MetricInProduction, MetricTailorExpense:
		return true
	default:
		return false
	}
}

type GroupBy string

const (
	GroupByStyle  GroupBy = "style"
	GroupByVendor GroupBy = "vendor"
	GroupByTailor GroupBy = "tailor"
)

func ParseGroupBy(raw string) (GroupBy, error) {
	switch g := GroupBy(raw); g {
	case GroupByStyle, GroupByVendor, GroupByTailor:
		return g, nil
	default:
		return "", ErrInvalidGroupBy
	}
}

type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// ParseGranularity defaults an empty value to day.
func ParseGranularity(raw string) (Granularity, error) {
	switch g := Granularity(raw); g {
	case "":
		return GranularityDay, nil
	case GranularityDay, GranularityWeek, GranularityMonth:
		return g, nil
	default:
		return "", ErrInvalidGranularity
	}
}

type KPICard struct {
	ID    Metric          `json:"id"`
	Label string          `json:"label"`
	Value decimal.Decimal `json:"value"`
	Unit  string          `json:"unit"`
	// Trend is the percent change against the previous period, nil when the
	// previous period is zero.
	Trend *float64 `json:"trend"`
}

type TrendPoint struct {
	Bucket time.Time       `json:"bucket"`
	Value  decimal.Decimal `json:"value"`
}

type BreakdownEntry struct {
	GroupKey snowflake.ID    `json:"group_key"`
	Label    string          `json:"label"`
	Value    decimal.Decimal `json:"value"`
}

// DrilldownRow is one raw tailor job with its style and tailor.
type DrilldownRow struct {
	JobID           snowflake.ID         `json:"job_id"`
	StyleID         snowflake.ID         `json:"style_id"`
	StyleCode       string               `json:"style_code"`
	StyleName       string               `json:"style_name"`
	VendorID        snowflake.ID         `json:"vendor_id"`
	TailorID        snowflake.ID         `json:"tailor_id"`
	TailorName      string               `json:"tailor_name"`
	IssuedPcs       int64                `json:"issued_pcs"`
	ReturnedPcs     int64                `json:"returned_pcs"`
	InProductionPcs int64                `json:"in_production_pcs"`
	Rate            decimal.Decimal      `json:"rate"`
	Expense         decimal.Decimal      `json:"expense"`
	Status          production.JobStatus `json:"status"`
	IssuedAt        time.Time            `json:"issued_at"`
	CompletedAt     *time.Time           `json:"completed_at,omitempty"`
}

// Service answers dashboard queries. Every method trusts the scoping already
// applied by NewFilter and rejects filters not built by it.
type Service interface {
	GetKPICards(ctx context.Context, filter Filter) ([]KPICard, error)
	GetTrendData(ctx context.Context, metric Metric, filter Filter, granularity Granularity) ([]TrendPoint, error)
	GetBreakdown(ctx context.Context, metric Metric, groupBy GroupBy, filter Filter, limit int) ([]BreakdownEntry, error)
	GetDrilldownTable(ctx context.Context, filter Filter, page pagination.Page) (pagination.Result[DrilldownRow], error)
	ExportDrilldown(ctx context.Context, filter Filter, page pagination.Page, w io.Writer) (int, error)
}
