package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	analytics "github.com/smallbiznis/stitchboard/internal/analytics/domain"
	"github.com/smallbiznis/stitchboard/internal/config"
	"github.com/smallbiznis/stitchboard/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Config  *config.AnalyticsConfigHolder
	Redis   *redis.Client    `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	config  *config.AnalyticsConfigHolder
	cache   *resultCache
	metrics *metrics.Metrics
}

func NewService(p Params) analytics.Service {
	log := p.Log.Named("analytics.service")
	return &Service{
		db:      p.DB,
		log:     log,
		config:  p.Config,
		cache:   newResultCache(p.Redis, p.Metrics, log),
		metrics: p.Metrics,
	}
}

type cardSpec struct {
	metric analytics.Metric
	label  string
	unit   string
}

var rollupCards = []cardSpec{
	{analytics.MetricCuttingReceived, "Cutting received", "pcs"},
	{analytics.MetricInProduction, "In production", "pcs"},
	{analytics.MetricTailorExpense, "Tailor expense", "currency"},
	{analytics.MetricShippedPcs, "Shipped pieces", "pcs"},
}

var jobCards = []cardSpec{
	{analytics.MetricInProduction, "In production", "pcs"},
	{analytics.MetricTailorExpense, "Tailor expense", "currency"},
	{analytics.MetricPiecesIssued, "Pieces issued", "pcs"},
}

func (s *Service) GetKPICards(ctx context.Context, filter analytics.Filter) ([]analytics.KPICard, error) {
	if !filter.Valid() {
		return nil, analytics.ErrInvalidFilter
	}
	s.metrics.RecordAnalyticsQuery(ctx, "kpi", string(filter.Role()))

	cfg := s.config.Get()
	return fetchCached(ctx, s.cache, "kpi", filter.CacheKey("kpi"), cfg.CacheTTL, func(ctx context.Context) ([]analytics.KPICard, error) {
		specs := rollupCards
		if filter.TailorScoped() {
			specs = jobCards
		}

		current, err := s.sumMetrics(ctx, filter, specs)
		if err != nil {
			return nil, err
		}
		prev := filter.Previous()
		previous, err := s.sumMetrics(ctx, prev, specs)
		if err != nil {
			return nil, err
		}

		cards := make([]analytics.KPICard, 0, len(specs))
		for _, spec := range specs {
			cards = append(cards, analytics.KPICard{
				ID:    spec.metric,
				Label: spec.label,
				Value: current[spec.metric],
				Unit:  spec.unit,
				Trend: computeTrend(current[spec.metric], previous[spec.metric]),
			})
		}
		return cards, nil
	})
}

// sumMetrics totals every card metric over the filter range in one query.
func (s *Service) sumMetrics(ctx context.Context, filter analytics.Filter, specs []cardSpec) (map[analytics.Metric]decimal.Decimal, error) {
	selects := make([]string, 0, len(specs))
	for _, spec := range specs {
		expr, err := metricExpr(spec.metric, filter)
		if err != nil {
			return nil, err
		}
		selects = append(selects, fmt.Sprintf("COALESCE(SUM(%s), 0) AS %s", expr, spec.metric))
	}

	query := s.rollupQuery(ctx, filter, filter.Start(), filter.End())
	if filter.TailorScoped() {
		query = s.jobQuery(ctx, filter, filter.Start(), filter.End())
	}

	var totals metricTotals
	if err := query.Select(strings.Join(selects, ", ")).Scan(&totals).Error; err != nil {
		return nil, err
	}
	return totals.byMetric(), nil
}

type metricTotals struct {
	CuttingReceived decimal.Decimal
	PiecesIssued    decimal.Decimal
	PiecesReturned  decimal.Decimal
	InProduction    decimal.Decimal
	TailorExpense   decimal.Decimal
	ShippedPcs      decimal.Decimal
}

func (t metricTotals) byMetric() map[analytics.Metric]decimal.Decimal {
	return map[analytics.Metric]decimal.Decimal{
		analytics.MetricCuttingReceived: t.CuttingReceived,
		analytics.MetricPiecesIssued:    t.PiecesIssued,
		analytics.MetricPiecesReturned:  t.PiecesReturned,
		analytics.MetricInProduction:    t.InProduction,
		analytics.MetricTailorExpense:   t.TailorExpense,
		analytics.MetricShippedPcs:      t.ShippedPcs,
	}
}

// computeTrend returns the percent change, or nil when previous is zero.
func computeTrend(current, previous decimal.Decimal) *float64 {
	if previous.IsZero() {
		return nil
	}
	trend := current.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	return &trend
}

type bucketRow struct {
	At    time.Time
	Value decimal.Decimal
}

func (s *Service) GetTrendData(ctx context.Context, metric analytics.Metric, filter analytics.Filter, granularity analytics.Granularity) ([]analytics.TrendPoint, error) {
	if !filter.Valid() {
		return nil, analytics.ErrInvalidFilter
	}
	if _, err := analytics.ParseMetric(string(metric)); err != nil {
		return nil, err
	}
	if _, err := analytics.ParseGranularity(string(granularity)); err != nil || granularity == "" {
		return nil, analytics.ErrInvalidGranularity
	}
	expr, err := metricExpr(metric, filter)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordAnalyticsQuery(ctx, "trend", string(filter.Role()))

	cfg := s.config.Get()
	key := filter.CacheKey("trend", string(metric), string(granularity))
	return fetchCached(ctx, s.cache, "trend", key, cfg.CacheTTL, func(ctx context.Context) ([]analytics.TrendPoint, error) {
		var (
			rows []bucketRow
			err  error
		)
		if filter.TailorScoped() {
			err = s.jobQuery(ctx, filter, filter.Start(), filter.End()).
				Select(fmt.Sprintf("j.issued_at AS at, %s AS value", expr)).
				Scan(&rows).Error
		} else {
			err = s.rollupQuery(ctx, filter, filter.Start(), filter.End()).
				Select(fmt.Sprintf("a.date AS at, COALESCE(SUM(%s), 0) AS value", expr)).
				Group("a.date").
				Scan(&rows).Error
		}
		if err != nil {
			return nil, err
		}

		totals := make(map[time.Time]decimal.Decimal)
		for _, row := range rows {
			bucket := bucketStart(row.At, granularity)
			totals[bucket] = totals[bucket].Add(row.Value)
		}

		points := make([]analytics.TrendPoint, 0)
		for bucket := bucketStart(filter.Start(), granularity); bucket.Before(filter.End()); bucket = nextBucket(bucket, granularity) {
			points = append(points, analytics.TrendPoint{Bucket: bucket, Value: totals[bucket]})
		}
		return points, nil
	})
}

type breakdownRow struct {
	GroupKey snowflake.ID
	Label    string
	Total    decimal.Decimal
}

func (s *Service) GetBreakdown(ctx context.Context, metric analytics.Metric, groupBy analytics.GroupBy, filter analytics.Filter, limit int) ([]analytics.BreakdownEntry, error) {
	if !filter.Valid() {
		return nil, analytics.ErrInvalidFilter
	}
	if _, err := analytics.ParseMetric(string(metric)); err != nil {
		return nil, err
	}
	if _, err := analytics.ParseGroupBy(string(groupBy)); err != nil {
		return nil, err
	}

	cfg := s.config.Get()
	if limit <= 0 {
		limit = cfg.BreakdownDefaultLimit
	}
	if limit > cfg.BreakdownMaxLimit {
		limit = cfg.BreakdownMaxLimit
	}

	// The rollup has no tailor dimension.
	rawJobs := filter.TailorScoped() || groupBy == analytics.GroupByTailor
	expr := rollupColumns[metric]
	if rawJobs {
		var ok bool
		if expr, ok = jobColumns[metric]; !ok {
			return nil, analytics.ErrMetricUnavailable
		}
	}
	s.metrics.RecordAnalyticsQuery(ctx, "breakdown", string(filter.Role()))

	key := filter.CacheKey("breakdown", string(metric), string(groupBy), fmt.Sprint(limit))
	return fetchCached(ctx, s.cache, "breakdown", key, cfg.CacheTTL, func(ctx context.Context) ([]analytics.BreakdownEntry, error) {
		var query *gorm.DB
		if rawJobs {
			query = s.jobQuery(ctx, filter, filter.Start(), filter.End())
			switch groupBy {
			case analytics.GroupByStyle:
				query = query.Joins("JOIN styles AS s ON s.id = j.style_id").
					Select(fmt.Sprintf("j.style_id AS group_key, s.name AS label, COALESCE(SUM(%s), 0) AS total", expr)).
					Group("j.style_id, s.name").
					Order("total DESC, j.style_id ASC")
			case analytics.GroupByVendor:
				query = query.Joins("JOIN styles AS s ON s.id = j.style_id").
					Joins("JOIN vendors AS v ON v.id = s.vendor_id").
					Select(fmt.Sprintf("v.id AS group_key, v.name AS label, COALESCE(SUM(%s), 0) AS total", expr)).
					Group("v.id, v.name").
					Order("total DESC, v.id ASC")
			default:
				query = query.Joins("JOIN tailors AS t ON t.id = j.tailor_id").
					Select(fmt.Sprintf("j.tailor_id AS group_key, t.name AS label, COALESCE(SUM(%s), 0) AS total", expr)).
					Group("j.tailor_id, t.name").
					Order("total DESC, j.tailor_id ASC")
			}
		} else {
			query = s.rollupQuery(ctx, filter, filter.Start(), filter.End())
			switch groupBy {
			case analytics.GroupByStyle:
				query = query.Joins("JOIN styles AS s ON s.id = a.style_id").
					Select(fmt.Sprintf("a.style_id AS group_key, s.name AS label, COALESCE(SUM(%s), 0) AS total", expr)).
					Group("a.style_id, s.name").
					Order("total DESC, a.style_id ASC")
			default:
				query = query.Joins("JOIN vendors AS v ON v.id = a.vendor_id").
					Select(fmt.Sprintf("a.vendor_id AS group_key, v.name AS label, COALESCE(SUM(%s), 0) AS total", expr)).
					Group("a.vendor_id, v.name").
					Order("total DESC, a.vendor_id ASC")
			}
		}

		var rows []breakdownRow
		if err := query.Limit(limit).Scan(&rows).Error; err != nil {
			return nil, err
		}

		entries := make([]analytics.BreakdownEntry, 0, len(rows))
		for _, row := range rows {
			entries = append(entries, analytics.BreakdownEntry{GroupKey: row.GroupKey, Label: row.Label, Value: row.Total})
		}
		return entries, nil
	})
}
