package service

import (
	"context"
	"time"

	analytics "github.com/smallbiznis/stitchboard/internal/analytics/domain"
	masterdata "github.com/smallbiznis/stitchboard/internal/masterdata/domain"
	production "github.com/smallbiznis/stitchboard/internal/production/domain"
	"gorm.io/gorm"
)

var rollupColumns = map[analytics.Metric]string{
	analytics.MetricCuttingReceived: "a.cutting_received",
	analytics.MetricPiecesIssued:    "a.pieces_issued",
	analytics.MetricPiecesReturned:  "a.pieces_returned",
	analytics.MetricInProduction:    "a.in_production_pcs",
	analytics.MetricTailorExpense:   "a.tailor_expense",
	analytics.MetricShippedPcs:      "a.shipped_pcs",
}

var jobColumns = map[analytics.Metric]string{
	analytics.MetricPiecesIssued:   "j.issued_pcs",
	analytics.MetricPiecesReturned: "j.returned_pcs",
	analytics.MetricInProduction: "CASE WHEN j.status IN ('" +
		string(production.JobStatusPending) + "', '" + string(production.JobStatusInProgress) +
		"') THEN j.issued_pcs - j.returned_pcs ELSE 0 END",
	analytics.MetricTailorExpense: "j.issued_pcs * j.rate",
}

// metricExpr picks the per-row expression for m. Tailor-scoped filters read
// raw jobs, which carry no cutting or shipment data.
func metricExpr(m analytics.Metric, filter analytics.Filter) (string, error) {
	if filter.TailorScoped() {
		expr, ok := jobColumns[m]
		if !ok {
			return "", analytics.ErrMetricUnavailable
		}
		return expr, nil
	}
	expr, ok := rollupColumns[m]
	if !ok {
		return "", analytics.ErrInvalidMetric
	}
	return expr, nil
}

// rollupQuery selects daily aggregates inside the filter. Callers must
// not use it for tailor-scoped filters.
func (s *Service) rollupQuery(ctx context.Context, filter analytics.Filter, start, end time.Time) *gorm.DB {
	q := s.db.WithContext(ctx).
		Table("daily_aggregates AS a").
		Where("a.tenant_id = ? AND a.date >= ? AND a.date < ?", filter.TenantID(), start, end)
	if ids := filter.StyleIDs(); len(ids) > 0 {
		q = q.Where("a.style_id IN ?", ids)
	}
	if ids := filter.VendorIDs(); len(ids) > 0 {
		q = q.Where("a.vendor_id IN ?", ids)
	}
	if filter.Search() != "" {
		q = q.Where("a.style_id IN (?)", s.searchStyles(ctx, filter))
	}
	return q
}

// jobQuery selects raw tailor jobs issued inside the filter.
func (s *Service) jobQuery(ctx context.Context, filter analytics.Filter, start, end time.Time) *gorm.DB {
	q := s.db.WithContext(ctx).
		Table("tailor_jobs AS j").
		Where("j.tenant_id = ? AND j.issued_at >= ? AND j.issued_at < ?", filter.TenantID(), start, end)
	if ids := filter.StyleIDs(); len(ids) > 0 {
		q = q.Where("j.style_id IN ?", ids)
	}
	if ids := filter.VendorIDs(); len(ids) > 0 {
		vendorStyles := s.db.WithContext(ctx).
			Model(&masterdata.Style{}).
			Select("id").
			Where("tenant_id = ? AND vendor_id IN ?", filter.TenantID(), ids)
		q = q.Where("j.style_id IN (?)", vendorStyles)
	}
	if ids := filter.TailorIDs(); len(ids) > 0 {
		q = q.Where("j.tailor_id IN ?", ids)
	}
	return q
}

func (s *Service) searchStyles(ctx context.Context, filter analytics.Filter) *gorm.DB {
	like := "%" + filter.Search() + "%"
	return s.db.WithContext(ctx).
		Model(&masterdata.Style{}).
		Select("id").
		Where("tenant_id = ? AND (LOWER(code) LIKE ? OR LOWER(name) LIKE ?)", filter.TenantID(), like, like)
}

func bucketStart(value time.Time, granularity analytics.Granularity) time.Time {
	value = value.UTC()
	day := time.Date(value.Year(), value.Month(), value.Day(), 0, 0, 0, 0, time.UTC)
	switch granularity {
	case analytics.GranularityWeek:
		// ISO weeks start on Monday.
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case analytics.GranularityMonth:
		return time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}

func nextBucket(bucket time.Time, granularity analytics.Granularity) time.Time {
	switch granularity {
	case analytics.GranularityWeek:
		return bucket.AddDate(0, 0, 7)
	case analytics.GranularityMonth:
		return bucket.AddDate(0, 1, 0)
	default:
		return bucket.AddDate(0, 0, 1)
	}
}
