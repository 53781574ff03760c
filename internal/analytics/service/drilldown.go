package service

import (
	"context"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	analytics "github.com/smallbiznis/stitchboard/internal/analytics/domain"
	"github.com/smallbiznis/stitchboard/pkg/db/pagination"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	exportSheet           = "Drilldown"
	defaultDrilldownLimit = 50
)

var drilldownSortColumns = map[string]string{
	"issuedAt":    "j.issued_at",
	"issuedPcs":   "j.issued_pcs",
	"returnedPcs": "j.returned_pcs",
	"rate":        "j.rate",
	"status":      "j.status",
	"style":       "s.code",
	"tailor":      "t.name",
}

const drilldownSelect = `j.id AS job_id, j.style_id, s.code AS style_code, s.name AS style_name,
s.vendor_id, j.tailor_id, t.name AS tailor_name, j.issued_pcs, j.returned_pcs,
j.rate, j.status, j.issued_at, j.completed_at`

func (s *Service) drilldownQuery(ctx context.Context, filter analytics.Filter) *gorm.DB {
	q := s.jobQuery(ctx, filter, filter.Start(), filter.End()).
		Joins("JOIN styles AS s ON s.id = j.style_id").
		Joins("JOIN tailors AS t ON t.id = j.tailor_id")
	if search := filter.Search(); search != "" {
		like := "%" + search + "%"
		q = q.Where("(LOWER(s.code) LIKE ? OR LOWER(s.name) LIKE ? OR LOWER(t.name) LIKE ?)", like, like, like)
	}
	return q
}

func (s *Service) GetDrilldownTable(ctx context.Context, filter analytics.Filter, page pagination.Page) (pagination.Result[analytics.DrilldownRow], error) {
	var result pagination.Result[analytics.DrilldownRow]
	if !filter.Valid() {
		return result, analytics.ErrInvalidFilter
	}
	s.metrics.RecordAnalyticsQuery(ctx, "drilldown", string(filter.Role()))

	cfg := s.config.Get()
	page = page.Normalize(defaultDrilldownLimit, cfg.DrilldownMaxLimit)

	if err := s.drilldownQuery(ctx, filter).Count(&result.Total).Error; err != nil {
		return result, err
	}
	rows, err := s.loadDrilldown(ctx, filter, page)
	if err != nil {
		return result, err
	}
	result.Rows = rows
	return result, nil
}

func (s *Service) loadDrilldown(ctx context.Context, filter analytics.Filter, page pagination.Page) ([]analytics.DrilldownRow, error) {
	rows := make([]analytics.DrilldownRow, 0)
	err := s.drilldownQuery(ctx, filter).
		Select(drilldownSelect).
		Order(page.OrderClause(drilldownSortColumns, "issuedAt", "j.id")).
		Limit(page.Limit).
		Offset(page.Skip).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for i := range rows {
		row := &rows[i]
		if row.Status.Open() {
			row.InProductionPcs = row.IssuedPcs - row.ReturnedPcs
		}
		row.Expense = row.Rate.Mul(decimal.NewFromInt(row.IssuedPcs))
	}
	return rows, nil
}

// ExportDrilldown writes the scoped drilldown rows as an XLSX workbook,
// capped at the configured export row limit. It returns the rows written.
func (s *Service) ExportDrilldown(ctx context.Context, filter analytics.Filter, page pagination.Page, w io.Writer) (int, error) {
	if !filter.Valid() {
		return 0, analytics.ErrInvalidFilter
	}
	s.metrics.RecordAnalyticsQuery(ctx, "export", string(filter.Role()))

	cfg := s.config.Get()
	page = page.Normalize(cfg.ExportMaxRows, cfg.ExportMaxRows)
	page.Skip = 0

	rows, err := s.loadDrilldown(ctx, filter, page)
	if err != nil {
		return 0, err
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.log.Warn("close workbook", zap.Error(err))
		}
	}()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return 0, err
	}
	sw, err := f.NewStreamWriter(exportSheet)
	if err != nil {
		return 0, err
	}

	header := []interface{}{
		"Job ID", "Style Code", "Style", "Tailor", "Status", "Issued At",
		"Issued Pcs", "Returned Pcs", "In Production", "Rate", "Expense",
	}
	if err := sw.SetRow("A1", header); err != nil {
		return 0, err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return 0, err
		}
		values := []interface{}{
			row.JobID.String(),
			row.StyleCode,
			row.StyleName,
			row.TailorName,
			string(row.Status),
			row.IssuedAt.UTC().Format("2006-01-02 15:04"),
			row.IssuedPcs,
			row.ReturnedPcs,
			row.InProductionPcs,
			row.Rate.InexactFloat64(),
			row.Expense.InexactFloat64(),
		}
		if err := sw.SetRow(cell, values); err != nil {
			return 0, err
		}
	}
	if err := sw.Flush(); err != nil {
		return 0, err
	}
	if err := f.Write(w); err != nil {
		return 0, fmt.Errorf("write workbook: %w", err)
	}

	s.log.Info("drilldown exported",
		zap.String("tenant_id", filter.TenantID().String()),
		zap.Int("rows", len(rows)),
	)
	return len(rows), nil
}
