package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/stitchboard/internal/clock"
	finance "github.com/smallbiznis/stitchboard/internal/finance/domain"
	masterdata "github.com/smallbiznis/stitchboard/internal/masterdata/domain"
	"github.com/smallbiznis/stitchboard/internal/principal"
	production "github.com/smallbiznis/stitchboard/internal/production/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
}

func NewService(p Params) finance.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("finance.service"),
		clock: p.Clock,
	}
}

type shipmentRow struct {
	ID         snowflake.ID
	StyleID    snowflake.ID
	PcsShipped int64
	ShippedAt  time.Time
}

type cuttingRow struct {
	ID       snowflake.ID
	StyleID  snowflake.ID
	TotalQty int64
	CutAt    time.Time
}

type wageRow struct {
	IssuedPcs int64
	Rate      decimal.Decimal
}

func (s *Service) CalculateRevenue(ctx context.Context, tenantID snowflake.ID, start, end time.Time) (decimal.Decimal, error) {
	if err := s.authorize(ctx, tenantID, start, end); err != nil {
		return decimal.Zero, err
	}
	revenue, _, err := s.revenue(ctx, tenantID, start, end)
	return revenue, err
}

// revenue prices every shipment at the vendor price effective on its ship
// date. Shipments with no such rate add nothing and are counted.
func (s *Service) revenue(ctx context.Context, tenantID snowflake.ID, start, end time.Time) (decimal.Decimal, int, error) {
	rates, err := s.loadRates(ctx, tenantID, masterdata.RateKindVendorPrice, end)
	if err != nil {
		return decimal.Zero, 0, err
	}

	var shipments []shipmentRow
	if err := s.db.WithContext(ctx).
		Model(&production.Shipment{}).
		Select("id, style_id, pcs_shipped, shipped_at").
		Where("tenant_id = ? AND shipped_at >= ? AND shipped_at < ?", tenantID, start, end).
		Order("shipped_at ASC, id ASC").
		Scan(&shipments).Error; err != nil {
		return decimal.Zero, 0, err
	}

	total := decimal.Zero
	unpriced := 0
	for _, shipment := range shipments {
		rate, ok := rates.effective(shipment.StyleID, shipment.ShippedAt)
		if !ok {
			unpriced++
			s.log.Warn("shipment has no effective vendor price",
				zap.String("tenant_id", tenantID.String()),
				zap.String("shipment_id", shipment.ID.String()),
				zap.String("style_id", shipment.StyleID.String()),
				zap.Time("shipped_at", shipment.ShippedAt),
			)
			continue
		}
		total = total.Add(rate.Amount.Mul(decimal.NewFromInt(shipment.PcsShipped)))
	}
	return total, unpriced, nil
}

func (s *Service) CalculateCosts(ctx context.Context, tenantID snowflake.ID, start, end time.Time) (finance.CostBreakdown, error) {
	if err := s.authorize(ctx, tenantID, start, end); err != nil {
		return finance.CostBreakdown{}, err
	}
	return s.costs(ctx, tenantID, start, end)
}

func (s *Service) costs(ctx context.Context, tenantID snowflake.ID, start, end time.Time) (finance.CostBreakdown, error) {
	wages := decimal.Zero
	var jobs []wageRow
	if err := s.db.WithContext(ctx).
		Model(&production.TailorJob{}).
		Select("issued_pcs, rate").
		Where("tenant_id = ? AND issued_at >= ? AND issued_at < ?", tenantID, start, end).
		Scan(&jobs).Error; err != nil {
		return finance.CostBreakdown{}, err
	}
	for _, job := range jobs {
		wages = wages.Add(job.Rate.Mul(decimal.NewFromInt(job.IssuedPcs)))
	}

	rates, err := s.loadRates(ctx, tenantID, masterdata.RateKindMaterial, end)
	if err != nil {
		return finance.CostBreakdown{}, err
	}
	var cuttings []cuttingRow
	if err := s.db.WithContext(ctx).
		Model(&production.FabricCutting{}).
		Select("id, style_id, total_qty, cut_at").
		Where("tenant_id = ? AND cut_at >= ? AND cut_at < ?", tenantID, start, end).
		Scan(&cuttings).Error; err != nil {
		return finance.CostBreakdown{}, err
	}
	materials := decimal.Zero
	for _, cutting := range cuttings {
		rate, ok := rates.effective(cutting.StyleID, cutting.CutAt)
		if !ok {
			s.log.Warn("cutting has no effective material rate",
				zap.String("tenant_id", tenantID.String()),
				zap.String("cutting_id", cutting.ID.String()),
				zap.String("style_id", cutting.StyleID.String()),
			)
			continue
		}
		materials = materials.Add(rate.Amount.Mul(decimal.NewFromInt(cutting.TotalQty)))
	}

	return finance.CostBreakdown{
		Categories: map[finance.CostCategory]decimal.Decimal{
			finance.CostTailorWages: wages,
			finance.CostMaterials:   materials,
		},
		Total: wages.Add(materials),
	}, nil
}

func (s *Service) CalculatePLStatement(ctx context.Context, tenantID snowflake.ID, start, end time.Time) (finance.PLStatement, error) {
	if err := s.authorize(ctx, tenantID, start, end); err != nil {
		return finance.PLStatement{}, err
	}

	revenue, unpriced, err := s.revenue(ctx, tenantID, start, end)
	if err != nil {
		return finance.PLStatement{}, err
	}
	costs, err := s.costs(ctx, tenantID, start, end)
	if err != nil {
		return finance.PLStatement{}, err
	}

	statement := finance.PLStatement{
		TenantID:          tenantID,
		Start:             start.UTC(),
		End:               end.UTC(),
		Revenue:           revenue,
		Costs:             costs,
		GrossProfit:       revenue.Sub(costs.Total),
		UnpricedShipments: unpriced,
		GeneratedAt:       s.clock.Now(),
	}
	if !revenue.IsZero() {
		margin := statement.GrossProfit.DivRound(revenue, 4)
		statement.Margin = &margin
	}
	return statement, nil
}

// authorize admits only tenant-wide callers of the requested tenant.
func (s *Service) authorize(ctx context.Context, tenantID snowflake.ID, start, end time.Time) error {
	caller, err := principal.FromContext(ctx)
	if err != nil {
		return errors.Join(finance.ErrForbidden, err)
	}
	if !caller.TenantWide() || caller.TenantID != tenantID {
		return finance.ErrForbidden
	}
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return finance.ErrInvalidRange
	}
	return nil
}
