package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/stitchboard/internal/clock"
	finance "github.com/smallbiznis/stitchboard/internal/finance/domain"
	masterdata "github.com/smallbiznis/stitchboard/internal/masterdata/domain"
	"github.com/smallbiznis/stitchboard/internal/principal"
	production "github.com/smallbiznis/stitchboard/internal/production/domain"
	"github.com/smallbiznis/stitchboard/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tenantID snowflake.ID = 77

var (
	windowStart = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
)

type fixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	svc   finance.Service
	ctx   context.Context
	style snowflake.ID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t,
		&masterdata.Rate{},
		&production.FabricCutting{},
		&production.TailorJob{},
		&production.Shipment{},
	)
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		Clock: clock.NewFakeClock(windowEnd),
	})
	ctx := principal.WithPrincipal(context.Background(), principal.Principal{
		UserID: 1, TenantID: tenantID, Role: principal.RoleAdmin,
	})
	return fixture{db: conn, node: node, svc: svc, ctx: ctx, style: node.Generate()}
}

func (f fixture) rate(t *testing.T, kind masterdata.RateKind, amount string, effective time.Time, created time.Time) masterdata.Rate {
	t.Helper()
	rate := masterdata.Rate{
		ID: f.node.Generate(), TenantID: tenantID, StyleID: f.style, Kind: kind,
		Amount: decimal.RequireFromString(amount), EffectiveDate: effective, CreatedAt: created,
	}
	require.NoError(t, f.db.Create(&rate).Error)
	return rate
}

func (f fixture) shipment(t *testing.T, pcs int64, at time.Time) {
	t.Helper()
	require.NoError(t, f.db.Create(&production.Shipment{
		ID: f.node.Generate(), TenantID: tenantID, StyleID: f.style, VendorID: 1, PcsShipped: pcs, ShippedAt: at,
	}).Error)
}

func (f fixture) job(t *testing.T, pcs int64, rate string, at time.Time) {
	t.Helper()
	require.NoError(t, f.db.Create(&production.TailorJob{
		ID: f.node.Generate(), TenantID: tenantID, StyleID: f.style, TailorID: 1, IssuedPcs: pcs,
		Rate: decimal.RequireFromString(rate), Status: production.JobStatusPending, IssuedAt: at,
	}).Error)
}

func june(d int) time.Time {
	return time.Date(2026, 6, d, 0, 0, 0, 0, time.UTC)
}

func TestRevenueUsesRateEffectiveOnShipDate(t *testing.T) {
	f := newFixture(t)
	f.rate(t, masterdata.RateKindVendorPrice, "10", june(1), june(1))
	f.rate(t, masterdata.RateKindVendorPrice, "12", june(15), june(2))

	f.shipment(t, 10, june(14).Add(23*time.Hour)) // 10 x 10
	f.shipment(t, 5, june(15).Add(time.Hour))     // 5 x 12
	f.shipment(t, 3, windowEnd)                   // outside

	revenue, err := f.svc.CalculateRevenue(f.ctx, tenantID, windowStart, windowEnd)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(160).Equal(revenue), revenue.String())
}

func TestRevenueTieBreakPrefersLatestEntry(t *testing.T) {
	f := newFixture(t)
	f.rate(t, masterdata.RateKindVendorPrice, "8", june(1), june(1).Add(time.Hour))
	f.rate(t, masterdata.RateKindVendorPrice, "9", june(1), june(1).Add(2*time.Hour))
	// Same effective date and creation time: the higher id wins.
	f.rate(t, masterdata.RateKindVendorPrice, "11", june(1), june(1).Add(2*time.Hour))

	f.shipment(t, 1, june(3))

	revenue, err := f.svc.CalculateRevenue(f.ctx, tenantID, windowStart, windowEnd)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(11).Equal(revenue), revenue.String())
}

func TestUnpricedShipmentsContributeZero(t *testing.T) {
	f := newFixture(t)
	f.rate(t, masterdata.RateKindVendorPrice, "10", june(20), june(1))
	f.shipment(t, 4, june(10))

	statement, err := f.svc.CalculatePLStatement(f.ctx, tenantID, windowStart, windowEnd)
	require.NoError(t, err)
	assert.True(t, statement.Revenue.IsZero())
	assert.Equal(t, 1, statement.UnpricedShipments)
}

func TestCostsByCategory(t *testing.T) {
	f := newFixture(t)
	f.job(t, 50, "10", june(5))
	f.job(t, 10, "2.5", june(6))
	f.rate(t, masterdata.RateKindMaterial, "1.5", june(1), june(1))
	require.NoError(t, f.db.Create(&production.FabricCutting{
		ID: f.node.Generate(), TenantID: tenantID, StyleID: f.style, TotalQty: 100, CutAt: june(5),
	}).Error)

	costs, err := f.svc.CalculateCosts(f.ctx, tenantID, windowStart, windowEnd)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(525).Equal(costs.Categories[finance.CostTailorWages]))
	assert.True(t, decimal.NewFromInt(150).Equal(costs.Categories[finance.CostMaterials]))
	assert.True(t, decimal.NewFromInt(675).Equal(costs.Total))
}

func TestPLStatementWithoutRevenueHasNoMargin(t *testing.T) {
	f := newFixture(t)
	f.job(t, 50, "10", june(5))

	statement, err := f.svc.CalculatePLStatement(f.ctx, tenantID, windowStart, windowEnd)
	require.NoError(t, err)
	assert.True(t, statement.Revenue.IsZero())
	assert.True(t, decimal.NewFromInt(-500).Equal(statement.GrossProfit), statement.GrossProfit.String())
	assert.Nil(t, statement.Margin)
}

func TestPLStatementMargin(t *testing.T) {
	f := newFixture(t)
	f.rate(t, masterdata.RateKindVendorPrice, "20", june(1), june(1))
	f.shipment(t, 50, june(10))
	f.job(t, 50, "5", june(5))

	statement, err := f.svc.CalculatePLStatement(f.ctx, tenantID, windowStart, windowEnd)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(750).Equal(statement.GrossProfit))
	require.NotNil(t, statement.Margin)
	assert.True(t, decimal.RequireFromString("0.75").Equal(*statement.Margin), statement.Margin.String())

	pdf, err := f.svc.RenderPLStatementPDF(f.ctx, statement)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))
}

func TestFinanceRestrictedToTenantWideCallers(t *testing.T) {
	f := newFixture(t)

	vendorCtx := principal.WithPrincipal(context.Background(), principal.Principal{
		UserID: 2, TenantID: tenantID, Role: principal.RoleVendor, VendorID: 5,
	})
	_, err := f.svc.CalculatePLStatement(vendorCtx, tenantID, windowStart, windowEnd)
	assert.ErrorIs(t, err, finance.ErrForbidden)

	_, err = f.svc.CalculateRevenue(f.ctx, tenantID+1, windowStart, windowEnd)
	assert.ErrorIs(t, err, finance.ErrForbidden)

	_, err = f.svc.CalculateRevenue(context.Background(), tenantID, windowStart, windowEnd)
	assert.ErrorIs(t, err, finance.ErrForbidden)

	_, err = f.svc.CalculateCosts(f.ctx, tenantID, windowEnd, windowStart)
	assert.ErrorIs(t, err, finance.ErrInvalidRange)
}
