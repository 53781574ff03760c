package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/stitchboard/internal/clock"
	dailyagg "github.com/smallbiznis/stitchboard/internal/dailyagg/domain"
	masterdata "github.com/smallbiznis/stitchboard/internal/masterdata/domain"
	masterdataservice "github.com/smallbiznis/stitchboard/internal/masterdata/service"
	"github.com/smallbiznis/stitchboard/internal/observability/metrics"
	production "github.com/smallbiznis/stitchboard/internal/production/domain"
	"github.com/smallbiznis/stitchboard/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var day = time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)

type harness struct {
	db   *gorm.DB
	node *snowflake.Node
	svc  dailyagg.Service
}

func newHarness(t *testing.T) harness {
	t.Helper()
	conn := dbtest.Open(t,
		&masterdata.Tenant{},
		&masterdata.Vendor{},
		&masterdata.Style{},
		&production.FabricCutting{},
		&production.TailorJob{},
		&production.Shipment{},
		&dailyagg.DailyAggregate{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	md := masterdataservice.NewService(masterdataservice.Params{DB: conn, Log: zap.NewNop(), GenID: node})
	svc := NewService(Params{
		DB:         conn,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clock.NewFakeClock(day.Add(30 * time.Hour)),
		MasterData: md,
		Metrics:    metrics.NewNoop(),
	})
	return harness{db: conn, node: node, svc: svc}
}

func (h harness) tenant(t *testing.T, slug string) snowflake.ID {
	t.Helper()
	tenant := masterdata.Tenant{ID: h.node.Generate(), Name: slug, Slug: slug, Active: true}
	require.NoError(t, h.db.Create(&tenant).Error)
	return tenant.ID
}

func (h harness) style(t *testing.T, tenantID snowflake.ID, code string) masterdata.Style {
	t.Helper()
	vendor := masterdata.Vendor{ID: h.node.Generate(), TenantID: tenantID, Code: code + "-vendor", Name: code}
	require.NoError(t, h.db.Create(&vendor).Error)
	style := masterdata.Style{ID: h.node.Generate(), TenantID: tenantID, VendorID: vendor.ID, Code: code, Name: code, Status: masterdata.StyleStatusActive}
	require.NoError(t, h.db.Create(&style).Error)
	return style
}

func (h harness) aggregate(t *testing.T, tenantID, styleID snowflake.ID) dailyagg.DailyAggregate {
	t.Helper()
	var agg dailyagg.DailyAggregate
	require.NoError(t, h.db.Where("tenant_id = ? AND style_id = ? AND date = ?", tenantID, styleID, day).Take(&agg).Error)
	return agg
}

func TestRefreshComputesStyleTotals(t *testing.T) {
	h := newHarness(t)
	tenantID := h.tenant(t, "acme")
	style := h.style(t, tenantID, "cargo")

	require.NoError(t, h.db.Create(&production.FabricCutting{
		ID: h.node.Generate(), TenantID: tenantID, StyleID: style.ID, TotalQty: 100, CutAt: day.Add(9 * time.Hour),
	}).Error)
	require.NoError(t, h.db.Create(&production.TailorJob{
		ID: h.node.Generate(), TenantID: tenantID, StyleID: style.ID, TailorID: 7,
		IssuedPcs: 50, Rate: decimal.NewFromInt(10), Status: production.JobStatusPending, IssuedAt: day.Add(10 * time.Hour),
	}).Error)
	// Outside the window.
	require.NoError(t, h.db.Create(&production.FabricCutting{
		ID: h.node.Generate(), TenantID: tenantID, StyleID: style.ID, TotalQty: 999, CutAt: day.Add(24 * time.Hour),
	}).Error)

	result, err := h.svc.Refresh(context.Background(), tenantID, day.Add(15*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, result.StylesProcessed)
	assert.Equal(t, 1, result.RecordsWritten)
	assert.Empty(t, result.Failures)
	assert.NotEmpty(t, result.RunID)

	agg := h.aggregate(t, tenantID, style.ID)
	assert.Equal(t, int64(100), agg.CuttingReceived)
	assert.Equal(t, int64(50), agg.PiecesIssued)
	assert.Equal(t, int64(50), agg.InProductionPcs)
	assert.True(t, decimal.NewFromInt(500).Equal(agg.TailorExpense), agg.TailorExpense.String())
	assert.Equal(t, style.VendorID, agg.VendorID)
}

func TestRefreshExcludesClosedJobsFromInProduction(t *testing.T) {
	h := newHarness(t)
	tenantID := h.tenant(t, "acme")
	style := h.style(t, tenantID, "polo")

	jobs := []production.TailorJob{
		{IssuedPcs: 40, ReturnedPcs: 10, Status: production.JobStatusInProgress},
		{IssuedPcs: 20, ReturnedPcs: 20, Status: production.JobStatusCompleted},
		{IssuedPcs: 5, Status: production.JobStatusCancelled},
	}
	for i := range jobs {
		jobs[i].ID = h.node.Generate()
		jobs[i].TenantID = tenantID
		jobs[i].StyleID = style.ID
		jobs[i].TailorID = 9
		jobs[i].Rate = decimal.RequireFromString("2.5")
		jobs[i].IssuedAt = day.Add(time.Duration(i+1) * time.Hour)
		require.NoError(t, h.db.Create(&jobs[i]).Error)
	}
	require.NoError(t, h.db.Create(&production.Shipment{
		ID: h.node.Generate(), TenantID: tenantID, StyleID: style.ID, VendorID: style.VendorID, PcsShipped: 15, ShippedAt: day.Add(20 * time.Hour),
	}).Error)

	_, err := h.svc.Refresh(context.Background(), tenantID, day)
	require.NoError(t, err)

	agg := h.aggregate(t, tenantID, style.ID)
	assert.Equal(t, int64(65), agg.PiecesIssued)
	assert.Equal(t, int64(30), agg.PiecesReturned)
	assert.Equal(t, int64(30), agg.InProductionPcs)
	assert.Equal(t, int64(15), agg.ShippedPcs)
	assert.True(t, decimal.RequireFromString("162.5").Equal(agg.TailorExpense), agg.TailorExpense.String())
}

func TestRefreshWritesExplicitZeroRows(t *testing.T) {
	h := newHarness(t)
	tenantID := h.tenant(t, "acme")
	idle := h.style(t, tenantID, "idle")

	result, err := h.svc.Refresh(context.Background(), tenantID, day)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RecordsWritten)

	agg := h.aggregate(t, tenantID, idle.ID)
	assert.Zero(t, agg.CuttingReceived)
	assert.Zero(t, agg.InProductionPcs)
	assert.True(t, agg.TailorExpense.IsZero())
}

func TestRefreshIsIdempotent(t *testing.T) {
	h := newHarness(t)
	tenantID := h.tenant(t, "acme")
	style := h.style(t, tenantID, "tee")

	require.NoError(t, h.db.Create(&production.FabricCutting{
		ID: h.node.Generate(), TenantID: tenantID, StyleID: style.ID, TotalQty: 80, CutAt: day.Add(time.Hour),
	}).Error)

	_, err := h.svc.Refresh(context.Background(), tenantID, day)
	require.NoError(t, err)
	first := h.aggregate(t, tenantID, style.ID)

	_, err = h.svc.Refresh(context.Background(), tenantID, day)
	require.NoError(t, err)
	second := h.aggregate(t, tenantID, style.ID)

	var count int64
	require.NoError(t, h.db.Model(&dailyagg.DailyAggregate{}).Where("tenant_id = ?", tenantID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CuttingReceived, second.CuttingReceived)
	assert.Equal(t, first.InProductionPcs, second.InProductionPcs)
	assert.True(t, first.TailorExpense.Equal(second.TailorExpense))
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRefreshIsolatesStyleFailures(t *testing.T) {
	h := newHarness(t)
	tenantID := h.tenant(t, "acme")
	broken := h.style(t, tenantID, "broken")
	healthy := h.style(t, tenantID, "healthy")

	require.NoError(t, h.db.Callback().Create().Before("gorm:create").Register("test:fail_style", func(tx *gorm.DB) {
		if agg, ok := tx.Statement.Dest.(*dailyagg.DailyAggregate); ok && agg.StyleID == broken.ID {
			_ = tx.AddError(errors.New("disk full"))
		}
	}))

	result, err := h.svc.Refresh(context.Background(), tenantID, day)
	require.NoError(t, err)
	assert.Equal(t, 2, result.StylesProcessed)
	assert.Equal(t, 1, result.RecordsWritten)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, broken.ID, result.Failures[0].StyleID)
	assert.Error(t, result.Err())

	h.aggregate(t, tenantID, healthy.ID)
}

func TestRefreshAllReportsPerTenant(t *testing.T) {
	h := newHarness(t)
	good := h.tenant(t, "good")
	bad := h.tenant(t, "bad")
	h.style(t, good, "a")
	badStyle := h.style(t, bad, "b")

	require.NoError(t, h.db.Callback().Create().Before("gorm:create").Register("test:fail_tenant", func(tx *gorm.DB) {
		if agg, ok := tx.Statement.Dest.(*dailyagg.DailyAggregate); ok && agg.StyleID == badStyle.ID {
			_ = tx.AddError(errors.New("boom"))
		}
	}))

	batch, err := h.svc.RefreshAll(context.Background(), day)
	require.NoError(t, err)
	require.Len(t, batch.Tenants, 2)
	assert.Equal(t, 1, batch.Failed())

	byTenant := map[snowflake.ID]dailyagg.TenantRefresh{}
	for _, entry := range batch.Tenants {
		byTenant[entry.TenantID] = entry
	}
	assert.True(t, byTenant[good].Success)
	assert.False(t, byTenant[bad].Success)
	assert.Contains(t, byTenant[bad].Error, "boom")
}

func TestRefreshRange(t *testing.T) {
	h := newHarness(t)
	tenantID := h.tenant(t, "acme")
	h.style(t, tenantID, "denim")

	results, err := h.svc.RefreshRange(context.Background(), tenantID, day, day.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, day.AddDate(0, 0, 2), results[2].Date)

	_, err = h.svc.RefreshRange(context.Background(), tenantID, day, day.AddDate(0, 0, -1))
	assert.ErrorIs(t, err, dailyagg.ErrInvalidRequest)

	_, err = h.svc.RefreshRange(context.Background(), tenantID, day, day.AddDate(2, 0, 0))
	assert.ErrorIs(t, err, dailyagg.ErrRangeTooLarge)
}
