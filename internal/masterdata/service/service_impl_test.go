package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	masterdata "github.com/smallbiznis/stitchboard/internal/masterdata/domain"
	"github.com/smallbiznis/stitchboard/internal/principal"
	"github.com/smallbiznis/stitchboard/pkg/db/dbtest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupService(t *testing.T) (masterdata.Service, *snowflake.Node) {
	t.Helper()
	conn := dbtest.Open(t,
		&masterdata.Tenant{},
		&masterdata.Vendor{},
		&masterdata.Style{},
		&masterdata.Tailor{},
		&masterdata.Rate{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewService(Params{DB: conn, Log: zap.NewNop(), GenID: node}), node
}

func adminCtx(tenantID snowflake.ID) context.Context {
	return principal.WithPrincipal(context.Background(), principal.Principal{
		UserID:   1,
		TenantID: tenantID,
		Role:     principal.RoleAdmin,
	})
}

func TestCreateStyleSlugifiesCodeAndRejectsDuplicates(t *testing.T) {
	svc, _ := setupService(t)
	tenant, err := svc.CreateTenant(context.Background(), masterdata.CreateTenantRequest{Name: "Acme Garments"})
	require.NoError(t, err)
	assert.Equal(t, "acme-garments", tenant.Slug)

	ctx := adminCtx(tenant.ID)
	vendor, err := svc.CreateVendor(ctx, masterdata.CreateVendorRequest{Name: "North Wear", ContactEmail: "ops@north.example"})
	require.NoError(t, err)

	style, err := svc.CreateStyle(ctx, masterdata.CreateStyleRequest{VendorID: vendor.ID, Name: "Linen Shirt SS24"})
	require.NoError(t, err)
	assert.Equal(t, "linen-shirt-ss24", style.Code)
	assert.Equal(t, masterdata.StyleStatusActive, style.Status)

	_, err = svc.CreateStyle(ctx, masterdata.CreateStyleRequest{VendorID: vendor.ID, Name: "linen shirt ss24"})
	assert.ErrorIs(t, err, masterdata.ErrDuplicateCode)
}

func TestCreateStyleValidation(t *testing.T) {
	svc, node := setupService(t)
	ctx := adminCtx(node.Generate())

	_, err := svc.CreateStyle(ctx, masterdata.CreateStyleRequest{Name: "No vendor"})
	assert.ErrorIs(t, err, masterdata.ErrInvalidRequest)

	_, err = svc.CreateStyle(ctx, masterdata.CreateStyleRequest{VendorID: node.Generate(), Name: "Ghost vendor"})
	assert.ErrorIs(t, err, masterdata.ErrVendorNotFound)

	_, err = svc.CreateVendor(ctx, masterdata.CreateVendorRequest{Name: "Bad Mail", ContactEmail: "not-an-email"})
	assert.ErrorIs(t, err, masterdata.ErrInvalidRequest)
}

func TestListStylesScopesVendor(t *testing.T) {
	svc, _ := setupService(t)
	tenant, err := svc.CreateTenant(context.Background(), masterdata.CreateTenantRequest{Name: "Scope Co"})
	require.NoError(t, err)
	ctx := adminCtx(tenant.ID)

	v1, err := svc.CreateVendor(ctx, masterdata.CreateVendorRequest{Name: "Vendor One"})
	require.NoError(t, err)
	v2, err := svc.CreateVendor(ctx, masterdata.CreateVendorRequest{Name: "Vendor Two"})
	require.NoError(t, err)
	_, err = svc.CreateStyle(ctx, masterdata.CreateStyleRequest{VendorID: v1.ID, Name: "Polo"})
	require.NoError(t, err)
	_, err = svc.CreateStyle(ctx, masterdata.CreateStyleRequest{VendorID: v2.ID, Name: "Chino"})
	require.NoError(t, err)

	vendorCtx := principal.WithPrincipal(context.Background(), principal.Principal{
		UserID: 9, TenantID: tenant.ID, Role: principal.RoleVendor, VendorID: v1.ID,
	})
	styles, err := svc.ListStyles(vendorCtx, masterdata.ListStylesRequest{VendorID: v2.ID})
	require.NoError(t, err)
	if assert.Len(t, styles, 1) {
		assert.Equal(t, "polo", styles[0].Code)
	}

	vendors, err := svc.ListVendors(vendorCtx)
	require.NoError(t, err)
	assert.Len(t, vendors, 1)

	all, err := svc.ListStyles(ctx, masterdata.ListStylesRequest{Search: "CHI"})
	require.NoError(t, err)
	if assert.Len(t, all, 1) {
		assert.Equal(t, "chino", all[0].Code)
	}
}

func TestCreateRateRequiresPositiveAmount(t *testing.T) {
	svc, _ := setupService(t)
	tenant, err := svc.CreateTenant(context.Background(), masterdata.CreateTenantRequest{Name: "Rates Co"})
	require.NoError(t, err)
	ctx := adminCtx(tenant.ID)

	vendor, err := svc.CreateVendor(ctx, masterdata.CreateVendorRequest{Name: "V"})
	require.NoError(t, err)
	style, err := svc.CreateStyle(ctx, masterdata.CreateStyleRequest{VendorID: vendor.ID, Name: "Tee"})
	require.NoError(t, err)

	effective := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = svc.CreateRate(ctx, masterdata.CreateRateRequest{
		StyleID: style.ID, Kind: masterdata.RateKindVendorPrice, Amount: decimal.Zero, EffectiveDate: effective,
	})
	assert.ErrorIs(t, err, masterdata.ErrInvalidAmount)

	_, err = svc.CreateRate(ctx, masterdata.CreateRateRequest{
		StyleID: style.ID, Kind: "bonus", Amount: decimal.NewFromInt(5), EffectiveDate: effective,
	})
	assert.ErrorIs(t, err, masterdata.ErrInvalidRequest)

	rate, err := svc.CreateRate(ctx, masterdata.CreateRateRequest{
		StyleID: style.ID, Kind: masterdata.RateKindVendorPrice, Amount: decimal.RequireFromString("12.50"), EffectiveDate: effective,
	})
	require.NoError(t, err)

	rates, err := svc.ListRates(ctx, style.ID)
	require.NoError(t, err)
	if assert.Len(t, rates, 1) {
		assert.Equal(t, rate.ID, rates[0].ID)
		assert.True(t, rates[0].Amount.Equal(decimal.RequireFromString("12.5")))
	}
}

func TestScopedCallsRequirePrincipal(t *testing.T) {
	svc, _ := setupService(t)
	_, err := svc.ListStyles(context.Background(), masterdata.ListStylesRequest{})
	assert.ErrorIs(t, err, principal.ErrUnauthenticated)
}
