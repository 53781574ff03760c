package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	approval "github.com/smallbiznis/stitchboard/internal/approval/domain"
	"github.com/smallbiznis/stitchboard/internal/authorization"
	"github.com/smallbiznis/stitchboard/internal/clock"
	masterdata "github.com/smallbiznis/stitchboard/internal/masterdata/domain"
	"github.com/smallbiznis/stitchboard/internal/principal"
	"github.com/smallbiznis/stitchboard/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tenantID snowflake.ID = 42

var now = time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db     *gorm.DB
	svc    approval.Service
	vendor masterdata.Vendor
	style  masterdata.Style
	tailor masterdata.Tailor
}

var (
	admin   = principal.Principal{UserID: 1, TenantID: tenantID, Role: principal.RoleAdmin}
	manager = principal.Principal{UserID: 2, TenantID: tenantID, Role: principal.RoleManager}
)

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t,
		&masterdata.Vendor{},
		&masterdata.Style{},
		&masterdata.Tailor{},
		&masterdata.Rate{},
		&approval.Approval{},
	)
	node, err := snowflake.NewNode(5)
	require.NoError(t, err)
	enforcer, err := authorization.NewMemoryEnforcer()
	require.NoError(t, err)

	svc := NewService(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(now),
		Authz: authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer}),
	})

	f := fixture{db: conn, svc: svc}
	f.vendor = masterdata.Vendor{ID: node.Generate(), TenantID: tenantID, Code: "V1", Name: "Northwind"}
	f.style = masterdata.Style{ID: node.Generate(), TenantID: tenantID, VendorID: f.vendor.ID, Code: "S1", Name: "Oxford shirt", Status: masterdata.StyleStatusActive}
	f.tailor = masterdata.Tailor{ID: node.Generate(), TenantID: tenantID, Name: "Rina", Active: true}
	require.NoError(t, conn.Create(&f.vendor).Error)
	require.NoError(t, conn.Create(&f.style).Error)
	require.NoError(t, conn.Create(&f.tailor).Error)
	return f
}

func (f fixture) vendorCaller() principal.Principal {
	return principal.Principal{UserID: 3, TenantID: tenantID, Role: principal.RoleVendor, VendorID: f.vendor.ID}
}

func (f fixture) tailorCaller() principal.Principal {
	return principal.Principal{UserID: 4, TenantID: tenantID, Role: principal.RoleTailor, TailorID: f.tailor.ID}
}

func TestApproveStyleChangeAppliesPayload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	submitted, err := f.svc.Submit(ctx, f.vendorCaller(), approval.EntityStyle, f.style.ID,
		json.RawMessage(`{"name":"Oxford shirt slim"}`))
	require.NoError(t, err)
	assert.Equal(t, approval.StatusPending, submitted.Status)
	assert.Equal(t, principal.RoleVendor, submitted.SubmittedRole)

	var before masterdata.Style
	require.NoError(t, f.db.First(&before, "id = ?", f.style.ID).Error)
	assert.Equal(t, "Oxford shirt", before.Name)

	decided, err := f.svc.Approve(ctx, manager, submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, approval.StatusApproved, decided.Status)
	require.NotNil(t, decided.ReviewedBy)
	assert.Equal(t, manager.UserID, *decided.ReviewedBy)

	var after masterdata.Style
	require.NoError(t, f.db.First(&after, "id = ?", f.style.ID).Error)
	assert.Equal(t, "Oxford shirt slim", after.Name)

	_, err = f.svc.Approve(ctx, admin, submitted.ID)
	assert.ErrorIs(t, err, approval.ErrNotPending)
}

func TestRejectKeepsTargetUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	submitted, err := f.svc.Submit(ctx, f.tailorCaller(), approval.EntityTailor, f.tailor.ID,
		json.RawMessage(`{"phone":"+62 811 000"}`))
	require.NoError(t, err)

	decided, err := f.svc.Reject(ctx, manager, submitted.ID, "  number unverified ")
	require.NoError(t, err)
	assert.Equal(t, approval.StatusRejected, decided.Status)
	assert.Equal(t, "number unverified", decided.Reason)

	var tailor masterdata.Tailor
	require.NoError(t, f.db.First(&tailor, "id = ?", f.tailor.ID).Error)
	assert.Empty(t, tailor.Phone)
}

func TestApprovedRateProposalInsertsRate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	submitted, err := f.svc.Submit(ctx, manager, approval.EntityRate, f.style.ID,
		json.RawMessage(`{"kind":"vendor_price","amount":"18.50","effective_date":"2026-06-01T00:00:00Z"}`))
	require.NoError(t, err)

	// Managers may propose rates but only admins review them.
	_, err = f.svc.Approve(ctx, principal.Principal{UserID: 9, TenantID: tenantID, Role: principal.RoleManager}, submitted.ID)
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	_, err = f.svc.Approve(ctx, admin, submitted.ID)
	require.NoError(t, err)

	var rates []masterdata.Rate
	require.NoError(t, f.db.Where("style_id = ?", f.style.ID).Find(&rates).Error)
	require.Len(t, rates, 1)
	assert.Equal(t, masterdata.RateKindVendorPrice, rates[0].Kind)
	assert.True(t, decimal.RequireFromString("18.5").Equal(rates[0].Amount))
	assert.True(t, rates[0].EffectiveDate.Equal(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)))
}

func TestSubmitRejectsInvalidRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	otherVendor := principal.Principal{UserID: 7, TenantID: tenantID, Role: principal.RoleVendor, VendorID: 999}

	cases := []struct {
		name    string
		caller  principal.Principal
		entity  approval.TargetEntity
		target  snowflake.ID
		payload string
		want    error
	}{
		{"unknown entity", admin, approval.TargetEntity("invoice"), f.style.ID, `{}`, approval.ErrInvalidEntity},
		{"unknown field", admin, approval.EntityStyle, f.style.ID, `{"price":1}`, approval.ErrInvalidPayload},
		{"empty change", admin, approval.EntityStyle, f.style.ID, `{}`, approval.ErrInvalidPayload},
		{"bad status", admin, approval.EntityStyle, f.style.ID, `{"status":"deleted"}`, approval.ErrInvalidPayload},
		{"bad email", admin, approval.EntityVendor, f.vendor.ID, `{"contact_email":"nope"}`, approval.ErrInvalidPayload},
		{"negative rate", admin, approval.EntityRate, f.style.ID, `{"kind":"material","amount":"-1","effective_date":"2026-06-01T00:00:00Z"}`, approval.ErrInvalidPayload},
		{"missing target", admin, approval.EntityStyle, 12345, `{"name":"x"}`, approval.ErrTargetNotFound},
		{"foreign style", otherVendor, approval.EntityStyle, f.style.ID, `{"name":"x"}`, approval.ErrTargetNotFound},
		{"vendor edits tailor", f.vendorCaller(), approval.EntityTailor, f.tailor.ID, `{"name":"x"}`, authorization.ErrForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Submit(ctx, tc.caller, tc.entity, tc.target, json.RawMessage(tc.payload))
			assert.ErrorIs(t, err, tc.want)
		})
	}

	var count int64
	require.NoError(t, f.db.Model(&approval.Approval{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestReviewerCannotDecideOwnSubmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	submitted, err := f.svc.Submit(ctx, manager, approval.EntityVendor, f.vendor.ID,
		json.RawMessage(`{"name":"Northwind Apparel"}`))
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, manager, submitted.ID)
	assert.ErrorIs(t, err, approval.ErrSelfReview)

	_, err = f.svc.Reject(ctx, f.vendorCaller(), submitted.ID, "")
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	otherTenant := principal.Principal{UserID: 1, TenantID: tenantID + 1, Role: principal.RoleAdmin}
	_, err = f.svc.Approve(ctx, otherTenant, submitted.ID)
	assert.ErrorIs(t, err, approval.ErrApprovalNotFound)
}

func TestListScopesByReviewPermission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fromVendor, err := f.svc.Submit(ctx, f.vendorCaller(), approval.EntityStyle, f.style.ID,
		json.RawMessage(`{"status":"archived"}`))
	require.NoError(t, err)
	fromTailor, err := f.svc.Submit(ctx, f.tailorCaller(), approval.EntityTailor, f.tailor.ID,
		json.RawMessage(`{"active":false}`))
	require.NoError(t, err)

	all, err := f.svc.List(ctx, admin, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	own, err := f.svc.List(ctx, f.tailorCaller(), "")
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, fromTailor.ID, own[0].ID)

	_, err = f.svc.Reject(ctx, admin, fromVendor.ID, "keep active")
	require.NoError(t, err)

	pending, err := f.svc.List(ctx, admin, approval.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, fromTailor.ID, pending[0].ID)

	_, err = f.svc.List(ctx, admin, approval.Status("open"))
	assert.ErrorIs(t, err, approval.ErrInvalidStatus)
}
