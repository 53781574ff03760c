package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	analytics "github.com/smallbiznis/stitchboard/internal/analytics/domain"
	approval "github.com/smallbiznis/stitchboard/internal/approval/domain"
	audit "github.com/smallbiznis/stitchboard/internal/audit/domain"
	"github.com/smallbiznis/stitchboard/internal/authorization"
	"github.com/smallbiznis/stitchboard/internal/clock"
	"github.com/smallbiznis/stitchboard/internal/config"
	dailyagg "github.com/smallbiznis/stitchboard/internal/dailyagg/domain"
	finance "github.com/smallbiznis/stitchboard/internal/finance/domain"
	masterdata "github.com/smallbiznis/stitchboard/internal/masterdata/domain"
	"github.com/smallbiznis/stitchboard/internal/principal"
	production "github.com/smallbiznis/stitchboard/internal/production/domain"
	"github.com/smallbiznis/stitchboard/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "etl-secret"

type fakeAnalytics struct {
	filters []analytics.Filter
}

func (f *fakeAnalytics) GetKPICards(ctx context.Context, filter analytics.Filter) ([]analytics.KPICard, error) {
	f.filters = append(f.filters, filter)
	return []analytics.KPICard{}, nil
}

func (f *fakeAnalytics) GetTrendData(ctx context.Context, metric analytics.Metric, filter analytics.Filter, granularity analytics.Granularity) ([]analytics.TrendPoint, error) {
	f.filters = append(f.filters, filter)
	return []analytics.TrendPoint{}, nil
}

func (f *fakeAnalytics) GetBreakdown(ctx context.Context, metric analytics.Metric, groupBy analytics.GroupBy, filter analytics.Filter, limit int) ([]analytics.BreakdownEntry, error) {
	f.filters = append(f.filters, filter)
	if filter.TailorScoped() && !metric.JobDerived() {
		return nil, analytics.ErrMetricUnavailable
	}
	return []analytics.BreakdownEntry{}, nil
}

func (f *fakeAnalytics) GetDrilldownTable(ctx context.Context, filter analytics.Filter, page pagination.Page) (pagination.Result[analytics.DrilldownRow], error) {
	f.filters = append(f.filters, filter)
	return pagination.Result[analytics.DrilldownRow]{}, nil
}

func (f *fakeAnalytics) ExportDrilldown(ctx context.Context, filter analytics.Filter, page pagination.Page, w io.Writer) (int, error) {
	f.filters = append(f.filters, filter)
	_, err := w.Write([]byte("xlsx"))
	return 3, err
}

type fakeFinance struct {
	tenantID   snowflake.ID
	start, end time.Time
}

func (f *fakeFinance) CalculateRevenue(ctx context.Context, tenantID snowflake.ID, start, end time.Time) (decimal.Decimal, error) {
	f.tenantID, f.start, f.end = tenantID, start, end
	p, err := principal.FromContext(ctx)
	if err != nil || !p.TenantWide() {
		return decimal.Zero, finance.ErrForbidden
	}
	return decimal.NewFromInt(1200), nil
}

func (f *fakeFinance) CalculateCosts(ctx context.Context, tenantID snowflake.ID, start, end time.Time) (finance.CostBreakdown, error) {
	return finance.CostBreakdown{}, nil
}

func (f *fakeFinance) CalculatePLStatement(ctx context.Context, tenantID snowflake.ID, start, end time.Time) (finance.PLStatement, error) {
	return finance.PLStatement{}, nil
}

func (f *fakeFinance) RenderPLStatementPDF(ctx context.Context, statement finance.PLStatement) ([]byte, error) {
	return []byte("%PDF"), nil
}

type fakeRollup struct {
	refreshed []snowflake.ID
	dates     []time.Time
}

func (f *fakeRollup) Refresh(ctx context.Context, tenantID snowflake.ID, date time.Time) (*dailyagg.RefreshResult, error) {
	f.refreshed = append(f.refreshed, tenantID)
	f.dates = append(f.dates, date)
	return &dailyagg.RefreshResult{TenantID: tenantID, Date: date}, nil
}

func (f *fakeRollup) RefreshAll(ctx context.Context, date time.Time) (dailyagg.BatchResult, error) {
	f.dates = append(f.dates, date)
	return dailyagg.BatchResult{Date: date}, nil
}

func (f *fakeRollup) RefreshRange(ctx context.Context, tenantID snowflake.ID, from, to time.Time) ([]dailyagg.RefreshResult, error) {
	return nil, nil
}

type fakeMasterData struct {
	masterdata.Service
	vendorCreated bool
}

func (f *fakeMasterData) CreateVendor(ctx context.Context, req masterdata.CreateVendorRequest) (*masterdata.Vendor, error) {
	f.vendorCreated = true
	if req.Name == "" {
		return nil, masterdata.ErrInvalidRequest
	}
	return &masterdata.Vendor{Name: req.Name, ContactEmail: req.ContactEmail}, nil
}

func (f *fakeMasterData) GetStyle(ctx context.Context, id snowflake.ID) (*masterdata.Style, error) {
	return nil, masterdata.ErrStyleNotFound
}

type fakeAudit struct {
	entries []fakeAuditEntry
}

type fakeAuditEntry struct {
	action   string
	metadata map[string]any
}

func (f *fakeAudit) AuditLog(ctx context.Context, action string, targetType string, targetID snowflake.ID, metadata map[string]any) error {
	f.entries = append(f.entries, fakeAuditEntry{action: action, metadata: metadata})
	return nil
}

func (f *fakeAudit) List(ctx context.Context, req audit.ListAuditLogRequest) (pagination.Result[audit.AuditLog], error) {
	return pagination.Result[audit.AuditLog]{Rows: []audit.AuditLog{}}, nil
}

type fakeProduction struct {
	production.Service
}

type fakeApproval struct {
	approval.Service
}

type testServer struct {
	engine     *gin.Engine
	analytics  *fakeAnalytics
	finance    *fakeFinance
	rollup     *fakeRollup
	masterdata *fakeMasterData
	audit      *fakeAudit
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	enforcer, err := authorization.NewMemoryEnforcer()
	require.NoError(t, err)

	ts := &testServer{
		engine:     NewEngine(false),
		analytics:  &fakeAnalytics{},
		finance:    &fakeFinance{},
		rollup:     &fakeRollup{},
		masterdata: &fakeMasterData{},
		audit:      &fakeAudit{},
	}
	NewServer(ServerParams{
		Gin:           ts.engine,
		Cfg:           config.Config{ETLSharedSecret: testSecret},
		Log:           zap.NewNop(),
		Clock:         clock.NewFakeClock(time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)),
		AnalyticsCfg:  config.StaticAnalyticsConfig(config.DefaultAnalyticsConfig()),
		AuthzSvc:      authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer}),
		AnalyticsSvc:  ts.analytics,
		FinanceSvc:    ts.finance,
		ApprovalSvc:   &fakeApproval{},
		MasterdataSvc: ts.masterdata,
		ProductionSvc: &fakeProduction{},
		RollupSvc:     ts.rollup,
		AuditSvc:      ts.audit,
	})
	return ts
}

func (ts *testServer) do(method, target string, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func adminHeaders() map[string]string {
	return map[string]string{HeaderUserID: "1", HeaderRole: "admin", HeaderTenantID: "10"}
}

func vendorHeaders() map[string]string {
	return map[string]string{HeaderUserID: "3", HeaderRole: "vendor", HeaderTenantID: "10", HeaderVendorID: "42"}
}

func errorType(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error.Type
}

func TestPrincipalRequired(t *testing.T) {
	ts := newTestServer(t)

	cases := []struct {
		name    string
		headers map[string]string
		status  int
	}{
		{"no headers", nil, http.StatusUnauthorized},
		{"unknown role", map[string]string{HeaderUserID: "1", HeaderRole: "owner", HeaderTenantID: "10"}, http.StatusUnauthorized},
		{"bad user id", map[string]string{HeaderUserID: "abc", HeaderRole: "admin", HeaderTenantID: "10"}, http.StatusUnauthorized},
		{"missing tenant", map[string]string{HeaderUserID: "1", HeaderRole: "admin"}, http.StatusForbidden},
		{"vendor without vendor id", map[string]string{HeaderUserID: "3", HeaderRole: "vendor", HeaderTenantID: "10"}, http.StatusForbidden},
		{"admin", adminHeaders(), http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(http.MethodGet, "/api/analytics/kpi", "", tc.headers)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}

func TestVendorFilterIgnoresRequestedVendors(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/analytics/drilldown?vendorIds=7,8&search=Shirt", "", vendorHeaders())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Len(t, ts.analytics.filters, 1)
	filter := ts.analytics.filters[0]
	assert.Equal(t, []snowflake.ID{42}, filter.VendorIDs())
	assert.Equal(t, snowflake.ID(10), filter.TenantID())
	assert.Equal(t, "shirt", filter.Search())
}

func TestDefaultWindowIsThirtyDays(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/analytics/kpi", "", adminHeaders())
	require.Equal(t, http.StatusOK, rec.Code)

	filter := ts.analytics.filters[0]
	assert.Equal(t, time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC), filter.End())
	assert.Equal(t, 30, filter.Days())
}

func TestTailorScopedMetricUnavailable(t *testing.T) {
	ts := newTestServer(t)
	tailor := map[string]string{HeaderUserID: "4", HeaderRole: "tailor", HeaderTenantID: "10", HeaderTailorID: "77"}

	rec := ts.do(http.MethodGet, "/api/analytics/breakdown?metric=shipped_pcs&groupBy=style", "", tailor)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodGet, "/api/analytics/breakdown?metric=pieces_issued&groupBy=style", "", tailor)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []snowflake.ID{77}, ts.analytics.filters[1].TailorIDs())
}

func TestQueryValidation(t *testing.T) {
	ts := newTestServer(t)

	cases := []struct {
		name   string
		target string
	}{
		{"unknown metric", "/api/analytics/trend?metric=profit&granularity=day"},
		{"unknown granularity", "/api/analytics/trend?metric=shipped_pcs&granularity=hour"},
		{"bad id list", "/api/analytics/kpi?styleIds=1,x"},
		{"bad limit", "/api/analytics/breakdown?metric=shipped_pcs&groupBy=style&limit=ten"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(http.MethodGet, tc.target, "", adminHeaders())
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, "validation_error", errorType(t, rec))
		})
	}
}

func TestFinanceRequiresTenantWideCaller(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/finance/revenue", "", vendorHeaders())
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(http.MethodGet, "/api/finance/revenue?start=2024-03-01&end=2024-03-10", "", adminHeaders())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, snowflake.ID(10), ts.finance.tenantID)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), ts.finance.start)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), ts.finance.end)
}

func TestExportsReturnFiles(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/analytics/drilldown/export", "", adminHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Disposition"), "attachment;"))

	rec = ts.do(http.MethodGet, "/api/finance/pl.pdf", "", adminHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
}

func TestETLSecret(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/internal/etl/refresh", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodPost, "/internal/etl/refresh", "", map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, ts.rollup.dates)

	rec = ts.do(http.MethodPost, "/internal/etl/refresh", "", map[string]string{"Authorization": "Bearer " + testSecret})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []time.Time{time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)}, ts.rollup.dates)
}

func TestETLRefreshSingleTenant(t *testing.T) {
	ts := newTestServer(t)
	auth := map[string]string{"Authorization": "Bearer " + testSecret}

	rec := ts.do(http.MethodPost, "/internal/etl/refresh?tenantId=10&date=2024-02-29", "", auth)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []snowflake.ID{10}, ts.rollup.refreshed)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), ts.rollup.dates[0])

	rec = ts.do(http.MethodPost, "/internal/etl/refresh?date=yesterday", "", auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestETLWithoutSecretIsUnavailable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewEngine(false)
	r.POST("/refresh", ETLSecretRequired(""), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/refresh", nil)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMasterDataRoutes(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/vendors", `{"name":"Acme"}`, vendorHeaders())
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, ts.masterdata.vendorCreated)

	rec = ts.do(http.MethodPost, "/api/vendors", `{"name":"  "}`, adminHeaders())
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/api/vendors", `{"name":"Acme","contact_email":"ops@acme.example"}`, adminHeaders())
	assert.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, ts.audit.entries, 1)
	assert.Equal(t, "vendor.create", ts.audit.entries[0].action)
	assert.Equal(t, "****mple", ts.audit.entries[0].metadata["contact_email"])

	rec = ts.do(http.MethodGet, "/api/styles/99", "", adminHeaders())
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodGet, "/api/styles/abc", "", adminHeaders())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuditLogsAdminOnly(t *testing.T) {
	ts := newTestServer(t)
	manager := map[string]string{HeaderUserID: "2", HeaderRole: "manager", HeaderTenantID: "10"}

	rec := ts.do(http.MethodGet, "/api/audit-logs", "", manager)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(http.MethodGet, "/api/audit-logs?action=vendor.create", "", adminHeaders())
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestMapError(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{principal.ErrUnauthenticated, http.StatusUnauthorized},
		{authorization.ErrForbidden, http.StatusForbidden},
		{approval.ErrSelfReview, http.StatusForbidden},
		{approval.ErrNotPending, http.StatusConflict},
		{approval.ErrApprovalNotFound, http.StatusNotFound},
		{production.ErrReturnedExceeds, http.StatusBadRequest},
		{ErrRateLimited, http.StatusTooManyRequests},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, _ := mapError(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
	}
}
