package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	analytics "github.com/smallbiznis/stitchboard/internal/analytics/domain"
	approval "github.com/smallbiznis/stitchboard/internal/approval/domain"
	audit "github.com/smallbiznis/stitchboard/internal/audit/domain"
	"github.com/smallbiznis/stitchboard/internal/authorization"
	"github.com/smallbiznis/stitchboard/internal/clock"
	"github.com/smallbiznis/stitchboard/internal/config"
	dailyagg "github.com/smallbiznis/stitchboard/internal/dailyagg/domain"
	finance "github.com/smallbiznis/stitchboard/internal/finance/domain"
	masterdata "github.com/smallbiznis/stitchboard/internal/masterdata/domain"
	"github.com/smallbiznis/stitchboard/internal/observability"
	obsmiddleware "github.com/smallbiznis/stitchboard/internal/observability/logger"
	obstracing "github.com/smallbiznis/stitchboard/internal/observability/tracing"
	production "github.com/smallbiznis/stitchboard/internal/production/domain"
	"github.com/smallbiznis/stitchboard/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(debug bool) *gin.Engine {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           debug,
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg.Debug())
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	clock         clock.Clock
	analyticsCfg  *config.AnalyticsConfigHolder
	authzSvc      authorization.Service
	analyticsSvc  analytics.Service
	financeSvc    finance.Service
	approvalSvc   approval.Service
	masterdataSvc masterdata.Service
	productionSvc production.Service
	rollupSvc     dailyagg.Service
	exportLimiter *ratelimit.ExportLimiter
	auditSvc      audit.Service
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	Clock         clock.Clock
	AnalyticsCfg  *config.AnalyticsConfigHolder
	AuthzSvc      authorization.Service
	AnalyticsSvc  analytics.Service
	FinanceSvc    finance.Service
	ApprovalSvc   approval.Service
	MasterdataSvc masterdata.Service
	ProductionSvc production.Service
	RollupSvc     dailyagg.Service
	ExportLimiter *ratelimit.ExportLimiter `optional:"true"`
	AuditSvc      audit.Service            `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http.server"),
		clock:         p.Clock,
		analyticsCfg:  p.AnalyticsCfg,
		authzSvc:      p.AuthzSvc,
		analyticsSvc:  p.AnalyticsSvc,
		financeSvc:    p.FinanceSvc,
		approvalSvc:   p.ApprovalSvc,
		masterdataSvc: p.MasterdataSvc,
		productionSvc: p.ProductionSvc,
		rollupSvc:     p.RollupSvc,
		exportLimiter: p.ExportLimiter,
		auditSvc:      p.AuditSvc,
	}

	svc.registerInternalRoutes()
	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerInternalRoutes() {
	internal := s.engine.Group("/internal", ETLSecretRequired(s.cfg.ETLSharedSecret))
	internal.POST("/etl/refresh", s.RefreshAggregates)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", PrincipalRequired())

	// -------- Analytics --------
	view := s.authorize(authorization.ObjectAnalytics, authorization.ActionView)
	api.GET("/analytics/kpi", view, s.GetKPICards)
	api.GET("/analytics/trend", view, s.GetTrend)
	api.GET("/analytics/breakdown", view, s.GetBreakdown)
	api.GET("/analytics/drilldown", view, s.GetDrilldown)
	api.GET("/analytics/drilldown/export", s.authorize(authorization.ObjectAnalytics, authorization.ActionExport), s.exportRateLimit(), s.ExportDrilldown)

	// -------- Finance --------
	financeView := s.authorize(authorization.ObjectFinance, authorization.ActionView)
	api.GET("/finance/revenue", financeView, s.GetRevenue)
	api.GET("/finance/costs", financeView, s.GetCosts)
	api.GET("/finance/pl", financeView, s.GetPLStatement)
	api.GET("/finance/pl.pdf", s.authorize(authorization.ObjectFinance, authorization.ActionExport), s.exportRateLimit(), s.GetPLStatementPDF)

	// -------- Master data --------
	mdView := s.authorize(authorization.ObjectMasterData, authorization.ActionView)
	mdCreate := s.authorize(authorization.ObjectMasterData, authorization.ActionCreate)
	api.GET("/vendors", mdView, s.ListVendors)
	api.POST("/vendors", mdCreate, s.CreateVendor)
	api.GET("/styles", mdView, s.ListStyles)
	api.POST("/styles", mdCreate, s.CreateStyle)
	api.GET("/styles/:id", mdView, s.GetStyle)
	api.GET("/styles/:id/rates", mdView, s.ListRates)
	api.GET("/tailors", mdView, s.ListTailors)
	api.POST("/tailors", mdCreate, s.CreateTailor)
	api.POST("/rates", mdCreate, s.CreateRate)

	// -------- Production --------
	record := s.authorize(authorization.ObjectProduction, authorization.ActionRecord)
	api.POST("/production/cuttings", record, s.RecordCutting)
	api.POST("/production/jobs", record, s.IssueJob)
	api.PATCH("/production/jobs/:id", s.authorize(authorization.ObjectTailorJob, authorization.ActionUpdate), s.UpdateJob)
	api.POST("/production/shipments", record, s.RecordShipment)

	// -------- Approvals --------
	// Per-entity permissions are checked by the approval service.
	api.GET("/approvals", s.ListApprovals)
	api.POST("/approvals", s.SubmitApproval)
	api.POST("/approvals/:id/approve", s.ApproveApproval)
	api.POST("/approvals/:id/reject", s.RejectApproval)

	// -------- Audit --------
	api.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionView), s.ListAuditLogs)
}
