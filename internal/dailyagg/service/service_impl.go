package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/stitchboard/internal/clock"
	dailyagg "github.com/smallbiznis/stitchboard/internal/dailyagg/domain"
	masterdata "github.com/smallbiznis/stitchboard/internal/masterdata/domain"
	"github.com/smallbiznis/stitchboard/internal/observability/metrics"
	production "github.com/smallbiznis/stitchboard/internal/production/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	lockTTL       = 5 * time.Minute
	lockRetryStep = 500 * time.Millisecond
	lockRetries   = 20
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	MasterData masterdata.Service
	Metrics    *metrics.Metrics  `optional:"true"`
	Locker     *redislock.Client `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	masterdata masterdata.Service
	metrics    *metrics.Metrics
	locker     *redislock.Client
}

func NewService(p Params) dailyagg.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("dailyagg.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		masterdata: p.MasterData,
		metrics:    p.Metrics,
		locker:     p.Locker,
	}
}

type styleRow struct {
	ID       snowflake.ID
	VendorID snowflake.ID
}

type jobRow struct {
	IssuedPcs   int64
	ReturnedPcs int64
	Rate        decimal.Decimal
	Status      production.JobStatus
}

func (s *Service) Refresh(ctx context.Context, tenantID snowflake.ID, date time.Time) (*dailyagg.RefreshResult, error) {
	if tenantID == 0 {
		return nil, dailyagg.ErrInvalidRequest
	}
	day := truncateToDay(date)
	if day.IsZero() {
		day = truncateToDay(s.clock.Now())
	}

	release, err := s.obtainLock(ctx, tenantID, day)
	if err != nil {
		return nil, err
	}
	defer release()

	result := &dailyagg.RefreshResult{
		RunID:    ulid.Make().String(),
		TenantID: tenantID,
		Date:     day,
	}
	log := s.log.With(
		zap.String("run_id", result.RunID),
		zap.String("tenant_id", tenantID.String()),
		zap.String("date", day.Format(time.DateOnly)),
	)

	var styles []styleRow
	if err := s.db.WithContext(ctx).
		Model(&masterdata.Style{}).
		Select("id, vendor_id").
		Where("tenant_id = ?", tenantID).
		Order("id ASC").
		Scan(&styles).Error; err != nil {
		return nil, fmt.Errorf("list styles: %w", err)
	}

	end := day.Add(24 * time.Hour)
	for _, style := range styles {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.StylesProcessed++

		agg, err := s.computeStyle(ctx, tenantID, style, day, end)
		if err == nil {
			agg.RunID = result.RunID
			err = s.upsert(ctx, agg)
		}
		if err != nil {
			log.Warn("style rollup failed", zap.String("style_id", style.ID.String()), zap.Error(err))
			result.Failures = append(result.Failures, dailyagg.StyleFailure{StyleID: style.ID, Error: err.Error()})
			continue
		}
		result.RecordsWritten++
	}

	s.metrics.RecordRollup(ctx, tenantID.String(), result.RecordsWritten, len(result.Failures))
	log.Info("rollup refreshed",
		zap.Int("styles_processed", result.StylesProcessed),
		zap.Int("records_written", result.RecordsWritten),
		zap.Int("failures", len(result.Failures)),
	)
	return result, nil
}

// computeStyle rebuilds one style's totals for [start, end) from the raw records.
func (s *Service) computeStyle(ctx context.Context, tenantID snowflake.ID, style styleRow, start, end time.Time) (*dailyagg.DailyAggregate, error) {
	db := s.db.WithContext(ctx)
	agg := &dailyagg.DailyAggregate{
		ID:            s.genID.Generate(),
		TenantID:      tenantID,
		StyleID:       style.ID,
		VendorID:      style.VendorID,
		Date:          start,
		TailorExpense: decimal.Zero,
		RefreshedAt:   s.clock.Now(),
	}

	if err := db.Model(&production.FabricCutting{}).
		Select("COALESCE(SUM(total_qty), 0)").
		Where("tenant_id = ? AND style_id = ? AND cut_at >= ? AND cut_at < ?", tenantID, style.ID, start, end).
		Scan(&agg.CuttingReceived).Error; err != nil {
		return nil, fmt.Errorf("sum cutting: %w", err)
	}

	var jobs []jobRow
	if err := db.Model(&production.TailorJob{}).
		Select("issued_pcs, returned_pcs, rate, status").
		Where("tenant_id = ? AND style_id = ? AND issued_at >= ? AND issued_at < ?", tenantID, style.ID, start, end).
		Scan(&jobs).Error; err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}
	for _, job := range jobs {
		agg.PiecesIssued += job.IssuedPcs
		agg.PiecesReturned += job.ReturnedPcs
		if job.Status.Open() {
			agg.InProductionPcs += job.IssuedPcs - job.ReturnedPcs
		}
		agg.TailorExpense = agg.TailorExpense.Add(job.Rate.Mul(decimal.NewFromInt(job.IssuedPcs)))
	}

	if err := db.Model(&production.Shipment{}).
		Select("COALESCE(SUM(pcs_shipped), 0)").
		Where("tenant_id = ? AND style_id = ? AND shipped_at >= ? AND shipped_at < ?", tenantID, style.ID, start, end).
		Scan(&agg.ShippedPcs).Error; err != nil {
		return nil, fmt.Errorf("sum shipments: %w", err)
	}

	return agg, nil
}

func (s *Service) upsert(ctx context.Context, agg *dailyagg.DailyAggregate) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "style_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"vendor_id",
			"cutting_received",
			"pieces_issued",
			"pieces_returned",
			"in_production_pcs",
			"shipped_pcs",
			"tailor_expense",
			"run_id",
			"refreshed_at",
		}),
	}).Create(agg).Error
}

func (s *Service) RefreshAll(ctx context.Context, date time.Time) (dailyagg.BatchResult, error) {
	day := truncateToDay(date)
	if day.IsZero() {
		day = truncateToDay(s.clock.Now())
	}
	batch := dailyagg.BatchResult{Date: day}

	tenants, err := s.masterdata.ListActiveTenants(ctx)
	if err != nil {
		return batch, fmt.Errorf("list tenants: %w", err)
	}

	for _, tenant := range tenants {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		entry := dailyagg.TenantRefresh{TenantID: tenant.ID}
		result, err := s.Refresh(ctx, tenant.ID, day)
		entry.Result = result
		switch {
		case err != nil:
			entry.Error = err.Error()
		case result.Err() != nil:
			entry.Error = result.Err().Error()
		default:
			entry.Success = true
		}
		batch.Tenants = append(batch.Tenants, entry)
	}

	if failed := batch.Failed(); failed > 0 {
		s.log.Warn("batch rollup finished with failures",
			zap.String("date", day.Format(time.DateOnly)),
			zap.Int("tenants", len(batch.Tenants)),
			zap.Int("failed", failed),
		)
	}
	return batch, nil
}

func (s *Service) RefreshRange(ctx context.Context, tenantID snowflake.ID, from, to time.Time) ([]dailyagg.RefreshResult, error) {
	start := truncateToDay(from)
	end := truncateToDay(to)
	if tenantID == 0 || start.IsZero() || end.IsZero() || end.Before(start) {
		return nil, dailyagg.ErrInvalidRequest
	}
	if days := int(end.Sub(start).Hours()/24) + 1; days > dailyagg.MaxRangeDays {
		return nil, dailyagg.ErrRangeTooLarge
	}

	var (
		results []dailyagg.RefreshResult
		errs    []error
	)
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		result, err := s.Refresh(ctx, tenantID, day)
		if err != nil {
			if ctx.Err() != nil {
				return results, errors.Join(append(errs, err)...)
			}
			errs = append(errs, fmt.Errorf("%s: %w", day.Format(time.DateOnly), err))
			continue
		}
		results = append(results, *result)
	}
	return results, errors.Join(errs...)
}

// obtainLock serializes runs for one tenant and day across replicas.
// Without redis the returned release is a no-op.
func (s *Service) obtainLock(ctx context.Context, tenantID snowflake.ID, day time.Time) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}

	key := fmt.Sprintf("stitchboard:rollup:%s:%s", tenantID, day.Format(time.DateOnly))
	lock, err := s.locker.Obtain(ctx, key, lockTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(lockRetryStep), lockRetries),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, errors.Join(dailyagg.ErrRefreshInProgress, metrics.ErrLockNotObtained)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain rollup lock: %w", err)
	}

	return func() {
		// The caller's ctx may already be cancelled; the lock must still go.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			s.log.Warn("release rollup lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

func truncateToDay(value time.Time) time.Time {
	if value.IsZero() {
		return time.Time{}
	}
	value = value.UTC()
	return time.Date(value.Year(), value.Month(), value.Day(), 0, 0, 0, 0, time.UTC)
}
