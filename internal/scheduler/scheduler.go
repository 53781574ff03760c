package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stitchboard/internal/clock"
	dailyagg "github.com/smallbiznis/stitchboard/internal/dailyagg/domain"
	obsmetrics "github.com/smallbiznis/stitchboard/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const JobDailyRollup = "daily_rollup"

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Rollup  dailyagg.Service
	Config  Config                       `optional:"true"`
	Metrics *obsmetrics.SchedulerMetrics `optional:"true"`
}

type Scheduler struct {
	log     *zap.Logger
	cfg     Config
	genID   *snowflake.Node
	clock   clock.Clock
	rollup  dailyagg.Service
	metrics *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Rollup == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     p.Config.withDefaults(),
		genID:   p.GenID,
		clock:   p.Clock,
		rollup:  p.Rollup,
		metrics: p.Metrics,
	}, nil
}

// runJob runs fn under the job timeout. A timeout is logged and counted but
// not returned, so the next tick simply tries again.
func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context, run *jobRun) error) error {
	ctx, cancel := context.WithTimeout(s.withLogContext(parent, 0), timeout)
	defer cancel()

	run := s.newJobRun(name)
	log := s.logger(ctx).With(zap.String("job", name), zap.String("run_id", run.runID))
	s.logJobStart(ctx, run)
	s.metrics.IncJobRun(name)

	err := s.runRecovered(ctx, name, func(ctx context.Context) error {
		return fn(ctx, run)
	})
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(run.startedAt))
	if err != nil && run.errorCount == 0 {
		run.AddErrors(1)
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	s.metrics.IncJobError(name, err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.metrics.IncJobTimeout(name)
		log.Warn("job timed out", zap.Duration("timeout", timeout), zap.Error(err))
		return nil
	}
	s.logJobError(ctx, name, err)
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	if s.isJobEnabled(JobDailyRollup) {
		err = errors.Join(err, s.runJob(parent, JobDailyRollup, s.cfg.JobTimeout, s.DailyRollupJob))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now()

	for {
		if lag := s.clock.Now().Sub(nextRun); lag > 0 {
			s.metrics.ObserveRunLoopLag(lag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// No explicit list means every job runs.
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// DailyRollupJob rebuilds the lookback days and today for every active
// tenant, oldest day first. Tenant failures are logged and counted; the job
// fails only when a whole batch could not run.
func (s *Scheduler) DailyRollupJob(ctx context.Context, run *jobRun) error {
	today := s.clock.Now().UTC().Truncate(24 * time.Hour)
	var jobErr error

	for offset := s.cfg.LookbackDays; offset >= 0; offset-- {
		if err := ctx.Err(); err != nil {
			return errors.Join(jobErr, err)
		}
		day := today.AddDate(0, 0, -offset)

		batch, err := s.rollup.RefreshAll(ctx, day)
		if err != nil {
			jobErr = errors.Join(jobErr, fmt.Errorf("%s: %w", day.Format(time.DateOnly), err))
			continue
		}
		for _, tenant := range batch.Tenants {
			if tenant.Success {
				run.AddProcessed(1)
				continue
			}
			run.AddErrors(1)
			s.logTenantFailure(ctx, JobDailyRollup, tenant.TenantID, day, tenant.Error)
		}
		s.metrics.AddBatchProcessed(JobDailyRollup, "tenant_day", len(batch.Tenants)-batch.Failed())
	}
	return jobErr
}
