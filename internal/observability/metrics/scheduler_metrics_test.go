package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallbiznis/stitchboard/internal/authorization"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: SchedulerJobReasonDeadlineExceeded},
		{name: "forbidden", err: authorization.ErrForbidden, want: SchedulerJobReasonForbidden},
		{name: "lock", err: fmt.Errorf("tenant 1: %w", ErrLockNotObtained), want: SchedulerJobReasonLockNotObtained},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: SchedulerJobReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: SchedulerJobReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: SchedulerJobReasonUniqueViolation},
		{name: "joined", err: errors.Join(errors.New("style 1"), &pgconn.PgError{Code: "23505"}), want: SchedulerJobReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: SchedulerJobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySchedulerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(&pgconn.PgError{Code: "40001"}) {
		t.Fatalf("expected serialization failure to be retryable")
	}
	if IsRetryable(errors.New("boom")) {
		t.Fatalf("expected unknown error to be final")
	}
}

func TestSchedulerCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewSchedulerMetrics(registry, Config{ServiceName: "stitchboard", Environment: "test"})

	m.IncJobRun("daily_rollup")
	m.AddBatchProcessed("daily_rollup", "styles", 3)
	m.AddBatchProcessed("daily_rollup", "styles", 0)
	m.IncJobError("daily_rollup", context.DeadlineExceeded)
	m.ObserveJobDuration("daily_rollup", 2*time.Second)

	if got := testutil.ToFloat64(m.jobRuns.WithLabelValues("daily_rollup")); got != 1 {
		t.Fatalf("expected 1 run, got %v", got)
	}
	if got := testutil.ToFloat64(m.batchProcessed.WithLabelValues("daily_rollup", "styles")); got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
	if got := testutil.ToFloat64(m.jobErrors.WithLabelValues("daily_rollup", SchedulerJobReasonDeadlineExceeded)); got != 1 {
		t.Fatalf("expected 1 deadline error, got %v", got)
	}
}
