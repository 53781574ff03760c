package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
)

// ErrJobPanicked marks a job that panicked instead of returning.
var ErrJobPanicked = errors.New("scheduler_job_panicked")

// runRecovered calls fn and converts a panic into ErrJobPanicked so one bad
// job cannot take the loop down.
func (s *Scheduler) runRecovered(ctx context.Context, name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger(ctx).Error("scheduler.job.panic",
				zap.String("job", name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
	}()
	return fn(ctx)
}
