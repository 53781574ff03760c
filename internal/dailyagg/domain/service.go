package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidRequest    = errors.New("invalid_request")
	ErrRefreshInProgress = errors.New("refresh_in_progress")
	ErrRangeTooLarge     = errors.New("refresh_range_too_large")
)

// MaxRangeDays bounds a single RefreshRange call.
const MaxRangeDays = 366

// StyleFailure records one style whose aggregate could not be written.
type StyleFailure struct {
	StyleID snowflake.ID `json:"style_id"`
	Error   string       `json:"error"`
}

type RefreshResult struct {
	RunID           string         `json:"run_id"`
	TenantID        snowflake.ID   `json:"tenant_id"`
	Date            time.Time      `json:"date"`
	StylesProcessed int            `json:"styles_processed"`
	RecordsWritten  int            `json:"records_written"`
	Failures        []StyleFailure `json:"failures,omitempty"`
}

// Err folds the style failures into one error, or nil when every style succeeded.
func (r *RefreshResult) Err() error {
	if r == nil || len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("style %s: %s", f.StyleID, f.Error))
	}
	return errors.Join(errs...)
}

// TenantRefresh is one tenant's outcome inside a batch run.
type TenantRefresh struct {
	TenantID snowflake.ID   `json:"tenant_id"`
	Success  bool           `json:"success"`
	Error    string         `json:"error,omitempty"`
	Result   *RefreshResult `json:"result,omitempty"`
}

type BatchResult struct {
	Date    time.Time       `json:"date"`
	Tenants []TenantRefresh `json:"tenants"`
}

// Failed counts tenants that did not refresh cleanly.
func (b BatchResult) Failed() int {
	n := 0
	for _, t := range b.Tenants {
		if !t.Success {
			n++
		}
	}
	return n
}

// Service rebuilds daily aggregates from raw production records.
// Runs are idempotent: a re-run for the same day overwrites the rows.
type Service interface {
	Refresh(ctx context.Context, tenantID snowflake.ID, date time.Time) (*RefreshResult, error)
	RefreshAll(ctx context.Context, date time.Time) (BatchResult, error)
	RefreshRange(ctx context.Context, tenantID snowflake.ID, from, to time.Time) ([]RefreshResult, error)
}
