package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidRequest    = errors.New("invalid_request")
	ErrJobNotFound       = errors.New("tailor_job_not_found")
	ErrInvalidTransition = errors.New("invalid_status_transition")
	ErrReturnedExceeds   = errors.New("returned_exceeds_issued")
)

type RecordCuttingRequest struct {
	StyleID  snowflake.ID `json:"style_id" validate:"required"`
	TotalQty int64        `json:"total_qty" validate:"gt=0"`
	CutAt    time.Time    `json:"cut_at"`
	Notes    string       `json:"notes" validate:"max=500"`
}

type IssueJobRequest struct {
	StyleID   snowflake.ID    `json:"style_id" validate:"required"`
	TailorID  snowflake.ID    `json:"tailor_id" validate:"required"`
	IssuedPcs int64           `json:"issued_pcs" validate:"gt=0"`
	Rate      decimal.Decimal `json:"rate"`
	IssuedAt  time.Time       `json:"issued_at"`
}

// UpdateJobRequest reports returned pieces and moves the job along its
// lifecycle. Nil fields are left unchanged.
type UpdateJobRequest struct {
	ReturnedPcs *int64     `json:"returned_pcs" validate:"omitempty,gte=0"`
	Status      *JobStatus `json:"status" validate:"omitempty,oneof=pending in_progress completed cancelled"`
}

type RecordShipmentRequest struct {
	StyleID    snowflake.ID `json:"style_id" validate:"required"`
	PcsShipped int64        `json:"pcs_shipped" validate:"gt=0"`
	ShippedAt  time.Time    `json:"shipped_at"`
	Reference  string       `json:"reference" validate:"max=120"`
}

// Service records raw production events. Zero timestamps default to now.
type Service interface {
	RecordCutting(ctx context.Context, req RecordCuttingRequest) (*FabricCutting, error)
	IssueJob(ctx context.Context, req IssueJobRequest) (*TailorJob, error)
	UpdateJob(ctx context.Context, id snowflake.ID, req UpdateJobRequest) (*TailorJob, error)
	RecordShipment(ctx context.Context, req RecordShipmentRequest) (*Shipment, error)
}
