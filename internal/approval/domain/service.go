package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	masterdata "github.com/smallbiznis/stitchboard/internal/masterdata/domain"
	"github.com/smallbiznis/stitchboard/internal/principal"
)

var (
	ErrInvalidEntity    = errors.New("invalid_target_entity")
	ErrInvalidStatus    = errors.New("invalid_status")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrTargetNotFound   = errors.New("target_not_found")
	ErrApprovalNotFound = errors.New("approval_not_found")
	ErrNotPending       = errors.New("approval_not_pending")
	ErrSelfReview       = errors.New("self_review_not_allowed")
)

// StyleChange renames or archives a style. Nil fields are unchanged.
type StyleChange struct {
	Name   *string                 `json:"name" validate:"omitempty,min=1,max=160"`
	Status *masterdata.StyleStatus `json:"status" validate:"omitempty,oneof=active archived"`
}

type VendorChange struct {
	Name         *string `json:"name" validate:"omitempty,min=1,max=120"`
	ContactEmail *string `json:"contact_email" validate:"omitempty,email"`
}

type TailorChange struct {
	Name   *string `json:"name" validate:"omitempty,min=1,max=120"`
	Phone  *string `json:"phone" validate:"omitempty,max=32"`
	Active *bool   `json:"active"`
}

// RateProposal adds a new effective rate to the target style.
type RateProposal struct {
	Kind          masterdata.RateKind `json:"kind" validate:"required,oneof=vendor_price material"`
	Amount        decimal.Decimal     `json:"amount"`
	EffectiveDate time.Time           `json:"effective_date"`
}

// Service runs the submit and review workflow. Permissions are checked per
// entity and action, so a role may submit changes it cannot approve.
type Service interface {
	Submit(ctx context.Context, p principal.Principal, entity TargetEntity, targetID snowflake.ID, payload json.RawMessage) (*Approval, error)
	List(ctx context.Context, p principal.Principal, status Status) ([]Approval, error)
	Approve(ctx context.Context, p principal.Principal, id snowflake.ID) (*Approval, error)
	Reject(ctx context.Context, p principal.Principal, id snowflake.ID, reason string) (*Approval, error)
}
