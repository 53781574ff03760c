package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrDuplicateCode  = errors.New("duplicate_code")
	ErrVendorNotFound = errors.New("vendor_not_found")
	ErrStyleNotFound  = errors.New("style_not_found")
	ErrTailorNotFound = errors.New("tailor_not_found")
	ErrTenantNotFound = errors.New("tenant_not_found")
	ErrInvalidAmount  = errors.New("invalid_amount")
)

type CreateTenantRequest struct {
	Name string `json:"name" validate:"required,max=120"`
	Slug string `json:"slug" validate:"omitempty,max=64"`
}

type CreateVendorRequest struct {
	Name         string `json:"name" validate:"required,max=120"`
	Code         string `json:"code" validate:"omitempty,max=64"`
	ContactEmail string `json:"contact_email" validate:"omitempty,email"`
}

type CreateStyleRequest struct {
	VendorID snowflake.ID `json:"vendor_id" validate:"required"`
	Name     string       `json:"name" validate:"required,max=160"`
	Code     string       `json:"code" validate:"omitempty,max=64"`
}

type CreateTailorRequest struct {
	Name  string `json:"name" validate:"required,max=120"`
	Phone string `json:"phone" validate:"omitempty,max=32"`
}

type CreateRateRequest struct {
	StyleID       snowflake.ID    `json:"style_id" validate:"required"`
	Kind          RateKind        `json:"kind" validate:"required,oneof=vendor_price material"`
	Amount        decimal.Decimal `json:"amount"`
	EffectiveDate time.Time       `json:"effective_date"`
}

type ListStylesRequest struct {
	VendorID snowflake.ID
	Search   string
}

// Service manages tenant master data. Every call except the tenant
// operations is scoped by the principal in ctx.
type Service interface {
	CreateTenant(ctx context.Context, req CreateTenantRequest) (*Tenant, error)
	ListActiveTenants(ctx context.Context) ([]Tenant, error)

	CreateVendor(ctx context.Context, req CreateVendorRequest) (*Vendor, error)
	ListVendors(ctx context.Context) ([]Vendor, error)

	CreateStyle(ctx context.Context, req CreateStyleRequest) (*Style, error)
	GetStyle(ctx context.Context, id snowflake.ID) (*Style, error)
	ListStyles(ctx context.Context, req ListStylesRequest) ([]Style, error)

	CreateTailor(ctx context.Context, req CreateTailorRequest) (*Tailor, error)
	ListTailors(ctx context.Context) ([]Tailor, error)

	CreateRate(ctx context.Context, req CreateRateRequest) (*Rate, error)
	ListRates(ctx context.Context, styleID snowflake.ID) ([]Rate, error)
}
