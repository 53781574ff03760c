package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidRange = errors.New("invalid_range")
	ErrForbidden    = errors.New("forbidden")
)

type CostCategory string

const (
	CostTailorWages CostCategory = "tailor_wages"
	CostMaterials   CostCategory = "materials"
)

type CostBreakdown struct {
	Categories map[CostCategory]decimal.Decimal `json:"categories"`
	Total      decimal.Decimal                  `json:"total"`
}

// PLStatement is a profit and loss statement over [Start, End).
type PLStatement struct {
	TenantID    snowflake.ID    `json:"tenant_id"`
	Start       time.Time       `json:"start"`
	End         time.Time       `json:"end"`
	Revenue     decimal.Decimal `json:"revenue"`
	Costs       CostBreakdown   `json:"costs"`
	GrossProfit decimal.Decimal `json:"gross_profit"`
	// Margin is GrossProfit / Revenue, nil when there is no revenue.
	Margin            *decimal.Decimal `json:"margin"`
	UnpricedShipments int              `json:"unpriced_shipments"`
	GeneratedAt       time.Time        `json:"generated_at"`
}

// Service computes financial figures directly from raw records. Every
// amount uses the rate effective on the transaction date. Callers must be
// tenant-wide principals of the requested tenant.
type Service interface {
	CalculateRevenue(ctx context.Context, tenantID snowflake.ID, start, end time.Time) (decimal.Decimal, error)
	CalculateCosts(ctx context.Context, tenantID snowflake.ID, start, end time.Time) (CostBreakdown, error)
	CalculatePLStatement(ctx context.Context, tenantID snowflake.ID, start, end time.Time) (PLStatement, error)
	RenderPLStatementPDF(ctx context.Context, statement PLStatement) ([]byte, error)
}
