package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// DailyAggregate is the per tenant, style and day rollup read by dashboards.
// Rows are written only by the refresher and are keyed by (tenant, style, date).
type DailyAggregate struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	TenantID        snowflake.ID    `gorm:"not null;uniqueIndex:idx_daily_aggregates_key,priority:1" json:"tenant_id"`
	StyleID         snowflake.ID    `gorm:"not null;uniqueIndex:idx_daily_aggregates_key,priority:2" json:"style_id"`
	Date            time.Time       `gorm:"not null;uniqueIndex:idx_daily_aggregates_key,priority:3;index" json:"date"`
	VendorID        snowflake.ID    `gorm:"not null;index" json:"vendor_id"`
	CuttingReceived int64           `gorm:"not null;default:0" json:"cutting_received"`
	PiecesIssued    int64           `gorm:"not null;default:0" json:"pieces_issued"`
	PiecesReturned  int64           `gorm:"not null;default:0" json:"pieces_returned"`
	InProductionPcs int64           `gorm:"not null;default:0" json:"in_production_pcs"`
	ShippedPcs      int64           `gorm:"not null;default:0" json:"shipped_pcs"`
	TailorExpense   decimal.Decimal `gorm:"type:numeric(18,4);not null;default:0" json:"tailor_expense"`
	RunID           string          `gorm:"not null" json:"run_id"`
	RefreshedAt     time.Time       `gorm:"not null" json:"refreshed_at"`
}

func (DailyAggregate) TableName() string { return "daily_aggregates" }
