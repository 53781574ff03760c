package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// FabricCutting records cut pieces received for a style.
type FabricCutting struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID  snowflake.ID `gorm:"not null;index:idx_cuttings_tenant_style_cut,priority:1" json:"tenant_id"`
	StyleID   snowflake.ID `gorm:"not null;index:idx_cuttings_tenant_style_cut,priority:2" json:"style_id"`
	TotalQty  int64        `gorm:"not null" json:"total_qty"`
	CutAt     time.Time    `gorm:"not null;index:idx_cuttings_tenant_style_cut,priority:3" json:"cut_at"`
	Notes     string       `json:"notes,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

func (FabricCutting) TableName() string { return "fabric_cuttings" }

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Open reports whether pieces of the job are still with the tailor.
func (s JobStatus) Open() bool {
	return s == JobStatusPending || s == JobStatusInProgress
}

// TailorJob is a batch of pieces issued to one tailor at a piece rate.
type TailorJob struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	TenantID    snowflake.ID    `gorm:"not null;index:idx_jobs_tenant_style_issued,priority:1" json:"tenant_id"`
	StyleID     snowflake.ID    `gorm:"not null;index:idx_jobs_tenant_style_issued,priority:2" json:"style_id"`
	TailorID    snowflake.ID    `gorm:"not null;index" json:"tailor_id"`
	IssuedPcs   int64           `gorm:"not null" json:"issued_pcs"`
	ReturnedPcs int64           `gorm:"not null;default:0" json:"returned_pcs"`
	Rate        decimal.Decimal `gorm:"type:numeric(18,4);not null" json:"rate"`
	Status      JobStatus       `gorm:"not null;default:pending" json:"status"`
	IssuedAt    time.Time       `gorm:"not null;index:idx_jobs_tenant_style_issued,priority:3" json:"issued_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (TailorJob) TableName() string { return "tailor_jobs" }

// Shipment records finished pieces sent back to the style's vendor.
type Shipment struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID   snowflake.ID `gorm:"not null;index:idx_shipments_tenant_style_shipped,priority:1" json:"tenant_id"`
	StyleID    snowflake.ID `gorm:"not null;index:idx_shipments_tenant_style_shipped,priority:2" json:"style_id"`
	VendorID   snowflake.ID `gorm:"not null;index" json:"vendor_id"`
	PcsShipped int64        `gorm:"not null" json:"pcs_shipped"`
	ShippedAt  time.Time    `gorm:"not null;index:idx_shipments_tenant_style_shipped,priority:3" json:"shipped_at"`
	Reference  string       `json:"reference,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

func (Shipment) TableName() string { return "shipments" }
