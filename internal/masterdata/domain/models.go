package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Tenant struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"not null" json:"name"`
	Slug      string       `gorm:"not null;uniqueIndex" json:"slug"`
	Active    bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (Tenant) TableName() string { return "tenants" }

type Vendor struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID     snowflake.ID `gorm:"not null;uniqueIndex:idx_vendors_tenant_code,priority:1" json:"tenant_id"`
	Code         string       `gorm:"not null;uniqueIndex:idx_vendors_tenant_code,priority:2" json:"code"`
	Name         string       `gorm:"not null" json:"name"`
	ContactEmail string       `json:"contact_email,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

func (Vendor) TableName() string { return "vendors" }

type StyleStatus string

const (
	StyleStatusActive   StyleStatus = "active"
	StyleStatusArchived StyleStatus = "archived"
)

// Style is a garment definition owned by one vendor.
type Style struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID  snowflake.ID `gorm:"not null;uniqueIndex:idx_styles_tenant_code,priority:1" json:"tenant_id"`
	VendorID  snowflake.ID `gorm:"not null;index" json:"vendor_id"`
	Code      string       `gorm:"not null;uniqueIndex:idx_styles_tenant_code,priority:2" json:"code"`
	Name      string       `gorm:"not null" json:"name"`
	Status    StyleStatus  `gorm:"not null;default:active" json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (Style) TableName() string { return "styles" }

type Tailor struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID  snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	Name      string       `gorm:"not null" json:"name"`
	Phone     string       `json:"phone,omitempty"`
	Active    bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (Tailor) TableName() string { return "tailors" }

type RateKind string

const (
	// RateKindVendorPrice is what the vendor pays per shipped piece.
	RateKindVendorPrice RateKind = "vendor_price"
	// RateKindMaterial is the fabric and trim cost per cut piece.
	RateKindMaterial RateKind = "material"
)

// Rate is insert-only. A price change is a new row with a later
// EffectiveDate.
type Rate struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	TenantID      snowflake.ID    `gorm:"not null;index:idx_rates_lookup,priority:1" json:"tenant_id"`
	StyleID       snowflake.ID    `gorm:"not null;index:idx_rates_lookup,priority:2" json:"style_id"`
	Kind          RateKind        `gorm:"not null;index:idx_rates_lookup,priority:3" json:"kind"`
	Amount        decimal.Decimal `gorm:"type:numeric(18,4);not null" json:"amount"`
	EffectiveDate time.Time       `gorm:"not null;index:idx_rates_lookup,priority:4" json:"effective_date"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (Rate) TableName() string { return "rates" }
