package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stitchboard/internal/principal"
	"gorm.io/datatypes"
)

// TargetEntity is the closed set of records an approval may change.
type TargetEntity string

const (
	EntityStyle  TargetEntity = "style"
	EntityVendor TargetEntity = "vendor"
	EntityTailor TargetEntity = "tailor"
	EntityRate   TargetEntity = "rate"
)

// Entities lists every TargetEntity.
var Entities = []TargetEntity{EntityStyle, EntityVendor, EntityTailor, EntityRate}

func ParseTargetEntity(raw string) (TargetEntity, error) {
	for _, entity := range Entities {
		if string(entity) == raw {
			return entity, nil
		}
	}
	return "", ErrInvalidEntity
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func ParseStatus(raw string) (Status, error) {
	switch s := Status(raw); s {
	case "":
		return "", nil
	case StatusPending, StatusApproved, StatusRejected:
		return s, nil
	default:
		return "", ErrInvalidStatus
	}
}

// Approval is a proposed change to one record. TargetID is the record to
// change; for rate proposals it is the style the new rate belongs to.
type Approval struct {
	ID            snowflake.ID   `gorm:"primaryKey" json:"id"`
	TenantID      snowflake.ID   `gorm:"not null;index:idx_approvals_tenant_status,priority:1" json:"tenant_id"`
	Entity        TargetEntity   `gorm:"not null" json:"entity"`
	TargetID      snowflake.ID   `gorm:"not null" json:"target_id"`
	Payload       datatypes.JSON `gorm:"not null" json:"payload"`
	Status        Status         `gorm:"not null;default:pending;index:idx_approvals_tenant_status,priority:2" json:"status"`
	SubmittedBy   snowflake.ID   `gorm:"not null" json:"submitted_by"`
	SubmittedRole principal.Role `gorm:"not null" json:"submitted_role"`
	ReviewedBy    *snowflake.ID  `json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time     `json:"reviewed_at,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (Approval) TableName() string { return "approvals" }
