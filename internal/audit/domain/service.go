package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stitchboard/pkg/db/pagination"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrInvalidTenant    = errors.New("invalid_tenant")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrInvalidAction    = errors.New("invalid_action")
)

// ActorRoleSystem marks entries written without an authenticated caller.
const ActorRoleSystem = "system"

// AuditLog is an append-only record of a state change made by a caller.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	TenantID   snowflake.ID      `gorm:"not null;index:idx_audit_logs_tenant_created,priority:1" json:"tenant_id"`
	ActorRole  string            `gorm:"not null" json:"actor_role"`
	ActorID    *string           `json:"actor_id,omitempty"`
	Action     string            `gorm:"not null" json:"action"`
	TargetType string            `gorm:"not null" json:"target_type"`
	TargetID   *string           `json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	RequestID  *string           `json:"request_id,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;index:idx_audit_logs_tenant_created,priority:2" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type ListAuditLogRequest struct {
	pagination.Page
	Action     string
	TargetType string
	TargetID   string
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListFilter struct {
	TenantID   snowflake.ID
	Action     string
	TargetType string
	TargetID   string
	StartAt    *time.Time
	EndAt      *time.Time
	Page       pagination.Page
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]AuditLog, int64, error)
}

// Service records who changed what. Tenant and actor come from the
// principal in ctx.
type Service interface {
	AuditLog(ctx context.Context, action string, targetType string, targetID snowflake.ID, metadata map[string]any) error
	List(ctx context.Context, req ListAuditLogRequest) (pagination.Result[AuditLog], error)
}
