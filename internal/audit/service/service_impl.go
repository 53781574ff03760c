package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/stitchboard/internal/audit/domain"
	"github.com/smallbiznis/stitchboard/internal/clock"
	obscontext "github.com/smallbiznis/stitchboard/internal/observability/context"
	"github.com/smallbiznis/stitchboard/internal/principal"
	"github.com/smallbiznis/stitchboard/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 250
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) AuditLog(ctx context.Context, action string, targetType string, targetID snowflake.ID, metadata map[string]any) error {
	action = strings.TrimSpace(action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}
	targetType = strings.TrimSpace(targetType)
	if targetType == "" {
		targetType = "unknown"
	}

	p, err := principal.FromContext(ctx)
	if err != nil || p.TenantID == 0 {
		return auditdomain.ErrInvalidTenant
	}

	payload := map[string]any{}
	for key, value := range metadata {
		if key == "" {
			continue
		}
		payload[key] = value
	}

	entry := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		TenantID:   p.TenantID,
		ActorRole:  string(p.Role),
		Action:     action,
		TargetType: targetType,
		Metadata:   datatypes.JSONMap(payload),
		CreatedAt:  s.clock.Now().UTC(),
	}
	if entry.ActorRole == "" {
		entry.ActorRole = auditdomain.ActorRoleSystem
	}
	if p.UserID != 0 {
		actorID := p.UserID.String()
		entry.ActorID = &actorID
	}
	if targetID != 0 {
		target := targetID.String()
		entry.TargetID = &target
	}
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		entry.RequestID = &requestID
	}

	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (pagination.Result[auditdomain.AuditLog], error) {
	p, err := principal.FromContext(ctx)
	if err != nil || p.TenantID == 0 {
		return pagination.Result[auditdomain.AuditLog]{}, auditdomain.ErrInvalidTenant
	}
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return pagination.Result[auditdomain.AuditLog]{}, auditdomain.ErrInvalidTimeRange
	}

	rows, total, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		TenantID:   p.TenantID,
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		Page:       req.Page.Normalize(defaultPageSize, maxPageSize),
	})
	if err != nil {
		return pagination.Result[auditdomain.AuditLog]{}, err
	}
	if rows == nil {
		rows = []auditdomain.AuditLog{}
	}
	return pagination.Result[auditdomain.AuditLog]{Rows: rows, Total: total}, nil
}
