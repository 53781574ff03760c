package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	approval "github.com/smallbiznis/stitchboard/internal/approval/domain"
	"github.com/smallbiznis/stitchboard/internal/authorization"
	"github.com/smallbiznis/stitchboard/internal/clock"
	"github.com/smallbiznis/stitchboard/internal/observability/metrics"
	"github.com/smallbiznis/stitchboard/internal/principal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxReasonLength = 500

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Authz   authorization.Service
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	authz    authorization.Service
	metrics  *metrics.Metrics
	validate *validator.Validate
	handlers map[approval.TargetEntity]handler
}

func NewService(p Params) approval.Service {
	svc := &Service{
		db:       p.DB,
		log:      p.Log.Named("approval.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		authz:    p.Authz,
		metrics:  p.Metrics,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	svc.handlers = svc.buildHandlers()
	return svc
}

func (s *Service) Submit(ctx context.Context, p principal.Principal, entity approval.TargetEntity, targetID snowflake.ID, payload json.RawMessage) (*approval.Approval, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	h, ok := s.handlers[entity]
	if !ok {
		return nil, approval.ErrInvalidEntity
	}
	if targetID == 0 {
		return nil, approval.ErrTargetNotFound
	}
	if err := s.authz.Authorize(ctx, p, authorization.ApprovalObject(string(entity)), authorization.ActionSubmit); err != nil {
		return nil, err
	}

	canonical, err := h.check(ctx, s.db, p, targetID, payload)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	record := approval.Approval{
		ID:            s.genID.Generate(),
		TenantID:      p.TenantID,
		Entity:        entity,
		TargetID:      targetID,
		Payload:       canonical,
		Status:        approval.StatusPending,
		SubmittedBy:   p.UserID,
		SubmittedRole: p.Role,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}

	s.log.Info("approval submitted",
		zap.String("approval_id", record.ID.String()),
		zap.String("tenant_id", record.TenantID.String()),
		zap.String("entity", string(entity)),
		zap.String("target_id", targetID.String()),
	)
	return &record, nil
}

// List returns approvals the caller may review plus the caller's own
// submissions, newest first.
func (s *Service) List(ctx context.Context, p principal.Principal, status approval.Status) ([]approval.Approval, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	status, err := approval.ParseStatus(string(status))
	if err != nil {
		return nil, err
	}

	reviewable := make([]approval.TargetEntity, 0, len(approval.Entities))
	for _, entity := range approval.Entities {
		err := s.authz.Authorize(ctx, p, authorization.ApprovalObject(string(entity)), authorization.ActionReview)
		switch {
		case err == nil:
			reviewable = append(reviewable, entity)
		case errors.Is(err, authorization.ErrForbidden):
		default:
			return nil, err
		}
	}

	q := s.db.WithContext(ctx).Model(&approval.Approval{}).Where("tenant_id = ?", p.TenantID)
	if len(reviewable) > 0 {
		q = q.Where("(entity IN ? OR submitted_by = ?)", reviewable, p.UserID)
	} else {
		q = q.Where("submitted_by = ?", p.UserID)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var items []approval.Approval
	if err := q.Order("created_at DESC").Order("id DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Service) Approve(ctx context.Context, p principal.Principal, id snowflake.ID) (*approval.Approval, error) {
	return s.decide(ctx, p, id, approval.StatusApproved, "")
}

func (s *Service) Reject(ctx context.Context, p principal.Principal, id snowflake.ID, reason string) (*approval.Approval, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) > maxReasonLength {
		return nil, approval.ErrInvalidPayload
	}
	return s.decide(ctx, p, id, approval.StatusRejected, reason)
}

// decide moves a pending approval to its final status. Approving applies the
// payload in the same transaction as the status change, so a failed apply
// leaves the approval pending.
func (s *Service) decide(ctx context.Context, p principal.Principal, id snowflake.ID, decision approval.Status, reason string) (*approval.Approval, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	record, err := s.load(ctx, p.TenantID, id)
	if err != nil {
		return nil, err
	}
	h, ok := s.handlers[record.Entity]
	if !ok {
		return nil, approval.ErrInvalidEntity
	}
	if err := s.authz.Authorize(ctx, p, authorization.ApprovalObject(string(record.Entity)), authorization.ActionReview); err != nil {
		return nil, err
	}
	if record.SubmittedBy == p.UserID {
		return nil, approval.ErrSelfReview
	}
	if record.Status != approval.StatusPending {
		return nil, approval.ErrNotPending
	}

	now := s.clock.Now()
	reviewer := p.UserID
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&approval.Approval{}).
			Where("tenant_id = ? AND id = ? AND status = ?", p.TenantID, id, approval.StatusPending).
			Updates(map[string]any{
				"status":      decision,
				"reviewed_by": reviewer,
				"reviewed_at": now,
				"reason":      reason,
				"updated_at":  now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return approval.ErrNotPending
		}
		if decision != approval.StatusApproved {
			return nil
		}
		return h.apply(ctx, tx, record)
	})
	if err != nil {
		return nil, err
	}

	record.Status = decision
	record.ReviewedBy = &reviewer
	record.ReviewedAt = &now
	record.Reason = reason
	record.UpdatedAt = now

	s.metrics.RecordApprovalDecision(ctx, string(record.Entity), string(decision))
	s.log.Info("approval decided",
		zap.String("approval_id", record.ID.String()),
		zap.String("tenant_id", record.TenantID.String()),
		zap.String("entity", string(record.Entity)),
		zap.String("decision", string(decision)),
		zap.String("reviewer_id", reviewer.String()),
	)
	return record, nil
}

func (s *Service) load(ctx context.Context, tenantID, id snowflake.ID) (*approval.Approval, error) {
	var record approval.Approval
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, approval.ErrApprovalNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}
