package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/stitchboard/internal/clock"
	masterdata "github.com/smallbiznis/stitchboard/internal/masterdata/domain"
	"github.com/smallbiznis/stitchboard/internal/principal"
	production "github.com/smallbiznis/stitchboard/internal/production/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	MasterData masterdata.Service
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	masterdata masterdata.Service
	validate   *validator.Validate
}

func NewService(p Params) production.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("production.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		masterdata: p.MasterData,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *Service) RecordCutting(ctx context.Context, req production.RecordCuttingRequest) (*production.FabricCutting, error) {
	caller, err := principal.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, errors.Join(production.ErrInvalidRequest, err)
	}
	if _, err := s.masterdata.GetStyle(ctx, req.StyleID); err != nil {
		return nil, err
	}

	cutting := &production.FabricCutting{
		ID:       s.genID.Generate(),
		TenantID: caller.TenantID,
		StyleID:  req.StyleID,
		TotalQty: req.TotalQty,
		CutAt:    s.orNow(req.CutAt),
		Notes:    strings.TrimSpace(req.Notes),
	}
	if err := s.db.WithContext(ctx).Create(cutting).Error; err != nil {
		return nil, err
	}
	return cutting, nil
}

func (s *Service) IssueJob(ctx context.Context, req production.IssueJobRequest) (*production.TailorJob, error) {
	caller, err := principal.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, errors.Join(production.ErrInvalidRequest, err)
	}
	if req.Rate.IsNegative() {
		return nil, production.ErrInvalidRequest
	}
	if _, err := s.masterdata.GetStyle(ctx, req.StyleID); err != nil {
		return nil, err
	}
	if err := s.ensureTailor(ctx, caller.TenantID, req.TailorID); err != nil {
		return nil, err
	}

	job := &production.TailorJob{
		ID:        s.genID.Generate(),
		TenantID:  caller.TenantID,
		StyleID:   req.StyleID,
		TailorID:  req.TailorID,
		IssuedPcs: req.IssuedPcs,
		Rate:      req.Rate,
		Status:    production.JobStatusPending,
		IssuedAt:  s.orNow(req.IssuedAt),
	}
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Service) UpdateJob(ctx context.Context, id snowflake.ID, req production.UpdateJobRequest) (*production.TailorJob, error) {
	caller, err := principal.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, errors.Join(production.ErrInvalidRequest, err)
	}

	var job production.TailorJob
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tenant_id = ? AND id = ?", caller.TenantID, id)
		if caller.Role == principal.RoleTailor {
			query = query.Where("tailor_id = ?", caller.TailorID)
		}
		if err := query.Take(&job).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return production.ErrJobNotFound
			}
			return err
		}

		if req.ReturnedPcs != nil {
			if *req.ReturnedPcs > job.IssuedPcs {
				return production.ErrReturnedExceeds
			}
			job.ReturnedPcs = *req.ReturnedPcs
		}
		if req.Status != nil && *req.Status != job.Status {
			if !canTransition(caller.Role, job.Status, *req.Status) {
				return production.ErrInvalidTransition
			}
			job.Status = *req.Status
			if job.Status == production.JobStatusCompleted {
				now := s.clock.Now()
				job.CompletedAt = &now
			}
		}

		return tx.Model(&production.TailorJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]any{
				"returned_pcs": job.ReturnedPcs,
				"status":       job.Status,
				"completed_at": job.CompletedAt,
				"updated_at":   s.clock.Now(),
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *Service) RecordShipment(ctx context.Context, req production.RecordShipmentRequest) (*production.Shipment, error) {
	caller, err := principal.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, errors.Join(production.ErrInvalidRequest, err)
	}
	style, err := s.masterdata.GetStyle(ctx, req.StyleID)
	if err != nil {
		return nil, err
	}

	shipment := &production.Shipment{
		ID:         s.genID.Generate(),
		TenantID:   caller.TenantID,
		StyleID:    style.ID,
		VendorID:   style.VendorID,
		PcsShipped: req.PcsShipped,
		ShippedAt:  s.orNow(req.ShippedAt),
		Reference:  strings.TrimSpace(req.Reference),
	}
	if err := s.db.WithContext(ctx).Create(shipment).Error; err != nil {
		return nil, err
	}
	return shipment, nil
}

func (s *Service) ensureTailor(ctx context.Context, tenantID, tailorID snowflake.ID) error {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&masterdata.Tailor{}).
		Where("tenant_id = ? AND id = ? AND active = ?", tenantID, tailorID, true).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return masterdata.ErrTailorNotFound
	}
	return nil
}

func (s *Service) orNow(value time.Time) time.Time {
	if value.IsZero() {
		return s.clock.Now()
	}
	return value.UTC()
}

// canTransition encodes the job lifecycle. Only floor staff may cancel.
func canTransition(role principal.Role, from, to production.JobStatus) bool {
	if !from.Open() {
		return false
	}
	switch to {
	case production.JobStatusInProgress:
		return from == production.JobStatusPending
	case production.JobStatusCompleted:
		return true
	case production.JobStatusCancelled:
		return role == principal.RoleAdmin || role == principal.RoleManager
	default:
		return false
	}
}
