package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"
	masterdata "github.com/smallbiznis/stitchboard/internal/masterdata/domain"
	"github.com/smallbiznis/stitchboard/internal/principal"
	"github.com/smallbiznis/stitchboard/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	validate *validator.Validate
}

func NewService(p Params) masterdata.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("masterdata.service"),
		genID:    p.GenID,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *Service) CreateTenant(ctx context.Context, req masterdata.CreateTenantRequest) (*masterdata.Tenant, error) {
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, errors.Join(masterdata.ErrInvalidRequest, err)
	}
	code := makeCode(req.Slug, req.Name)
	if code == "" {
		return nil, masterdata.ErrInvalidRequest
	}

	tenant := &masterdata.Tenant{
		ID:     s.genID.Generate(),
		Name:   strings.TrimSpace(req.Name),
		Slug:   code,
		Active: true,
	}
	if err := s.db.WithContext(ctx).Create(tenant).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, masterdata.ErrDuplicateCode
		}
		return nil, err
	}
	s.log.Info("tenant created", zap.String("tenant_id", tenant.ID.String()), zap.String("slug", tenant.Slug))
	return tenant, nil
}

func (s *Service) ListActiveTenants(ctx context.Context) ([]masterdata.Tenant, error) {
	var tenants []masterdata.Tenant
	err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("id ASC").
		Find(&tenants).Error
	return tenants, err
}

func (s *Service) CreateVendor(ctx context.Context, req masterdata.CreateVendorRequest) (*masterdata.Vendor, error) {
	caller, err := principal.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, errors.Join(masterdata.ErrInvalidRequest, err)
	}
	code := makeCode(req.Code, req.Name)
	if code == "" {
		return nil, masterdata.ErrInvalidRequest
	}

	vendor := &masterdata.Vendor{
		ID:           s.genID.Generate(),
		TenantID:     caller.TenantID,
		Code:         code,
		Name:         strings.TrimSpace(req.Name),
		ContactEmail: strings.TrimSpace(req.ContactEmail),
	}
	if err := s.db.WithContext(ctx).Create(vendor).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, masterdata.ErrDuplicateCode
		}
		return nil, err
	}
	return vendor, nil
}

func (s *Service) ListVendors(ctx context.Context) ([]masterdata.Vendor, error) {
	caller, err := principal.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Where("tenant_id = ?", caller.TenantID)
	if caller.Role == principal.RoleVendor {
		query = query.Where("id = ?", caller.VendorID)
	}

	var vendors []masterdata.Vendor
	if err := query.Order("id ASC").Find(&vendors).Error; err != nil {
		return nil, err
	}
	return vendors, nil
}

func (s *Service) CreateStyle(ctx context.Context, req masterdata.CreateStyleRequest) (*masterdata.Style, error) {
	caller, err := principal.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, errors.Join(masterdata.ErrInvalidRequest, err)
	}
	code := makeCode(req.Code, req.Name)
	if code == "" {
		return nil, masterdata.ErrInvalidRequest
	}
	if err := s.ensureVendor(ctx, caller.TenantID, req.VendorID); err != nil {
		return nil, err
	}

	style := &masterdata.Style{
		ID:       s.genID.Generate(),
		TenantID: caller.TenantID,
		VendorID: req.VendorID,
		Code:     code,
		Name:     strings.TrimSpace(req.Name),
		Status:   masterdata.StyleStatusActive,
	}
	if err := s.db.WithContext(ctx).Create(style).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, masterdata.ErrDuplicateCode
		}
		return nil, err
	}
	return style, nil
}

func (s *Service) GetStyle(ctx context.Context, id snowflake.ID) (*masterdata.Style, error) {
	caller, err := principal.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", caller.TenantID, id)
	if caller.Role == principal.RoleVendor {
		query = query.Where("vendor_id = ?", caller.VendorID)
	}

	var style masterdata.Style
	if err := query.Take(&style).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, masterdata.ErrStyleNotFound
		}
		return nil, err
	}
	return &style, nil
}

func (s *Service) ListStyles(ctx context.Context, req masterdata.ListStylesRequest) ([]masterdata.Style, error) {
	caller, err := principal.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	vendorID := req.VendorID
	if caller.Role == principal.RoleVendor {
		vendorID = caller.VendorID
	}

	query := s.db.WithContext(ctx).Where("tenant_id = ?", caller.TenantID)
	if vendorID != 0 {
		query = query.Where("vendor_id = ?", vendorID)
	}
	if search := strings.ToLower(strings.TrimSpace(req.Search)); search != "" {
		like := "%" + search + "%"
		query = query.Where("(LOWER(code) LIKE ? OR LOWER(name) LIKE ?)", like, like)
	}

	var styles []masterdata.Style
	if err := query.Order("id ASC").Find(&styles).Error; err != nil {
		return nil, err
	}
	return styles, nil
}

func (s *Service) CreateTailor(ctx context.Context, req masterdata.CreateTailorRequest) (*masterdata.Tailor, error) {
	caller, err := principal.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, errors.Join(masterdata.ErrInvalidRequest, err)
	}

	tailor := &masterdata.Tailor{
		ID:       s.genID.Generate(),
		TenantID: caller.TenantID,
		Name:     strings.TrimSpace(req.Name),
		Phone:    strings.TrimSpace(req.Phone),
		Active:   true,
	}
	if err := s.db.WithContext(ctx).Create(tailor).Error; err != nil {
		return nil, err
	}
	return tailor, nil
}

func (s *Service) ListTailors(ctx context.Context) ([]masterdata.Tailor, error) {
	caller, err := principal.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Where("tenant_id = ?", caller.TenantID)
	if caller.Role == principal.RoleTailor {
		query = query.Where("id = ?", caller.TailorID)
	}

	var tailors []masterdata.Tailor
	if err := query.Order("id ASC").Find(&tailors).Error; err != nil {
		return nil, err
	}
	return tailors, nil
}

func (s *Service) CreateRate(ctx context.Context, req masterdata.CreateRateRequest) (*masterdata.Rate, error) {
	caller, err := principal.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, errors.Join(masterdata.ErrInvalidRequest, err)
	}
	if req.EffectiveDate.IsZero() {
		return nil, masterdata.ErrInvalidRequest
	}
	if !req.Amount.IsPositive() {
		return nil, masterdata.ErrInvalidAmount
	}
	if _, err := s.GetStyle(ctx, req.StyleID); err != nil {
		return nil, err
	}

	rate := &masterdata.Rate{
		ID:            s.genID.Generate(),
		TenantID:      caller.TenantID,
		StyleID:       req.StyleID,
		Kind:          req.Kind,
		Amount:        req.Amount,
		EffectiveDate: req.EffectiveDate.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(rate).Error; err != nil {
		return nil, err
	}
	return rate, nil
}

func (s *Service) ListRates(ctx context.Context, styleID snowflake.ID) ([]masterdata.Rate, error) {
	caller, err := principal.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Where("tenant_id = ?", caller.TenantID)
	if styleID != 0 {
		query = query.Where("style_id = ?", styleID)
	}

	var rates []masterdata.Rate
	if err := query.Order("effective_date DESC, created_at DESC, id DESC").Find(&rates).Error; err != nil {
		return nil, err
	}
	return rates, nil
}

func (s *Service) ensureVendor(ctx context.Context, tenantID, vendorID snowflake.ID) error {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&masterdata.Vendor{}).
		Where("tenant_id = ? AND id = ?", tenantID, vendorID).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return masterdata.ErrVendorNotFound
	}
	return nil
}

func makeCode(preferred, fallback string) string {
	if code := slug.Make(strings.TrimSpace(preferred)); code != "" {
		return code
	}
	return slug.Make(strings.TrimSpace(fallback))
}
