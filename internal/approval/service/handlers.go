package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	approval "github.com/smallbiznis/stitchboard/internal/approval/domain"
	masterdata "github.com/smallbiznis/stitchboard/internal/masterdata/domain"
	"github.com/smallbiznis/stitchboard/internal/principal"
	"gorm.io/gorm"
)

// handler validates and applies the payload of one TargetEntity.
type handler interface {
	// check decodes the payload, verifies the caller may target the record
	// and returns the canonical payload to store.
	check(ctx context.Context, db *gorm.DB, p principal.Principal, targetID snowflake.ID, raw []byte) ([]byte, error)
	apply(ctx context.Context, tx *gorm.DB, a *approval.Approval) error
}

// typedHandler binds one payload type to its target lookup and apply step.
type typedHandler[T any] struct {
	validate *validator.Validate
	target   func(db *gorm.DB, p principal.Principal, targetID snowflake.ID) error
	verify   func(payload T) error
	applyFn  func(tx *gorm.DB, a *approval.Approval, payload T) error
}

func (h typedHandler[T]) decode(raw []byte) (T, error) {
	var payload T
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return payload, errors.Join(approval.ErrInvalidPayload, err)
	}
	if err := h.validate.Struct(payload); err != nil {
		return payload, errors.Join(approval.ErrInvalidPayload, err)
	}
	if err := h.verify(payload); err != nil {
		return payload, err
	}
	return payload, nil
}

func (h typedHandler[T]) check(ctx context.Context, db *gorm.DB, p principal.Principal, targetID snowflake.ID, raw []byte) ([]byte, error) {
	payload, err := h.decode(raw)
	if err != nil {
		return nil, err
	}
	if err := h.target(db.WithContext(ctx), p, targetID); err != nil {
		return nil, err
	}
	return json.Marshal(payload)
}

func (h typedHandler[T]) apply(ctx context.Context, tx *gorm.DB, a *approval.Approval) error {
	payload, err := h.decode(a.Payload)
	if err != nil {
		return err
	}
	return h.applyFn(tx.WithContext(ctx), a, payload)
}

func (s *Service) buildHandlers() map[approval.TargetEntity]handler {
	return map[approval.TargetEntity]handler{
		approval.EntityStyle: typedHandler[approval.StyleChange]{
			validate: s.validate,
			target:   styleTarget,
			verify: func(c approval.StyleChange) error {
				if c.Name == nil && c.Status == nil {
					return approval.ErrInvalidPayload
				}
				return nil
			},
			applyFn: func(tx *gorm.DB, a *approval.Approval, c approval.StyleChange) error {
				updates := map[string]any{"updated_at": s.clock.Now()}
				if c.Name != nil {
					updates["name"] = *c.Name
				}
				if c.Status != nil {
					updates["status"] = *c.Status
				}
				return updateTarget(tx.Model(&masterdata.Style{}), a, updates)
			},
		},
		approval.EntityVendor: typedHandler[approval.VendorChange]{
			validate: s.validate,
			target: func(db *gorm.DB, p principal.Principal, targetID snowflake.ID) error {
				if p.Role == principal.RoleVendor && p.VendorID != targetID {
					return approval.ErrTargetNotFound
				}
				return exists(db.Model(&masterdata.Vendor{}), p.TenantID, targetID)
			},
			verify: func(c approval.VendorChange) error {
				if c.Name == nil && c.ContactEmail == nil {
					return approval.ErrInvalidPayload
				}
				return nil
			},
			applyFn: func(tx *gorm.DB, a *approval.Approval, c approval.VendorChange) error {
				updates := map[string]any{"updated_at": s.clock.Now()}
				if c.Name != nil {
					updates["name"] = *c.Name
				}
				if c.ContactEmail != nil {
					updates["contact_email"] = *c.ContactEmail
				}
				return updateTarget(tx.Model(&masterdata.Vendor{}), a, updates)
			},
		},
		approval.EntityTailor: typedHandler[approval.TailorChange]{
			validate: s.validate,
			target: func(db *gorm.DB, p principal.Principal, targetID snowflake.ID) error {
				if p.Role == principal.RoleTailor && p.TailorID != targetID {
					return approval.ErrTargetNotFound
				}
				return exists(db.Model(&masterdata.Tailor{}), p.TenantID, targetID)
			},
			verify: func(c approval.TailorChange) error {
				if c.Name == nil && c.Phone == nil && c.Active == nil {
					return approval.ErrInvalidPayload
				}
				return nil
			},
			applyFn: func(tx *gorm.DB, a *approval.Approval, c approval.TailorChange) error {
				updates := map[string]any{"updated_at": s.clock.Now()}
				if c.Name != nil {
					updates["name"] = *c.Name
				}
				if c.Phone != nil {
					updates["phone"] = *c.Phone
				}
				if c.Active != nil {
					updates["active"] = *c.Active
				}
				return updateTarget(tx.Model(&masterdata.Tailor{}), a, updates)
			},
		},
		approval.EntityRate: typedHandler[approval.RateProposal]{
			validate: s.validate,
			target:   styleTarget,
			verify: func(r approval.RateProposal) error {
				if !r.Amount.IsPositive() || r.EffectiveDate.IsZero() {
					return approval.ErrInvalidPayload
				}
				return nil
			},
			applyFn: func(tx *gorm.DB, a *approval.Approval, r approval.RateProposal) error {
				if err := exists(tx.Model(&masterdata.Style{}), a.TenantID, a.TargetID); err != nil {
					return err
				}
				return tx.Create(&masterdata.Rate{
					ID:            s.genID.Generate(),
					TenantID:      a.TenantID,
					StyleID:       a.TargetID,
					Kind:          r.Kind,
					Amount:        r.Amount,
					EffectiveDate: r.EffectiveDate.UTC(),
				}).Error
			},
		},
	}
}

// styleTarget admits styles of the tenant, limited to a vendor's own styles.
func styleTarget(db *gorm.DB, p principal.Principal, targetID snowflake.ID) error {
	q := db.Model(&masterdata.Style{})
	if p.Role == principal.RoleVendor {
		q = q.Where("vendor_id = ?", p.VendorID)
	}
	return exists(q, p.TenantID, targetID)
}

func exists(q *gorm.DB, tenantID, id snowflake.ID) error {
	var count int64
	if err := q.Where("tenant_id = ? AND id = ?", tenantID, id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return approval.ErrTargetNotFound
	}
	return nil
}

func updateTarget(q *gorm.DB, a *approval.Approval, updates map[string]any) error {
	res := q.Where("tenant_id = ? AND id = ?", a.TenantID, a.TargetID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return approval.ErrTargetNotFound
	}
	return nil
}
