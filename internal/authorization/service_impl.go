package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/stitchboard/internal/principal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectAnalytics  = "analytics"
	ObjectFinance    = "finance"
	ObjectMasterData = "master_data"
	ObjectProduction = "production"
	ObjectTailorJob  = "tailor_job"
	ObjectAuditLog   = "audit_log"
)

// ApprovalObject names the casbin object guarding approvals of one entity kind.
func ApprovalObject(entity string) string {
	return "approval:" + strings.ToLower(strings.TrimSpace(entity))
}

const (
	ActionView   = "view"
	ActionExport = "export"
	ActionCreate = "create"
	ActionRecord = "record"
	ActionUpdate = "update"
	ActionSubmit = "submit"
	ActionReview = "review"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	return newEnforcerWithAdapter(adapter)
}

func newEnforcerWithAdapter(adapter interface{}) (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	var enforcer *casbin.SyncedEnforcer
	if adapter == nil {
		enforcer, err = casbin.NewSyncedEnforcer(m)
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m, adapter)
	}
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(adapter != nil)
	enforcer.EnableAutoBuildRoleLinks(true)
	if adapter != nil {
		if err := enforcer.LoadPolicy(); err != nil {
			return nil, err
		}
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

// NewMemoryEnforcer builds a seeded enforcer without persistence.
func NewMemoryEnforcer() (*casbin.SyncedEnforcer, error) {
	return newEnforcerWithAdapter(nil)
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, p principal.Principal, object string, action string) error {
	if err := p.Validate(); err != nil {
		return err
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject := fmt.Sprintf("user:%s", p.UserID.String())
	roleName := fmt.Sprintf("role:%s", p.Role)
	domain := fmt.Sprintf("tenant:%s", p.TenantID.String())
	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("subject", subject),
			zap.String("role", string(p.Role)),
			zap.String("tenant_id", p.TenantID.String()),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

// ensureGrouping keeps exactly one role link for the subject in the tenant,
// following whatever role the gateway asserted for this request.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(params...); err != nil {
			return err
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Admin manages everything, including rate changes.
		{"role:admin", ObjectAnalytics, ActionView},
		{"role:admin", ObjectAnalytics, ActionExport},
		{"role:admin", ObjectFinance, ActionView},
		{"role:admin", ObjectFinance, ActionExport},
		{"role:admin", ObjectMasterData, ActionView},
		{"role:admin", ObjectMasterData, ActionCreate},
		{"role:admin", ObjectProduction, ActionRecord},
		{"role:admin", ObjectTailorJob, ActionUpdate},
		{"role:admin", ApprovalObject("style"), ActionSubmit},
		{"role:admin", ApprovalObject("style"), ActionReview},
		{"role:admin", ApprovalObject("vendor"), ActionSubmit},
		{"role:admin", ApprovalObject("vendor"), ActionReview},
		{"role:admin", ApprovalObject("tailor"), ActionSubmit},
		{"role:admin", ApprovalObject("tailor"), ActionReview},
		{"role:admin", ApprovalObject("rate"), ActionSubmit},
		{"role:admin", ApprovalObject("rate"), ActionReview},
		{"role:admin", ObjectAuditLog, ActionView},

		// Manager runs the floor but cannot approve pricing.
		{"role:manager", ObjectAnalytics, ActionView},
		{"role:manager", ObjectAnalytics, ActionExport},
		{"role:manager", ObjectFinance, ActionView},
		{"role:manager", ObjectMasterData, ActionView},
		{"role:manager", ObjectMasterData, ActionCreate},
		{"role:manager", ObjectProduction, ActionRecord},
		{"role:manager", ObjectTailorJob, ActionUpdate},
		{"role:manager", ApprovalObject("style"), ActionSubmit},
		{"role:manager", ApprovalObject("style"), ActionReview},
		{"role:manager", ApprovalObject("vendor"), ActionSubmit},
		{"role:manager", ApprovalObject("vendor"), ActionReview},
		{"role:manager", ApprovalObject("tailor"), ActionSubmit},
		{"role:manager", ApprovalObject("tailor"), ActionReview},
		{"role:manager", ApprovalObject("rate"), ActionSubmit},

		// Vendor sees its own dashboards and proposes style changes.
		{"role:vendor", ObjectAnalytics, ActionView},
		{"role:vendor", ObjectAnalytics, ActionExport},
		{"role:vendor", ObjectMasterData, ActionView},
		{"role:vendor", ApprovalObject("style"), ActionSubmit},
		{"role:vendor", ApprovalObject("vendor"), ActionSubmit},

		// Tailor sees its own jobs and reports returned pieces.
		{"role:tailor", ObjectAnalytics, ActionView},
		{"role:tailor", ObjectMasterData, ActionView},
		{"role:tailor", ObjectTailorJob, ActionUpdate},
		{"role:tailor", ApprovalObject("tailor"), ActionSubmit},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
