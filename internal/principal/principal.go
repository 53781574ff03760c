// Package principal models the authenticated caller handed to every domain
// service by the auth gateway.
package principal

import (
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleVendor  Role = "vendor"
	RoleTailor  Role = "tailor"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidRole     = errors.New("invalid_role")
	ErrMissingTenant   = errors.New("missing_tenant")
	ErrMissingScope    = errors.New("missing_scope_identity")
)

// ParseRole maps a raw role name to a known Role.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleManager:
		return RoleManager, nil
	case RoleVendor:
		return RoleVendor, nil
	case RoleTailor:
		return RoleTailor, nil
	default:
		return "", ErrInvalidRole
	}
}

// Principal identifies the caller. VendorID is set for vendor callers and
// TailorID for tailor callers.
type Principal struct {
	UserID   snowflake.ID
	Role     Role
	TenantID snowflake.ID
	VendorID snowflake.ID
	TailorID snowflake.ID
}

// Validate fails closed: a principal that cannot be scoped is rejected.
func (p Principal) Validate() error {
	if p.UserID == 0 {
		return ErrUnauthenticated
	}
	if p.TenantID == 0 {
		return ErrMissingTenant
	}
	switch p.Role {
	case RoleAdmin, RoleManager:
		return nil
	case RoleVendor:
		if p.VendorID == 0 {
			return ErrMissingScope
		}
		return nil
	case RoleTailor:
		if p.TailorID == 0 {
			return ErrMissingScope
		}
		return nil
	default:
		return ErrInvalidRole
	}
}

// TenantWide reports whether the caller sees every vendor and tailor of the tenant.
func (p Principal) TenantWide() bool {
	return p.Role == RoleAdmin || p.Role == RoleManager
}
