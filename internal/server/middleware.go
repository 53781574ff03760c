package server

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/stitchboard/internal/observability/context"
	"github.com/smallbiznis/stitchboard/internal/principal"
)

// Identity headers set by the auth gateway. Anything reaching this service
// directly must not be able to forge them.
const (
	HeaderUserID   = "X-User-ID"
	HeaderRole     = "X-User-Role"
	HeaderTenantID = "X-Tenant-ID"
	HeaderVendorID = "X-Vendor-ID"
	HeaderTailorID = "X-Tailor-ID"
)

// PrincipalRequired rejects the request unless the gateway headers describe
// a complete, scopable caller.
func PrincipalRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := principalFromHeaders(c.Request.Header)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := principal.WithPrincipal(c.Request.Context(), p)
		ctx = obscontext.WithTenantID(ctx, p.TenantID.String())
		ctx = obscontext.WithActor(ctx, string(p.Role), p.UserID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func principalFromHeaders(h http.Header) (principal.Principal, error) {
	userID, err := headerID(h, HeaderUserID)
	if err != nil || userID == 0 {
		return principal.Principal{}, ErrUnauthorized
	}
	role, err := principal.ParseRole(h.Get(HeaderRole))
	if err != nil {
		return principal.Principal{}, ErrUnauthorized
	}
	tenantID, err := headerID(h, HeaderTenantID)
	if err != nil {
		return principal.Principal{}, ErrUnauthorized
	}

	p := principal.Principal{UserID: userID, Role: role, TenantID: tenantID}
	switch role {
	case principal.RoleVendor:
		if p.VendorID, err = headerID(h, HeaderVendorID); err != nil {
			return principal.Principal{}, ErrUnauthorized
		}
	case principal.RoleTailor:
		if p.TailorID, err = headerID(h, HeaderTailorID); err != nil {
			return principal.Principal{}, ErrUnauthorized
		}
	}
	if err := p.Validate(); err != nil {
		return principal.Principal{}, err
	}
	return p, nil
}

func headerID(h http.Header, key string) (snowflake.ID, error) {
	raw := strings.TrimSpace(h.Get(key))
	if raw == "" {
		return 0, nil
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id < 0 {
		return 0, errors.New("invalid_id_header")
	}
	return id, nil
}

// ETLSecretRequired guards the refresh endpoint with the shared bearer
// secret. An unset secret disables the endpoint.
func ETLSecretRequired(secret string) gin.HandlerFunc {
	expected := []byte(strings.TrimSpace(secret))
	return func(c *gin.Context) {
		if len(expected) == 0 {
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok || subtle.ConstantTimeCompare([]byte(token), expected) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), "system", "etl"))
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
