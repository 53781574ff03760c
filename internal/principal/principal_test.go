package principal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRole(t *testing.T) {
	role, err := ParseRole(" Vendor ")
	assert.NoError(t, err)
	assert.Equal(t, RoleVendor, role)

	_, err = ParseRole("owner")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestValidateFailsClosed(t *testing.T) {
	cases := []struct {
		name string
		p    Principal
		want error
	}{
		{name: "anonymous", p: Principal{}, want: ErrUnauthenticated},
		{name: "no tenant", p: Principal{UserID: 1, Role: RoleAdmin}, want: ErrMissingTenant},
		{name: "vendor without vendor id", p: Principal{UserID: 1, TenantID: 2, Role: RoleVendor}, want: ErrMissingScope},
		{name: "tailor without tailor id", p: Principal{UserID: 1, TenantID: 2, Role: RoleTailor}, want: ErrMissingScope},
		{name: "unknown role", p: Principal{UserID: 1, TenantID: 2, Role: "owner"}, want: ErrInvalidRole},
		{name: "vendor", p: Principal{UserID: 1, TenantID: 2, Role: RoleVendor, VendorID: 3}},
		{name: "manager", p: Principal{UserID: 1, TenantID: 2, Role: RoleManager}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.p.Validate()
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestFromContext(t *testing.T) {
	_, err := FromContext(context.Background())
	assert.ErrorIs(t, err, ErrUnauthenticated)

	p := Principal{UserID: 1, TenantID: 2, Role: RoleTailor, TailorID: 9}
	got, err := FromContext(WithPrincipal(context.Background(), p))
	assert.NoError(t, err)
	assert.Equal(t, p, got)
	assert.False(t, got.TenantWide())
}
