package resources_test

import (
	"testing"

	autherrors "github.com/jrsteele09/go-token-server/internal/errors"
	"github.com/jrsteele09/go-token-server/oauthmodel"
	"github.com/jrsteele09/go-token-server/resources"
	"github.com/stretchr/testify/require"
)

func newCatalog(t *testing.T) *resources.Catalog {
	t.Helper()
	c, err := resources.NewCatalog(
		append(resources.StandardIdentityResources(), resources.IdentityResource{Name: "roles", ClaimTypes: []string{"role"}}),
		[]resources.APIScope{
			{Name: "api1"},
			{Name: "read", ClaimTypes: []string{"department"}},
			{Name: "write"},
		},
		[]resources.APIResource{
			{Name: "api1", Scopes: []string{"api1"}, ClaimTypes: []string{"role"}},
			{Name: "api2", Scopes: []string{"read", "write"}},
			{Name: "api3", Scopes: []string{"read"}},
		},
	)
	require.NoError(t, err)
	return c
}

func TestCatalogLookups(t *testing.T) {
	c := newCatalog(t)

	require.True(t, c.IsIdentityScope("openid"))
	require.False(t, c.IsIdentityScope("api1"))
	require.True(t, c.IsAPIScope("write"))
	require.True(t, c.IsKnownScope(oauthmodel.ScopeOfflineAccess))
	require.False(t, c.IsKnownScope("unknown"))

	api, ok := c.APIResource("api2")
	require.True(t, ok)
	require.True(t, api.HasScope("write"))

	require.Equal(t, []string{"address", "api1", "email", "openid", "phone", "profile", "read", "roles", "write"}, c.ScopeNames())
}

func TestCatalogAudiences(t *testing.T) {
	c := newCatalog(t)

	tests := []struct {
		name   string
		scopes []oauthmodel.ParsedScope
		want   []string
	}{
		{"identity only", []oauthmodel.ParsedScope{{Name: "openid", Raw: "openid"}}, nil},
		{"shared scope", []oauthmodel.ParsedScope{{Name: "read", Raw: "read"}}, []string{"api2", "api3"}},
		{"resource qualified", []oauthmodel.ParsedScope{{Name: "read", Resource: "api3", Raw: "api3:read"}}, []string{"api3"}},
		{"catalog order", []oauthmodel.ParsedScope{{Name: "write", Raw: "write"}, {Name: "api1", Raw: "api1"}}, []string{"api1", "api2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, c.Audiences(tt.scopes))
		})
	}
}

func TestCatalogRequestedAudiences(t *testing.T) {
	c := newCatalog(t)
	granted := []oauthmodel.ParsedScope{{Name: "read", Raw: "read"}, {Name: "api1", Raw: "api1"}}

	tests := []struct {
		name      string
		requested []string
		want      []string
		err       bool
	}{
		{name: "no indicators", want: []string{"api1", "api2", "api3"}},
		{name: "narrowed", requested: []string{"api3"}, want: []string{"api3"}},
		{name: "catalog order", requested: []string{"api3", "api1", "api3"}, want: []string{"api1", "api3"}},
		{name: "unknown resource", requested: []string{"urn:unknown"}, err: true},
		{name: "several indicators", requested: []string{"api1", "api2"}, want: []string{"api1", "api2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.RequestedAudiences(granted, tt.requested)
			if tt.err {
				require.ErrorIs(t, err, autherrors.ErrInvalidResource)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	t.Run("resource owning none of the granted scopes", func(t *testing.T) {
		_, err := c.RequestedAudiences([]oauthmodel.ParsedScope{{Name: "api1", Raw: "api1"}}, []string{"api2"})
		require.ErrorIs(t, err, autherrors.ErrInvalidResource)
	})
}

func TestCatalogClaimTypes(t *testing.T) {
	c := newCatalog(t)
	scopes := []oauthmodel.ParsedScope{
		{Name: "openid", Raw: "openid"},
		{Name: "email", Raw: "email"},
		{Name: "roles", Raw: "roles"},
		{Name: "read", Raw: "read"},
		{Name: "api1", Raw: "api1"},
	}

	require.Equal(t, []string{"sub", "email", "email_verified", "role"}, c.IdentityClaimTypes(scopes))
	require.Equal(t, []string{"department", "role"}, c.APIClaimTypes(scopes))
}

func TestNewCatalogErrors(t *testing.T) {
	tests := []struct {
		name     string
		identity []resources.IdentityResource
		scopes   []resources.APIScope
		apis     []resources.APIResource
		contains string
	}{
		{
			name:     "duplicate identity",
			identity: []resources.IdentityResource{{Name: "openid"}, {Name: "openid"}},
			contains: "duplicate identity resource",
		},
		{
			name:     "scope collides with identity",
			identity: []resources.IdentityResource{{Name: "email"}},
			scopes:   []resources.APIScope{{Name: "email"}},
			contains: "collides",
		},
		{
			name:     "unknown scope",
			apis:     []resources.APIResource{{Name: "api1", Scopes: []string{"missing"}}},
			contains: "unknown scope",
		},
		{
			name:     "duplicate api",
			scopes:   []resources.APIScope{{Name: "a"}},
			apis:     []resources.APIResource{{Name: "api1", Scopes: []string{"a"}}, {Name: "api1"}},
			contains: "duplicate api resource",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resources.NewCatalog(tt.identity, tt.scopes, tt.apis)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.contains)
		})
	}
}
