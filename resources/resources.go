package resources

import (
	"slices"
)

// IdentityResource is a named group of identity claims requested with a scope, such as "email".
type IdentityResource struct {
	Name       string   `json:"name" yaml:"name"`
	ClaimTypes []string `json:"claims" yaml:"claims"`
	Required   bool     `json:"required" yaml:"required"`
}

// APIScope is a permission on an API. Its claim types are added to access tokens.
type APIScope struct {
	Name       string   `json:"name" yaml:"name"`
	ClaimTypes []string `json:"claims" yaml:"claims"`
}

// APIResource is a protected API. Its name becomes an access token audience when any of
// its scopes is granted.
type APIResource struct {
	Name       string   `json:"name" yaml:"name"`
	Scopes     []string `json:"scopes" yaml:"scopes"`
	ClaimTypes []string `json:"claims" yaml:"claims"`
}

// HasScope reports whether the API resource exposes the scope.
func (r *APIResource) HasScope(scope string) bool {
	return slices.Contains(r.Scopes, scope)
}

// StandardIdentityResources returns the OpenID Connect identity resources.
func StandardIdentityResources() []IdentityResource {
	return []IdentityResource{
		{Name: "openid", ClaimTypes: []string{"sub"}, Required: true},
		{Name: "profile", ClaimTypes: []string{"name", "family_name", "given_name", "middle_name", "nickname", "preferred_username", "profile", "picture", "website", "gender", "birthdate", "zoneinfo", "locale", "updated_at"}},
		{Name: "email", ClaimTypes: []string{"email", "email_verified"}},
		{Name: "address", ClaimTypes: []string{"address"}},
		{Name: "phone", ClaimTypes: []string{"phone_number", "phone_number_verified"}},
	}
}
