package oauthmodel

import "strings"

// ParsedScope is a single requested scope, optionally qualified by a resource indicator.
type ParsedScope struct {
	// Name is the scope name validated against the client and the resource catalog.
	Name string
	// Resource is the resource qualifier, empty for flat scopes.
	Resource string
	// Raw is the token exactly as sent by the client.
	Raw string
}

// ScopeNames returns the raw scope values in order.
func ScopeNames(scopes []ParsedScope) []string {
	names := make([]string, 0, len(scopes))
	for _, s := range scopes {
		names = append(names, s.Raw)
	}
	return names
}

// JoinScopes renders the scopes as a space-delimited string.
func JoinScopes(scopes []ParsedScope) string {
	return strings.Join(ScopeNames(scopes), " ")
}

// ContainsScope reports whether a scope with the given name is present.
func ContainsScope(scopes []ParsedScope, name string) bool {
	for _, s := range scopes {
		if s.Name == name {
			return true
		}
	}
	return false
}
