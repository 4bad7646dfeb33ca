package oauthmodel

import (
	"maps"
	"strings"
)

// TokenRequest holds the parameters of an OAuth2 token request.
// This represents the form body sent to the token endpoint. It is built once by
// the transport layer and only read afterwards.
type TokenRequest struct {
	// GrantType selects the grant validator.
	// Required: Yes
	// Example: "password", "client_credentials", "refresh_token" or an extension name
	GrantType GrantType

	// ClientID identifies the OAuth2 client making the request.
	// Required: Unless the client authenticates with an assertion whose subject names it
	// Example: "roclient"
	ClientID string

	// ClientSecret is the shared secret sent in the request body (client_secret_post).
	// Required: No, Basic authentication is an alternative
	// Security: Never log or expose this value
	ClientSecret string

	// ClientAssertion is a signed JWT proving the client's identity (private_key_jwt).
	// Required: Only when ClientAssertionType is the jwt-bearer type
	ClientAssertion string

	// ClientAssertionType must be JWTBearerAssertionType when ClientAssertion is set.
	ClientAssertionType string

	// Scope is the raw space-delimited scope string.
	// Required: No (client defaults apply for some grants)
	// Example: "openid email api1 offline_access"
	Scope string

	// Resources are the requested resource indicators (RFC 8707).
	// Required: No
	// Example: ["urn:resource1"]
	Resources []string

	parameters map[string]string
}

// NewTokenRequest creates a token request. The parameters map carries every form value
// (first value per key) and is copied so the request stays immutable.
func NewTokenRequest(parameters map[string]string, resources []string) *TokenRequest {
	params := maps.Clone(parameters)
	if params == nil {
		params = make(map[string]string)
	}
	return &TokenRequest{
		GrantType:           GrantType(strings.TrimSpace(params[ParamGrantType])),
		ClientID:            params[ParamClientID],
		ClientSecret:        params[ParamClientSecret],
		ClientAssertion:     params[ParamClientAssertion],
		ClientAssertionType: params[ParamClientAssertionType],
		Scope:               params[ParamScope],
		Resources:           append([]string(nil), resources...),
		parameters:          params,
	}
}

// Param returns a grant specific parameter, such as username or custom_credential.
func (r *TokenRequest) Param(name string) string {
	return r.parameters[name]
}

// HasParam reports whether the parameter was sent with a non empty value.
func (r *TokenRequest) HasParam(name string) bool {
	return strings.TrimSpace(r.parameters[name]) != ""
}

// Parameters returns a copy of every request parameter.
func (r *TokenRequest) Parameters() map[string]string {
	return maps.Clone(r.parameters)
}
