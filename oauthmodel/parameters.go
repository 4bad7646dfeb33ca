package oauthmodel

// GrantType represents the OAuth 2.0 grant type used at the token endpoint.
// Determines what credentials are required to obtain tokens.
type GrantType string

const (
	// PasswordGrant exchanges a resource owner's username and password for tokens.
	// Token request includes: username, password, scope
	// Returns: access_token, identity_token (openid), refresh_token (offline_access)
	PasswordGrant GrantType = "password"

	// ClientCredentialsGrant allows machine-to-machine authentication.
	// Used in: Backend service authentication (no user context)
	// Token request includes: client credentials, scope
	// Returns: access_token (no refresh_token or identity_token)
	ClientCredentialsGrant GrantType = "client_credentials"

	// RefreshTokenGrant exchanges a refresh token for new tokens.
	// Token request includes: refresh_token, optional narrowed scope
	// Returns: new access_token and, when still permitted, a refresh_token
	RefreshTokenGrant GrantType = "refresh_token"
)

// IsBuiltIn reports whether the grant type is handled without an extension validator.
func (g GrantType) IsBuiltIn() bool {
	switch g {
	case PasswordGrant, ClientCredentialsGrant, RefreshTokenGrant:
		return true
	}
	return false
}

// Form parameter names read from the token request body.
const (
	ParamGrantType           = "grant_type"
	ParamClientID            = "client_id"
	ParamClientSecret        = "client_secret"
	ParamClientAssertion     = "client_assertion"
	ParamClientAssertionType = "client_assertion_type"
	ParamScope               = "scope"
	ParamResource            = "resource"
	ParamUsername            = "username"
	ParamPassword            = "password"
	ParamRefreshToken        = "refresh_token"
)

// JWTBearerAssertionType is the only supported client_assertion_type (RFC 7523).
const JWTBearerAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// Standard scope names with protocol meaning.
const (
	ScopeOpenID        = "openid"
	ScopeOfflineAccess = "offline_access"
)

// TokenTypeBearer is the only token type issued.
const TokenTypeBearer = "Bearer"

// AMR values set by the built-in grants.
const (
	AMRPassword = "password"
)
