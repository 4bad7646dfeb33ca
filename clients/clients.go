package clients

import (
	"crypto"
	"crypto/sha256"
	"encoding/base64"
	"slices"
	"time"
)

// Secret is a hashed shared secret registered for a client.
type Secret struct {
	Value      string    `json:"value" yaml:"value"` // base64(sha256(secret)), see HashSecret
	Expiration time.Time `json:"expiration,omitempty" yaml:"expiration,omitempty"`
}

// Expired reports whether the secret has expired at the given time.
func (s Secret) Expired(now time.Time) bool {
	return !s.Expiration.IsZero() && now.After(s.Expiration)
}

// MutualTLS configures certificate-bound authentication for a client.
type MutualTLS struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Thumbprints are hex encoded SHA-256 hashes of the DER certificate, or
	// base64url encoded SHA-256 hashes of the subject public key info.
	Thumbprints []string `json:"thumbprints" yaml:"thumbprints"`
}

type Client struct {
	ID                               string             `json:"id"`
	Description                      string             `json:"description"`
	Enabled                          bool               `json:"enabled"`
	PublicClient                     bool               `json:"publicClient"` // Authenticates with client_id only
	Secrets                          []Secret           `json:"secrets"`      // Shared secrets (client_secret_basic / client_secret_post)
	AssertionKeys                    []crypto.PublicKey `json:"-"`            // Keys verifying private_key_jwt client assertions
	MutualTLS                        MutualTLS          `json:"mutualTls"`
	AllowedGrantTypes                []string           `json:"allowedGrantTypes"`
	AllowedScopes                    []string           `json:"allowedScopes"` // Allowed scopes for this client
	AllowOfflineAccess               bool               `json:"allowOfflineAccess"`
	AlwaysIncludeUserClaimsInIDToken bool               `json:"alwaysIncludeUserClaimsInIdToken"`
	AccessTokenLifetime              time.Duration      `json:"accessTokenLifetime"`  // Zero uses the server default
	RefreshTokenLifetime             time.Duration      `json:"refreshTokenLifetime"` // Zero uses the server default
	Claims                           map[string]string  `json:"claims"`               // Emitted as client_<type> in access tokens
}

// HasGrantType checks if the client may use a grant type
func (c *Client) HasGrantType(grantType string) bool {
	return slices.Contains(c.AllowedGrantTypes, grantType)
}

// HasScope checks if the client has permission for a specific scope.
// offline_access is governed by AllowOfflineAccess rather than the scope list.
func (c *Client) HasScope(scope string) bool {
	if scope == "offline_access" {
		return c.AllowOfflineAccess
	}
	return slices.Contains(c.AllowedScopes, scope)
}

// RequiresMutualTLS reports whether the client authenticates with a certificate.
func (c *Client) RequiresMutualTLS() bool {
	return c.MutualTLS.Enabled && len(c.MutualTLS.Thumbprints) > 0
}

// AcceptsAssertions reports whether the client can authenticate with a signed JWT.
func (c *Client) AcceptsAssertions() bool {
	return len(c.AssertionKeys) > 0
}

// HashSecret returns the stored form of a shared secret.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return base64.StdEncoding.EncodeToString(sum[:])
}
