package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	KeyIssuer                = "issuer"
	KeySigningAlgorithm      = "signing-algorithm"
	KeySigningKeyFile        = "signing-key-file"
	KeyAccessTokenLifetime   = "access-token-lifetime"
	KeyIdentityTokenLifetime = "identity-token-lifetime"
	KeyRefreshTokenLifetime  = "refresh-token-lifetime"
	KeyRefreshTokenLength    = "refresh-token-length"
	KeyScopesAsString        = "scopes-as-string"
	KeyAssertionAudiences    = "assertion-audiences"
	KeyScopeSeparator        = "scope-separator"
)

const (
	defaultIssuer                = "http://localhost:8080"
	defaultSigningAlgorithm      = "RS256"
	defaultAccessTokenLifetime   = time.Hour
	defaultIdentityTokenLifetime = 5 * time.Minute
	defaultRefreshTokenLifetime  = 30 * 24 * time.Hour
	defaultRefreshTokenLength    = 32 // 32 bytes = 256 bits
)

type OAuthConfig interface {
	GetIssuer() string
	GetSigningAlgorithm() string
	GetSigningKeyFile() string
	GetDefaultAccessTokenExpiry() time.Duration
	GetDefaultIDTokenExpiry() time.Duration
	GetDefaultRefreshTokenExpiry() time.Duration
	GetRefreshTokenLength() int
	GetEmitScopesAsString() bool
	GetAssertionAudiences() []string
	GetScopeSeparator() string
}

type OAuth struct {
	v *viper.Viper
}

var _ OAuthConfig = OAuth{}

func (o OAuth) GetIssuer() string {
	return strings.TrimRight(strings.TrimSpace(o.v.GetString(KeyIssuer)), "/")
}

func (o OAuth) GetSigningAlgorithm() string {
	return strings.ToUpper(strings.TrimSpace(o.v.GetString(KeySigningAlgorithm)))
}

// GetSigningKeyFile returns a PEM private key. Empty generates a key at startup.
func (o OAuth) GetSigningKeyFile() string {
	return strings.TrimSpace(o.v.GetString(KeySigningKeyFile))
}

func (o OAuth) GetDefaultAccessTokenExpiry() time.Duration {
	return o.v.GetDuration(KeyAccessTokenLifetime)
}

func (o OAuth) GetDefaultIDTokenExpiry() time.Duration {
	return o.v.GetDuration(KeyIdentityTokenLifetime)
}

func (o OAuth) GetDefaultRefreshTokenExpiry() time.Duration {
	return o.v.GetDuration(KeyRefreshTokenLifetime)
}

func (o OAuth) GetRefreshTokenLength() int {
	if n := o.v.GetInt(KeyRefreshTokenLength); n > 0 {
		return n
	}
	return defaultRefreshTokenLength
}

// GetEmitScopesAsString reports whether the scope claim is one space delimited string
// instead of a JSON array.
func (o OAuth) GetEmitScopesAsString() bool {
	return o.v.GetBool(KeyScopesAsString)
}

// GetAssertionAudiences returns the accepted aud values of client assertions. When
// none are configured the issuer and the token endpoint are accepted.
func (o OAuth) GetAssertionAudiences() []string {
	var audiences []string
	for _, aud := range o.v.GetStringSlice(KeyAssertionAudiences) {
		if aud = strings.TrimSpace(aud); aud != "" {
			audiences = append(audiences, aud)
		}
	}
	return audiences
}

// GetScopeSeparator enables resource qualified scopes ("resource/scope") when set.
func (o OAuth) GetScopeSeparator() string {
	return o.v.GetString(KeyScopeSeparator)
}
