package jwt

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"maps"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-token-server/token/keys"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// IdentityProvider is the idp claim value for users authenticated by this server.
const IdentityProvider = "local"

// protocolClaims are never overwritten by profile or client claims.
var protocolClaims = map[string]struct{}{
	"iss":       {}, "sub": {}, "aud": {}, "exp": {}, "nbf": {}, "iat": {}, "jti": {},
	"client_id": {}, "scope": {}, "amr": {}, "auth_time": {}, "idp": {}, "cnf": {}, "at_hash": {},
}

// IsProtocolClaim reports whether the claim type is set by the token creator itself.
func IsProtocolClaim(claimType string) bool {
	_, ok := protocolClaims[claimType]
	return ok
}

// AccessTokenParams describes an access token.
type AccessTokenParams struct {
	ClientID              string
	Subject               string // Empty for client-only tokens
	AMR                   []string
	AuthTime              time.Time
	Scopes                []string
	Audiences             []string
	Lifetime              time.Duration
	Claims                map[string]any // Profile claims for the granted API scopes
	ClientClaims          map[string]string
	CertificateThumbprint string // x5t#S256 confirmation for certificate-bound tokens
}

// IdentityTokenParams describes an OpenID Connect identity token.
type IdentityTokenParams struct {
	ClientID    string
	Subject     string
	AMR         []string
	AuthTime    time.Time
	Lifetime    time.Duration
	AccessToken string         // Used for at_hash
	Claims      map[string]any // Identity claims, only when the client asks for them in the token
}

// Creator handles JWT token creation (identity tokens and access tokens)
type Creator struct {
	issuer                string
	signer                keys.Signer
	scopesAsDelimitedList bool
}

// NewCreator creates a new JWT creator. When scopesAsDelimitedList is set the scope claim is a
// space-delimited string, otherwise a JSON array.
func NewCreator(issuer string, signer keys.Signer, scopesAsDelimitedList bool) *Creator {
	return &Creator{
		issuer:                issuer,
		signer:                signer,
		scopesAsDelimitedList: scopesAsDelimitedList,
	}
}

// CreateAccessToken creates an OAuth2 access token
func (c *Creator) CreateAccessToken(p AccessTokenParams) (string, error) {
	now := NowTimeFunc()
	claims := jwtlib.MapClaims{}

	for k, v := range p.Claims {
		if !IsProtocolClaim(k) {
			claims[k] = v
		}
	}
	for k, v := range p.ClientClaims {
		claims["client_"+k] = v
	}

	claims["iss"] = c.issuer                   // The issuer of the token
	claims["aud"] = audienceClaim(p.Audiences) // The APIs for which the token is intended
	claims["client_id"] = p.ClientID           // The OAuth2 client that requested the token
	claims["iat"] = now.Unix()                 // Issued At: the time at which the token was issued
	claims["nbf"] = now.Unix()                 // Not Before
	claims["exp"] = now.Add(p.Lifetime).Unix() // Expiry: when the token will expire
	claims["jti"] = uuid.New().String()        // Unique token ID

	if len(p.Scopes) > 0 {
		if c.scopesAsDelimitedList {
			claims["scope"] = strings.Join(p.Scopes, " ")
		} else {
			claims["scope"] = append([]string(nil), p.Scopes...)
		}
	}

	if p.Subject != "" {
		// User-delegated access token
		claims["sub"] = p.Subject
		claims["auth_time"] = authTime(p.AuthTime, now)
		claims["idp"] = IdentityProvider
		if len(p.AMR) > 0 {
			claims["amr"] = append([]string(nil), p.AMR...)
		}
	}

	if p.CertificateThumbprint != "" {
		claims["cnf"] = map[string]any{"x5t#S256": p.CertificateThumbprint}
	}

	return c.signToken(claims)
}

// CreateIDToken creates an OpenID Connect identity token
func (c *Creator) CreateIDToken(p IdentityTokenParams) (string, error) {
	now := NowTimeFunc()
	claims := jwtlib.MapClaims{}
	for k, v := range p.Claims {
		if !IsProtocolClaim(k) {
			claims[k] = v
		}
	}
	maps.Copy(claims, jwtlib.MapClaims{
		"iss":       c.issuer,
		"sub":       p.Subject,
		"aud":       p.ClientID,
		"iat":       now.Unix(),
		"nbf":       now.Unix(),
		"exp":       now.Add(p.Lifetime).Unix(),
		"auth_time": authTime(p.AuthTime, now),
		"idp":       IdentityProvider,
	})
	if len(p.AMR) > 0 {
		claims["amr"] = append([]string(nil), p.AMR...)
	}
	if p.AccessToken != "" {
		claims["at_hash"] = AccessTokenHash(p.AccessToken)
	}
	return c.signToken(claims)
}

// AccessTokenHash computes the at_hash value: the left half of the SHA-256 of the token.
func AccessTokenHash(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2])
}

// signToken signs JWT claims using the configured signer
func (c *Creator) signToken(claims jwtlib.MapClaims) (string, error) {
	signedToken, err := c.signer.Sign(claims)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT token: %w", err)
	}
	return signedToken, nil
}

func audienceClaim(audiences []string) any {
	if len(audiences) == 1 {
		return audiences[0]
	}
	return append([]string(nil), audiences...)
}

func authTime(t, now time.Time) int64 {
	if t.IsZero() {
		return now.Unix()
	}
	return t.Unix()
}
