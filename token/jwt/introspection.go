package jwt

import (
	"errors"
	"fmt"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-token-server/internal/utils"
	"github.com/jrsteele09/go-token-server/token/keys"
)

// ErrInactiveToken is returned for tokens that fail signature, issuer or lifetime checks.
var ErrInactiveToken = errors.New("token is not active")

// Inspector validates access tokens issued by this server
type Inspector struct {
	issuer string
	keys   *keys.Provider
}

// NewInspector creates a new JWT inspector
func NewInspector(issuer string, provider *keys.Provider) *Inspector {
	return &Inspector{
		issuer: issuer,
		keys:   provider,
	}
}

// Inspect verifies the token signature, issuer and lifetime and returns its claims
func (i *Inspector) Inspect(rawToken string) (jwtlib.MapClaims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, ErrInactiveToken
	}

	token, err := jwtlib.ParseWithClaims(rawToken, jwtlib.MapClaims{}, i.keys.VerificationKey,
		jwtlib.WithIssuer(i.issuer),
		jwtlib.WithValidMethods(i.keys.Algorithms()),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(NowTimeFunc),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInactiveToken, err)
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: error extracting claims", ErrInactiveToken)
	}
	return claims, nil
}

// Scopes returns the scope claim as a slice, accepting both the string and array forms.
func Scopes(claims jwtlib.MapClaims) []string {
	switch v := claims["scope"].(type) {
	case string:
		return strings.Fields(v)
	case []any:
		return utils.ToStringSlice(v)
	}
	return nil
}
