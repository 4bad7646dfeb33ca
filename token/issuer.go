package token

import (
	"context"
	"fmt"
	"time"

	"github.com/jrsteele09/go-token-server/clients"
	"github.com/jrsteele09/go-token-server/oauthmodel"
	"github.com/jrsteele09/go-token-server/resources"
	"github.com/jrsteele09/go-token-server/token/jwt"
	"github.com/jrsteele09/go-token-server/token/keys"
	"github.com/jrsteele09/go-token-server/token/refresh"
)

// IssuerConfig holds the token settings shared by every client.
type IssuerConfig struct {
	Issuer                    string
	SigningAlgorithm          string
	AccessTokenLifetime       time.Duration
	IdentityTokenLifetime     time.Duration
	RefreshTokenLifetime      time.Duration
	EmitScopesAsDelimitedList bool
}

// IssueRequest is everything the issuer needs for one successful validation.
type IssueRequest struct {
	Client                *clients.Client
	Result                *oauthmodel.ValidationResult
	AccessClaims          map[string]any // Augmented claims for the granted API scopes
	IdentityClaims        map[string]any // Augmented claims for the granted identity scopes
	CertificateThumbprint string
	Resources             []string // Requested resource indicators; they narrow the audience
}

// IssuedToken is the output of a successful issuance. It is never modified after creation.
type IssuedToken struct {
	AccessToken   string
	IdentityToken string
	RefreshToken  string
	ExpiresIn     int
	Scopes        []oauthmodel.ParsedScope
}

// Issuer signs access and identity tokens and creates refresh tokens.
type Issuer struct {
	cfg     IssuerConfig
	creator *jwt.Creator
	catalog *resources.Catalog
	refresh *refresh.Manager
}

// NewIssuer creates an issuer signing with the key registered for cfg.SigningAlgorithm.
func NewIssuer(cfg IssuerConfig, provider *keys.Provider, catalog *resources.Catalog, refreshManager *refresh.Manager) (*Issuer, error) {
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("[NewIssuer] issuer is required")
	}
	if catalog == nil || refreshManager == nil || provider == nil {
		return nil, fmt.Errorf("[NewIssuer] key provider, resource catalog and refresh manager are required")
	}
	signer, err := provider.Signer(cfg.SigningAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("[NewIssuer] %w", err)
	}
	if cfg.AccessTokenLifetime <= 0 {
		cfg.AccessTokenLifetime = time.Hour
	}
	if cfg.IdentityTokenLifetime <= 0 {
		cfg.IdentityTokenLifetime = 5 * time.Minute
	}
	if cfg.RefreshTokenLifetime <= 0 {
		cfg.RefreshTokenLifetime = 30 * 24 * time.Hour
	}
	return &Issuer{
		cfg:     cfg,
		creator: jwt.NewCreator(cfg.Issuer, signer, cfg.EmitScopesAsDelimitedList),
		catalog: catalog,
		refresh: refreshManager,
	}, nil
}

// Issue creates the tokens for a successful validation result. When a refresh token is
// created it is committed to the store before Issue returns.
func (i *Issuer) Issue(ctx context.Context, req IssueRequest) (*IssuedToken, error) {
	if req.Result == nil || req.Result.IsError() {
		return nil, fmt.Errorf("[Issuer.Issue] cannot issue tokens for a failed validation")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client, result := req.Client, req.Result

	lifetime := i.cfg.AccessTokenLifetime
	if client.AccessTokenLifetime > 0 {
		lifetime = client.AccessTokenLifetime
	}

	audiences, err := i.Audiences(result.Scopes, req.Resources)
	if err != nil {
		return nil, err
	}

	accessToken, err := i.creator.CreateAccessToken(jwt.AccessTokenParams{
		ClientID:              client.ID,
		Subject:               result.Subject,
		AMR:                   result.AMR,
		AuthTime:              result.AuthTime,
		Scopes:                oauthmodel.ScopeNames(result.Scopes),
		Audiences:             audiences,
		Lifetime:              lifetime,
		Claims:                mergeClaims(result.Claims, req.AccessClaims),
		ClientClaims:          client.Claims,
		CertificateThumbprint: req.CertificateThumbprint,
	})
	if err != nil {
		return nil, fmt.Errorf("[Issuer.Issue] access token: %w", err)
	}

	issued := &IssuedToken{
		AccessToken: accessToken,
		ExpiresIn:   int(lifetime / time.Second),
		Scopes:      result.Scopes,
	}

	if result.HasSubject() && oauthmodel.ContainsScope(result.Scopes, oauthmodel.ScopeOpenID) {
		var idClaims map[string]any
		if client.AlwaysIncludeUserClaimsInIDToken {
			idClaims = req.IdentityClaims
		}
		issued.IdentityToken, err = i.creator.CreateIDToken(jwt.IdentityTokenParams{
			ClientID:    client.ID,
			Subject:     result.Subject,
			AMR:         result.AMR,
			AuthTime:    result.AuthTime,
			Lifetime:    i.cfg.IdentityTokenLifetime,
			AccessToken: accessToken,
			Claims:      idClaims,
		})
		if err != nil {
			return nil, fmt.Errorf("[Issuer.Issue] identity token: %w", err)
		}
	}

	if result.HasSubject() && client.AllowOfflineAccess && oauthmodel.ContainsScope(result.Scopes, oauthmodel.ScopeOfflineAccess) {
		refreshLifetime := i.cfg.RefreshTokenLifetime
		if client.RefreshTokenLifetime > 0 {
			refreshLifetime = client.RefreshTokenLifetime
		}
		authTime := result.AuthTime
		if authTime.IsZero() {
			authTime = jwt.NowTimeFunc()
		}
		// The store write is the commit point; no context check follows it.
		issued.RefreshToken, err = i.refresh.Create(ctx, refresh.StoredRefreshToken{
			ClientID: client.ID,
			Subject:  result.Subject,
			AMR:      result.AMR,
			Scopes:   result.Scopes,
			Claims:   result.Claims,
			AuthTime: authTime,
		}, refreshLifetime)
		if err != nil {
			return nil, fmt.Errorf("[Issuer.Issue] refresh token: %w", err)
		}
	}

	return issued, nil
}

// Audiences returns the access token audience for the granted scopes and requested resource
// indicators. A resource indicator that does not match the granted scopes is an
// invalid_request protocol error.
func (i *Issuer) Audiences(scopes []oauthmodel.ParsedScope, indicators []string) ([]string, error) {
	audiences, err := i.catalog.RequestedAudiences(scopes, indicators)
	if err != nil {
		return nil, oauthmodel.NewError(oauthmodel.InvalidRequest, oauthmodel.DescInvalidResource).WithCause(err)
	}
	if len(audiences) == 0 {
		audiences = []string{i.cfg.Issuer + "/resources"}
	}
	return audiences, nil
}

func mergeClaims(sets ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, s := range sets {
		for k, v := range s {
			out[k] = v
		}
	}
	return out
}
