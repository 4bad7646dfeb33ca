package clientauth

import (
	"context"
	"crypto/subtle"
	"crypto/x509"
	"fmt"
	"slices"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-token-server/clients"
	autherrors "github.com/jrsteele09/go-token-server/internal/errors"
	"github.com/jrsteele09/go-token-server/oauthmodel"
)

// CredentialKind is the kind of credential a client authenticated with.
type CredentialKind string

const (
	SharedSecret      CredentialKind = "shared_secret"
	ClientAssertion   CredentialKind = "client_assertion"
	ClientCertificate CredentialKind = "client_certificate"
	NoCredential      CredentialKind = "none" // Public clients
)

// SupportedAssertionAlgorithms are the JWS algorithms accepted for client assertions.
var SupportedAssertionAlgorithms = []string{oidc.RS256, oidc.PS256, oidc.ES256}

// dummySecretHash is compared against for unknown clients.
var dummySecretHash = clients.HashSecret("unknown-client")

// Evidence is what the transport knows about the caller beyond the form body.
type Evidence struct {
	// PeerCertificate is the client certificate already verified by the TLS layer.
	PeerCertificate *x509.Certificate
	// HasBasic is set when an Authorization: Basic header was sent.
	HasBasic      bool
	BasicClientID string
	BasicSecret   string
}

// Result is an authenticated client.
type Result struct {
	Client *clients.Client
	Kind   CredentialKind
	// CertificateThumbprint is the x5t#S256 value for certificate-authenticated clients.
	CertificateThumbprint string
}

// Authenticator validates the caller's client credentials.
type Authenticator struct {
	clients            clients.Repo
	assertionAudiences []string
	replay             ReplayCache
	nowTime            func() time.Time
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(a *Authenticator) {
		a.nowTime = nowFunc
	}
}

// WithReplayCache replaces the in-memory assertion replay cache.
func WithReplayCache(cache ReplayCache) Option {
	return func(a *Authenticator) {
		a.replay = cache
	}
}

// NewAuthenticator creates an authenticator. assertionAudiences are the aud values accepted
// in client assertions, normally the token endpoint URL and the issuer.
func NewAuthenticator(repo clients.Repo, assertionAudiences []string, options ...Option) (*Authenticator, error) {
	if repo == nil {
		return nil, fmt.Errorf("[NewAuthenticator] clients repo is required")
	}
	a := &Authenticator{
		clients:            repo,
		assertionAudiences: assertionAudiences,
		nowTime:            time.Now,
	}
	for _, opt := range options {
		opt(a)
	}
	if a.replay == nil {
		a.replay = NewInMemoryReplayCache(a.nowTime)
	}
	return a, nil
}

// Authenticate determines the credential kind and validates it. Every authentication
// failure is an invalid_client *oauthmodel.Error; catalog failures are server_error.
func (a *Authenticator) Authenticate(ctx context.Context, req *oauthmodel.TokenRequest, ev Evidence) (*Result, error) {
	clientID, err := a.resolveClientID(req, ev)
	if err != nil {
		return nil, err
	}

	secret := req.ClientSecret
	if ev.HasBasic {
		secret = ev.BasicSecret
	}
	hasAssertion := req.ClientAssertion != ""
	// Decided before the lookup so unknown and known ids fail alike.
	missing := secret == "" && !hasAssertion && ev.PeerCertificate == nil
	if clientID == "" {
		return nil, invalidClient(missing, fmt.Errorf("no client id"))
	}

	client, err := a.clients.Get(ctx, clientID)
	if autherrors.Is(err, autherrors.ErrNotFound) {
		subtle.ConstantTimeCompare([]byte(clients.HashSecret(secret)), []byte(dummySecretHash))
		return nil, invalidClient(missing, err)
	}
	if err != nil {
		return nil, oauthmodel.NewError(oauthmodel.ServerError, oauthmodel.DescServerError).WithCause(err)
	}
	if !client.Enabled {
		return nil, invalidClient(missing, autherrors.ErrClientDisabled)
	}

	switch {
	case ev.PeerCertificate != nil && client.RequiresMutualTLS():
		if !matchesThumbprint(ev.PeerCertificate, client.MutualTLS.Thumbprints) {
			return nil, invalidClient(false, fmt.Errorf("certificate not registered for client %s", client.ID))
		}
		return &Result{
			Client:                client,
			Kind:                  ClientCertificate,
			CertificateThumbprint: ConfirmationThumbprint(ev.PeerCertificate),
		}, nil

	case hasAssertion:
		if err := a.verifyAssertion(ctx, client, req); err != nil {
			return nil, invalidClient(false, err)
		}
		return &Result{Client: client, Kind: ClientAssertion}, nil

	case secret != "":
		if !a.secretMatches(client, secret) {
			return nil, invalidClient(false, fmt.Errorf("secret mismatch for client %s", client.ID))
		}
		return &Result{Client: client, Kind: SharedSecret}, nil

	case client.PublicClient:
		return &Result{Client: client, Kind: NoCredential}, nil
	}

	return nil, invalidClient(true, fmt.Errorf("no credentials for client %s", client.ID))
}

// resolveClientID picks the client id from the Basic header, the body or the assertion
// subject. Conflicting ids are rejected.
func (a *Authenticator) resolveClientID(req *oauthmodel.TokenRequest, ev Evidence) (string, error) {
	ids := make([]string, 0, 3)
	if ev.HasBasic {
		ids = append(ids, ev.BasicClientID)
	}
	if req.ClientID != "" {
		ids = append(ids, req.ClientID)
	}
	if req.ClientAssertion != "" {
		if req.ClientAssertionType != oauthmodel.JWTBearerAssertionType {
			return "", invalidClient(false, fmt.Errorf("unsupported client_assertion_type %q", req.ClientAssertionType))
		}
		sub, err := assertionSubject(req.ClientAssertion)
		if err != nil {
			return "", invalidClient(false, err)
		}
		ids = append(ids, sub)
	}
	if len(ids) == 0 {
		return "", nil
	}
	for _, id := range ids[1:] {
		if id != ids[0] {
			return "", invalidClient(false, fmt.Errorf("conflicting client ids"))
		}
	}
	return ids[0], nil
}

func (a *Authenticator) secretMatches(client *clients.Client, secret string) bool {
	presented := []byte(clients.HashSecret(secret))
	now := a.nowTime()
	matched := 0
	for _, s := range client.Secrets {
		if s.Expired(now) {
			continue
		}
		matched |= subtle.ConstantTimeCompare(presented, []byte(s.Value))
	}
	return matched == 1
}

// verifyAssertion checks a private_key_jwt assertion: signature against the client's keys,
// iss and sub equal to the client id, an accepted audience, expiry and a fresh jti.
func (a *Authenticator) verifyAssertion(ctx context.Context, client *clients.Client, req *oauthmodel.TokenRequest) error {
	if !client.AcceptsAssertions() {
		return fmt.Errorf("client %s has no assertion keys", client.ID)
	}
	verifier := oidc.NewVerifier(client.ID, &oidc.StaticKeySet{PublicKeys: client.AssertionKeys}, &oidc.Config{
		SkipClientIDCheck:    true,
		SupportedSigningAlgs: SupportedAssertionAlgorithms,
		Now:                  a.nowTime,
	})
	token, err := verifier.Verify(ctx, req.ClientAssertion)
	if err != nil {
		return fmt.Errorf("verify client assertion: %w", err)
	}
	if token.Subject != client.ID {
		return fmt.Errorf("assertion subject %q does not match client", token.Subject)
	}
	if !slices.ContainsFunc(token.Audience, func(aud string) bool {
		return slices.Contains(a.assertionAudiences, aud)
	}) {
		return fmt.Errorf("assertion audience %v not accepted", token.Audience)
	}

	var claims struct {
		JTI string `json:"jti"`
	}
	if err := token.Claims(&claims); err != nil {
		return fmt.Errorf("read assertion claims: %w", err)
	}
	if claims.JTI == "" {
		return fmt.Errorf("assertion has no jti")
	}
	if !a.replay.Add(client.ID+"|"+claims.JTI, token.Expiry) {
		return autherrors.ErrAssertionReplayed
	}
	return nil
}

// assertionSubject reads the sub claim without verifying the signature. The signature is
// verified later against the keys of the client named here.
func assertionSubject(raw string) (string, error) {
	token, _, err := jwtlib.NewParser().ParseUnverified(raw, jwtlib.MapClaims{})
	if err != nil {
		return "", fmt.Errorf("parse client assertion: %w", err)
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("client assertion has no subject")
	}
	return sub, nil
}

func invalidClient(missing bool, cause error) *oauthmodel.Error {
	e := oauthmodel.NewError(oauthmodel.InvalidClient, oauthmodel.DescInvalidClient).WithCause(cause)
	e.MissingCredentials = missing
	return e
}
