package clientauth_test

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-token-server/clientauth"
	"github.com/jrsteele09/go-token-server/clients"
	"github.com/jrsteele09/go-token-server/oauthmodel"
	"github.com/stretchr/testify/require"
)

const (
	tokenEndpoint = "https://server/connect/token"
	testSecret    = "secret"
)

type testFixture struct {
	repo          *clients.InMemoryRepo
	authenticator *clientauth.Authenticator
	assertionKey  *rsa.PrivateKey
	certA         *x509.Certificate
	certB         *x509.Certificate
	now           time.Time
}

func newCertificate(t *testing.T, cn string) *x509.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	assertionKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	certA := newCertificate(t, "mtls.a")
	certB := newCertificate(t, "mtls.b")
	now := time.Now()

	repo, err := clients.NewInMemoryRepo(
		&clients.Client{ID: "client", Enabled: true, Secrets: []clients.Secret{{Value: clients.HashSecret(testSecret)}}},
		&clients.Client{ID: "disabled", Secrets: []clients.Secret{{Value: clients.HashSecret(testSecret)}}},
		&clients.Client{ID: "rotated", Enabled: true, Secrets: []clients.Secret{
			{Value: clients.HashSecret("old"), Expiration: now.Add(-time.Hour)},
			{Value: clients.HashSecret("new")},
		}},
		&clients.Client{ID: "public", Enabled: true, PublicClient: true},
		&clients.Client{ID: "jwt.client", Enabled: true, AssertionKeys: []crypto.PublicKey{&assertionKey.PublicKey}},
		&clients.Client{ID: "mtls.a", Enabled: true, MutualTLS: clients.MutualTLS{Enabled: true, Thumbprints: []string{clientauth.Thumbprint(certA)}}},
		&clients.Client{ID: "mtls.b", Enabled: true, MutualTLS: clients.MutualTLS{Enabled: true, Thumbprints: []string{clientauth.PublicKeyHash(certB)}}},
	)
	require.NoError(t, err)

	authenticator, err := clientauth.NewAuthenticator(repo, []string{tokenEndpoint},
		clientauth.WithNowTime(func() time.Time { return now }))
	require.NoError(t, err)

	return &testFixture{
		repo:          repo,
		authenticator: authenticator,
		assertionKey:  assertionKey,
		certA:         certA,
		certB:         certB,
		now:           now,
	}
}

func (f *testFixture) assertion(t *testing.T, claims jwtlib.MapClaims) string {
	t.Helper()
	base := jwtlib.MapClaims{
		"iss": "jwt.client",
		"sub": "jwt.client",
		"aud": tokenEndpoint,
		"iat": f.now.Unix(),
		"exp": f.now.Add(time.Minute).Unix(),
		"jti": uuid.NewString(),
	}
	for k, v := range claims {
		if v == nil {
			delete(base, k)
			continue
		}
		base[k] = v
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, base).SignedString(f.assertionKey)
	require.NoError(t, err)
	return signed
}

func tokenRequest(params map[string]string) *oauthmodel.TokenRequest {
	if params == nil {
		params = map[string]string{}
	}
	params["grant_type"] = "client_credentials"
	return oauthmodel.NewTokenRequest(params, nil)
}

func assertionRequest(assertion string) *oauthmodel.TokenRequest {
	return tokenRequest(map[string]string{
		"client_assertion":      assertion,
		"client_assertion_type": oauthmodel.JWTBearerAssertionType,
	})
}

func requireInvalidClient(t *testing.T, err error, missing bool) {
	t.Helper()
	var oauthErr *oauthmodel.Error
	require.True(t, errors.As(err, &oauthErr), "expected protocol error, got %v", err)
	require.Equal(t, oauthmodel.InvalidClient, oauthErr.Code)
	require.Equal(t, missing, oauthErr.MissingCredentials)
}

func TestAuthenticator_SharedSecret(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	t.Run("body secret", func(t *testing.T) {
		res, err := f.authenticator.Authenticate(ctx, tokenRequest(map[string]string{"client_id": "client", "client_secret": testSecret}), clientauth.Evidence{})
		require.NoError(t, err)
		require.Equal(t, "client", res.Client.ID)
		require.Equal(t, clientauth.SharedSecret, res.Kind)
		require.Empty(t, res.CertificateThumbprint)
	})

	t.Run("basic header", func(t *testing.T) {
		res, err := f.authenticator.Authenticate(ctx, tokenRequest(nil), clientauth.Evidence{
			HasBasic: true, BasicClientID: "client", BasicSecret: testSecret,
		})
		require.NoError(t, err)
		require.Equal(t, clientauth.SharedSecret, res.Kind)
	})

	t.Run("basic header takes the secret over the body", func(t *testing.T) {
		_, err := f.authenticator.Authenticate(ctx, tokenRequest(map[string]string{"client_secret": testSecret}), clientauth.Evidence{
			HasBasic: true, BasicClientID: "client", BasicSecret: "wrong",
		})
		requireInvalidClient(t, err, false)
	})

	t.Run("conflicting client ids", func(t *testing.T) {
		_, err := f.authenticator.Authenticate(ctx, tokenRequest(map[string]string{"client_id": "other"}), clientauth.Evidence{
			HasBasic: true, BasicClientID: "client", BasicSecret: testSecret,
		})
		requireInvalidClient(t, err, false)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := f.authenticator.Authenticate(ctx, tokenRequest(map[string]string{"client_id": "client", "client_secret": "wrong"}), clientauth.Evidence{})
		requireInvalidClient(t, err, false)
	})

	t.Run("unknown client", func(t *testing.T) {
		_, err := f.authenticator.Authenticate(ctx, tokenRequest(map[string]string{"client_id": "nobody", "client_secret": testSecret}), clientauth.Evidence{})
		requireInvalidClient(t, err, false)
	})

	t.Run("disabled client", func(t *testing.T) {
		_, err := f.authenticator.Authenticate(ctx, tokenRequest(map[string]string{"client_id": "disabled", "client_secret": testSecret}), clientauth.Evidence{})
		requireInvalidClient(t, err, false)
	})

	t.Run("expired secret is skipped", func(t *testing.T) {
		_, err := f.authenticator.Authenticate(ctx, tokenRequest(map[string]string{"client_id": "rotated", "client_secret": "old"}), clientauth.Evidence{})
		requireInvalidClient(t, err, false)

		res, err := f.authenticator.Authenticate(ctx, tokenRequest(map[string]string{"client_id": "rotated", "client_secret": "new"}), clientauth.Evidence{})
		require.NoError(t, err)
		require.Equal(t, "rotated", res.Client.ID)
	})

	t.Run("no credentials at all", func(t *testing.T) {
		_, err := f.authenticator.Authenticate(ctx, tokenRequest(nil), clientauth.Evidence{})
		requireInvalidClient(t, err, true)
	})

	t.Run("client id without a secret", func(t *testing.T) {
		_, err := f.authenticator.Authenticate(ctx, tokenRequest(map[string]string{"client_id": "client"}), clientauth.Evidence{})
		requireInvalidClient(t, err, true)
	})

	t.Run("unknown and known ids without a secret fail alike", func(t *testing.T) {
		for _, id := range []string{"client", "nobody", "disabled"} {
			_, err := f.authenticator.Authenticate(ctx, tokenRequest(map[string]string{"client_id": id}), clientauth.Evidence{})
			requireInvalidClient(t, err, true)

			_, err = f.authenticator.Authenticate(ctx, tokenRequest(nil), clientauth.Evidence{HasBasic: true, BasicClientID: id})
			requireInvalidClient(t, err, true)
		}
	})

	t.Run("public client", func(t *testing.T) {
		res, err := f.authenticator.Authenticate(ctx, tokenRequest(map[string]string{"client_id": "public"}), clientauth.Evidence{})
		require.NoError(t, err)
		require.Equal(t, clientauth.NoCredential, res.Kind)
	})
}

func TestAuthenticator_ClientCertificate(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	t.Run("registered certificate by thumbprint", func(t *testing.T) {
		res, err := f.authenticator.Authenticate(ctx, tokenRequest(map[string]string{"client_id": "mtls.a"}), clientauth.Evidence{PeerCertificate: f.certA})
		require.NoError(t, err)
		require.Equal(t, clientauth.ClientCertificate, res.Kind)
		require.Equal(t, clientauth.ConfirmationThumbprint(f.certA), res.CertificateThumbprint)
	})

	t.Run("registered certificate by public key hash", func(t *testing.T) {
		res, err := f.authenticator.Authenticate(ctx, tokenRequest(map[string]string{"client_id": "mtls.b"}), clientauth.Evidence{PeerCertificate: f.certB})
		require.NoError(t, err)
		require.Equal(t, clientauth.ClientCertificate, res.Kind)
	})

	t.Run("certificate of another registered client", func(t *testing.T) {
		_, err := f.authenticator.Authenticate(ctx, tokenRequest(map[string]string{"client_id": "mtls.a"}), clientauth.Evidence{PeerCertificate: f.certB})
		requireInvalidClient(t, err, false)
	})

	t.Run("certificate ignored for clients without mutual tls", func(t *testing.T) {
		res, err := f.authenticator.Authenticate(ctx, tokenRequest(map[string]string{"client_id": "client", "client_secret": testSecret}), clientauth.Evidence{PeerCertificate: f.certA})
		require.NoError(t, err)
		require.Equal(t, clientauth.SharedSecret, res.Kind)
		require.Empty(t, res.CertificateThumbprint)
	})

	t.Run("mutual tls client without a certificate", func(t *testing.T) {
		_, err := f.authenticator.Authenticate(ctx, tokenRequest(map[string]string{"client_id": "mtls.a"}), clientauth.Evidence{})
		requireInvalidClient(t, err, true)
	})
}

func TestAuthenticator_ClientAssertion(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	t.Run("valid assertion", func(t *testing.T) {
		res, err := f.authenticator.Authenticate(ctx, assertionRequest(f.assertion(t, nil)), clientauth.Evidence{})
		require.NoError(t, err)
		require.Equal(t, "jwt.client", res.Client.ID)
		require.Equal(t, clientauth.ClientAssertion, res.Kind)
	})

	t.Run("replayed jti", func(t *testing.T) {
		assertion := f.assertion(t, jwtlib.MapClaims{"jti": "fixed-id"})
		_, err := f.authenticator.Authenticate(ctx, assertionRequest(assertion), clientauth.Evidence{})
		require.NoError(t, err)
		_, err = f.authenticator.Authenticate(ctx, assertionRequest(assertion), clientauth.Evidence{})
		requireInvalidClient(t, err, false)
	})

	tests := []struct {
		name   string
		claims jwtlib.MapClaims
	}{
		{name: "wrong audience", claims: jwtlib.MapClaims{"aud": "https://elsewhere/token"}},
		{name: "expired", claims: jwtlib.MapClaims{"exp": f.now.Add(-time.Minute).Unix()}},
		{name: "issuer differs from client", claims: jwtlib.MapClaims{"iss": "someone"}},
		{name: "missing jti", claims: jwtlib.MapClaims{"jti": nil}},
		{name: "unknown subject", claims: jwtlib.MapClaims{"iss": "ghost", "sub": "ghost"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.authenticator.Authenticate(ctx, assertionRequest(f.assertion(t, tt.claims)), clientauth.Evidence{})
			requireInvalidClient(t, err, false)
		})
	}

	t.Run("signed by another key", func(t *testing.T) {
		other, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, jwtlib.MapClaims{
			"iss": "jwt.client", "sub": "jwt.client", "aud": tokenEndpoint,
			"exp": f.now.Add(time.Minute).Unix(), "jti": uuid.NewString(),
		}).SignedString(other)
		require.NoError(t, err)
		_, err = f.authenticator.Authenticate(ctx, assertionRequest(signed), clientauth.Evidence{})
		requireInvalidClient(t, err, false)
	})

	t.Run("client without assertion keys", func(t *testing.T) {
		signed := f.assertion(t, jwtlib.MapClaims{"iss": "client", "sub": "client"})
		_, err := f.authenticator.Authenticate(ctx, assertionRequest(signed), clientauth.Evidence{})
		requireInvalidClient(t, err, false)
	})

	t.Run("unsupported assertion type", func(t *testing.T) {
		req := tokenRequest(map[string]string{
			"client_assertion":      f.assertion(t, nil),
			"client_assertion_type": "urn:example:saml",
		})
		_, err := f.authenticator.Authenticate(ctx, req, clientauth.Evidence{})
		requireInvalidClient(t, err, false)
	})

	t.Run("body client id must match the assertion", func(t *testing.T) {
		req := tokenRequest(map[string]string{
			"client_id":             "client",
			"client_assertion":      f.assertion(t, nil),
			"client_assertion_type": oauthmodel.JWTBearerAssertionType,
		})
		_, err := f.authenticator.Authenticate(ctx, req, clientauth.Evidence{})
		requireInvalidClient(t, err, false)
	})
}

type failingRepo struct{}

func (failingRepo) Get(context.Context, string) (*clients.Client, error) {
	return nil, errors.New("catalog offline")
}

func (failingRepo) List(context.Context) ([]*clients.Client, error) {
	return nil, errors.New("catalog offline")
}

func TestAuthenticator_CatalogFailure(t *testing.T) {
	a, err := clientauth.NewAuthenticator(failingRepo{}, nil)
	require.NoError(t, err)

	_, err = a.Authenticate(context.Background(), tokenRequest(map[string]string{"client_id": "client", "client_secret": testSecret}), clientauth.Evidence{})
	var oauthErr *oauthmodel.Error
	require.True(t, errors.As(err, &oauthErr))
	require.Equal(t, oauthmodel.ServerError, oauthErr.Code)
}

func TestReplayCache(t *testing.T) {
	now := time.Now()
	cache := clientauth.NewInMemoryReplayCache(func() time.Time { return now })

	require.True(t, cache.Add("a", now.Add(time.Minute)))
	require.False(t, cache.Add("a", now.Add(time.Minute)))

	now = now.Add(2 * time.Minute)
	require.True(t, cache.Add("a", now.Add(time.Minute)))

	require.True(t, cache.Add("b", now.Add(-time.Second)))
	cache.Cleanup()
	require.True(t, cache.Add("b", now.Add(time.Minute)))
}
