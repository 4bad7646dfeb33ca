package server_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-token-server/clientauth"
	"github.com/jrsteele09/go-token-server/clients"
	"github.com/jrsteele09/go-token-server/grants"
	"github.com/jrsteele09/go-token-server/internal/catalog"
	"github.com/jrsteele09/go-token-server/internal/config"
	"github.com/jrsteele09/go-token-server/oauthmodel"
	"github.com/jrsteele09/go-token-server/server"
	"github.com/jrsteele09/go-token-server/token/refresh"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const testCatalog = `
standardIdentityResources: true
apiScopes:
  - name: api1
apiResources:
  - name: api1
    scopes: [api1]
clients:
  - id: client
    secrets:
      - secret: secret
    grantTypes: [client_credentials]
    scopes: [api1]
  - id: roclient
    secrets:
      - secret: secret
    grantTypes: [password, refresh_token]
    scopes: [openid, email, api1]
    allowOfflineAccess: true
  - id: client.custom
    secrets:
      - secret: secret
    grantTypes: [custom]
    scopes: [api1]
  - id: mtls.client
    grantTypes: [client_credentials]
    scopes: [api1]
    mutualTls:
      enabled: true
      thumbprints: ["%s"]
users:
  - id: "88421113"
    username: bob
    password: bob
    claims:
      email: BobSmith@email.com
      email_verified: true
`

// testFixture holds a running token server
type testFixture struct {
	ts          *httptest.Server
	srv         *server.Server
	refreshRepo *refresh.InMemoryRepo
	cert        *x509.Certificate
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
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

// customGrant succeeds for bob unless asked to fail.
func customGrant(_ context.Context, req *oauthmodel.TokenRequest, _ *clients.Client) *oauthmodel.ValidationResult {
	if req.Param("outcome") == "fail" {
		return oauthmodel.Failure(oauthmodel.InvalidGrant, oauthmodel.DescInvalidCredential)
	}
	return oauthmodel.Success("88421113", "custom")
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	// The issuer must equal the server URL, so the listener is created first.
	ts := httptest.NewUnstartedServer(nil)
	issuer := "http://" + ts.Listener.Addr().String()

	v := viper.New()
	v.Set(config.KeyIssuer, issuer)
	v.Set(config.KeyEnv, "TEST")
	v.Set(config.KeyCorsOrigins, []string{"https://app.example.com"})
	cfg := config.New(v)

	cert := newCertificate(t, "mtls.client")
	cat, err := catalog.Load(strings.NewReader(fmt.Sprintf(testCatalog, clientauth.Thumbprint(cert))))
	require.NoError(t, err)

	refreshRepo := refresh.NewInMemoryRepo()
	srv, err := server.Bootstrap(cfg, cat, server.BootstrapOptions{
		RefreshRepo: refreshRepo,
		RegisterExtensions: func(r *grants.ExtensionRegistry) error {
			return r.Register("custom", grants.ExtensionValidatorFunc(customGrant),
				grants.WithRequiredParameters("custom_credential"))
		},
	})
	require.NoError(t, err)

	ts.Config.Handler = srv
	ts.Start()
	t.Cleanup(ts.Close)

	return &testFixture{ts: ts, srv: srv, refreshRepo: refreshRepo, cert: cert}
}

func (f *testFixture) passwordConfig(scopes ...string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "roclient",
		ClientSecret: "secret",
		Endpoint: oauth2.Endpoint{
			TokenURL:  f.ts.URL + server.RouteToken,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
		Scopes: scopes,
	}
}

func (f *testFixture) postToken(t *testing.T, form url.Values, setup func(*http.Request)) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, f.ts.URL+server.RouteToken, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if setup != nil {
		setup(req)
	}
	resp, err := f.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func TestPasswordGrantIdentityToken(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	tok, err := f.passwordConfig("openid", "email", "api1", "offline_access").PasswordCredentialsToken(ctx, "bob", "bob")
	require.NoError(t, err)
	require.NotEmpty(t, tok.AccessToken)
	require.Equal(t, "Bearer", tok.TokenType)
	require.NotEmpty(t, tok.RefreshToken)
	require.Equal(t, "openid email api1 offline_access", tok.Extra("scope"))

	rawIDToken, ok := tok.Extra("identity_token").(string)
	require.True(t, ok)

	keySet := oidc.NewRemoteKeySet(ctx, f.ts.URL+server.RouteWellKnownJWKS)
	idToken, err := oidc.NewVerifier(f.ts.URL, keySet, &oidc.Config{ClientID: "roclient"}).Verify(ctx, rawIDToken)
	require.NoError(t, err)
	require.Equal(t, "88421113", idToken.Subject)

	var claims struct {
		AMR []string `json:"amr"`
	}
	require.NoError(t, idToken.Claims(&claims))
	require.Equal(t, []string{"password"}, claims.AMR)
}

func TestPasswordGrantScopeShapes(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	tok, err := f.passwordConfig("api1").PasswordCredentialsToken(ctx, "bob", "bob")
	require.NoError(t, err)
	require.Nil(t, tok.Extra("identity_token"))

	tok, err = f.passwordConfig("openid", "email", "api1").PasswordCredentialsToken(ctx, "bob", "bob")
	require.NoError(t, err)
	require.NotNil(t, tok.Extra("identity_token"))
	require.Empty(t, tok.RefreshToken)

	_, err = f.passwordConfig("api1").PasswordCredentialsToken(ctx, "bob", "wrong")
	var retrieveErr *oauth2.RetrieveError
	require.ErrorAs(t, err, &retrieveErr)
	require.Equal(t, http.StatusBadRequest, retrieveErr.Response.StatusCode)
	require.Equal(t, "invalid_grant", retrieveErr.ErrorCode)
}

func TestRefreshAndUserInfo(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	cfg := f.passwordConfig("openid", "email", "api1", "offline_access")

	tok, err := cfg.PasswordCredentialsToken(ctx, "bob", "bob")
	require.NoError(t, err)
	require.Equal(t, 1, f.refreshRepo.Len())

	refreshed, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: tok.RefreshToken}).Token()
	require.NoError(t, err)
	require.NotEqual(t, tok.RefreshToken, refreshed.RefreshToken)
	require.Equal(t, 1, f.refreshRepo.Len())

	// The consumed handle is not accepted again.
	_, err = cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: tok.RefreshToken}).Token()
	require.Error(t, err)

	resp, err := cfg.Client(ctx, refreshed).Get(f.ts.URL + server.RouteUserInfo)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var userInfo map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&userInfo))
	require.Equal(t, "88421113", userInfo["sub"])
	require.Equal(t, "BobSmith@email.com", userInfo["email"])
	require.Equal(t, true, userInfo["email_verified"])
}

func TestClientCredentials(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	cc := &clientcredentials.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		TokenURL:     f.ts.URL + server.RouteToken,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	tok, err := cc.Token(ctx)
	require.NoError(t, err)
	require.Empty(t, tok.RefreshToken)
	require.Equal(t, "api1", tok.Extra("scope"))

	// Client tokens have no subject, so the userinfo endpoint refuses them.
	resp, err := cc.Client(ctx).Get(f.ts.URL + server.RouteUserInfo)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestTokenEndpointErrors(t *testing.T) {
	f := setupTestFixture(t)

	t.Run("missing credentials challenge", func(t *testing.T) {
		resp, body := f.postToken(t, url.Values{"grant_type": {"client_credentials"}}, nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, `Basic realm="token"`, resp.Header.Get("WWW-Authenticate"))
		require.Equal(t, "invalid_client", body["error"])
		require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
		require.Equal(t, "no-cache", resp.Header.Get("Pragma"))
	})

	t.Run("unknown client id without a secret looks like a known one", func(t *testing.T) {
		for _, id := range []string{"client", "no.such.client"} {
			resp, body := f.postToken(t, url.Values{"grant_type": {"client_credentials"}, "client_id": {id}}, nil)
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode, id)
			require.Equal(t, `Basic realm="token"`, resp.Header.Get("WWW-Authenticate"), id)
			require.Equal(t, "invalid_client", body["error"], id)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		resp, body := f.postToken(t, url.Values{"grant_type": {"client_credentials"}}, func(r *http.Request) {
			r.SetBasicAuth("client", "nope")
		})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Empty(t, resp.Header.Get("WWW-Authenticate"))
		require.Equal(t, "invalid_client", body["error"])
	})

	t.Run("missing grant type", func(t *testing.T) {
		resp, body := f.postToken(t, url.Values{"client_id": {"client"}, "client_secret": {"secret"}}, nil)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "invalid_request", body["error"])
	})

	t.Run("unsupported grant type", func(t *testing.T) {
		resp, body := f.postToken(t, url.Values{
			"grant_type": {"urn:example:unknown"}, "client_id": {"client"}, "client_secret": {"secret"},
		}, nil)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "unsupported_grant_type", body["error"])
	})

	t.Run("unknown resource indicator", func(t *testing.T) {
		resp, body := f.postToken(t, url.Values{
			"grant_type": {"client_credentials"}, "resource": {"api1", "urn:totally-unknown"},
		}, func(r *http.Request) {
			r.SetBasicAuth("client", "secret")
		})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "invalid_request", body["error"])
		require.Equal(t, oauthmodel.DescInvalidResource, body["error_description"])
	})

	t.Run("escaped basic credentials", func(t *testing.T) {
		resp, body := f.postToken(t, url.Values{"grant_type": {"client_credentials"}}, func(r *http.Request) {
			r.SetBasicAuth(url.QueryEscape("client"), url.QueryEscape("secret"))
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NotEmpty(t, body["access_token"])
	})
}

func TestExtensionGrant(t *testing.T) {
	f := setupTestFixture(t)
	basic := func(r *http.Request) { r.SetBasicAuth("client.custom", "secret") }

	resp, body := f.postToken(t, url.Values{
		"grant_type": {"custom"}, "custom_credential": {"custom credential"}, "scope": {"api1"},
	}, basic)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, body["access_token"])

	resp, body = f.postToken(t, url.Values{
		"grant_type": {"custom"}, "custom_credential": {"custom credential"}, "outcome": {"fail"},
	}, basic)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_grant", body["error"])
	require.Equal(t, oauthmodel.DescInvalidCredential, body["error_description"])

	resp, body = f.postToken(t, url.Values{"grant_type": {"custom"}}, basic)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_grant", body["error"])
}

func TestMutualTLSEvidence(t *testing.T) {
	f := setupTestFixture(t)

	form := url.Values{"grant_type": {"client_credentials"}, "client_id": {"mtls.client"}}
	req := httptest.NewRequest(http.MethodPost, server.RouteToken, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.TLS = &tls.ConnectionState{PeerCertificates: []*x509.Certificate{f.cert}}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	claims := jwtlib.MapClaims{}
	_, _, err := jwtlib.NewParser().ParseUnverified(body["access_token"].(string), claims)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"x5t#S256": clientauth.ConfirmationThumbprint(f.cert)}, claims["cnf"])

	// A different certificate is refused.
	req = httptest.NewRequest(http.MethodPost, server.RouteToken, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.TLS = &tls.ConnectionState{PeerCertificates: []*x509.Certificate{newCertificate(t, "intruder")}}
	rec = httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid_client")
}

func TestUserInfoRejectsBadTokens(t *testing.T) {
	f := setupTestFixture(t)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header"},
		{name: "wrong scheme", header: "Basic abc"},
		{name: "garbage token", header: "Bearer not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, f.ts.URL+server.RouteUserInfo, nil)
			require.NoError(t, err)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := f.ts.Client().Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			require.Contains(t, resp.Header.Get("WWW-Authenticate"), "Bearer")
		})
	}
}

func TestOperationalRoutes(t *testing.T) {
	f := setupTestFixture(t)

	resp, err := f.ts.Client().Get(f.ts.URL + "/.well-known/openid-configuration")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = f.ts.Client().Get(f.ts.URL + server.RouteWellKnownJWKS)
	require.NoError(t, err)
	var jwks struct {
		Keys []map[string]any `json:"keys"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&jwks))
	resp.Body.Close()
	require.Len(t, jwks.Keys, 1)
	require.Equal(t, "RSA", jwks.Keys[0]["kty"])

	resp, err = f.ts.Client().Get(f.ts.URL + server.RouteHealth)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// One failed request is enough to populate the counters.
	f.postToken(t, url.Values{"grant_type": {"client_credentials"}}, nil)
	resp, err = f.ts.Client().Get(f.ts.URL + server.RouteMetrics)
	require.NoError(t, err)
	metrics, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Contains(t, string(metrics), "tokenserver_events_total")
	require.Contains(t, string(metrics), `tokenserver_token_errors_total{error="invalid_client"} 1`)
}

func TestCors(t *testing.T) {
	f := setupTestFixture(t)

	req, err := http.NewRequest(http.MethodOptions, f.ts.URL+server.RouteToken, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	resp, err := f.ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))

	req, err = http.NewRequest(http.MethodOptions, f.ts.URL+server.RouteToken, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://evil.example.com")
	resp, err = f.ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRoutes(t *testing.T) {
	f := setupTestFixture(t)
	require.Contains(t, f.srv.Routes(), "POST "+server.RouteToken)
	require.Contains(t, f.srv.Routes(), "GET "+server.RouteMetrics)
}
