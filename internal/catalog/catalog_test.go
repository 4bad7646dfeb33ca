package catalog_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/go-token-server/clients"
	"github.com/jrsteele09/go-token-server/internal/catalog"
	autherrors "github.com/jrsteele09/go-token-server/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestLoadSampleCatalog(t *testing.T) {
	cat, err := catalog.LoadFile(filepath.Join("..", "..", "catalog.yaml"))
	require.NoError(t, err)

	ctx := context.Background()
	ro, err := cat.Clients.Get(ctx, "roclient")
	require.NoError(t, err)
	require.True(t, ro.Enabled)
	require.True(t, ro.AllowOfflineAccess)
	require.Equal(t, 720*time.Hour, ro.RefreshTokenLifetime)
	require.Equal(t, clients.HashSecret("secret"), ro.Secrets[0].Value)

	mtls, err := cat.Clients.Get(ctx, "mtls.client")
	require.NoError(t, err)
	require.True(t, mtls.RequiresMutualTLS())

	bob, err := cat.Users.Verify(ctx, "bob", "bob")
	require.NoError(t, err)
	require.Equal(t, "88421113", bob.ID)

	require.True(t, cat.Resources.IsIdentityScope("openid"))
	require.True(t, cat.Resources.IsIdentityScope("roles"))
	require.True(t, cat.Resources.IsAPIScope("api4.with.roles"))
}

func TestLoad(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	doc := fmt.Sprintf(`
apiScopes:
  - name: api1
apiResources:
  - name: api1
    scopes: [api1]
clients:
  - id: jwt.client
    disabled: true
    grantTypes: [client_credentials]
    scopes: [api1]
    secrets:
      - hash: "%s"
        expiration: 2020-01-01T00:00:00Z
    assertionKeys:
      - |
%s
`, clients.HashSecret("old"), indent(string(keyPEM), "        "))

	cat, err := catalog.Load(strings.NewReader(doc))
	require.NoError(t, err)

	client, err := cat.Clients.Get(context.Background(), "jwt.client")
	require.NoError(t, err)
	require.False(t, client.Enabled)
	require.True(t, client.AcceptsAssertions())
	require.True(t, client.Secrets[0].Expired(time.Now()))

	_, err = cat.Users.Verify(context.Background(), "nobody", "pw")
	require.ErrorIs(t, err, autherrors.ErrInvalidCredentials)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "unknown field", doc: "clientz: []"},
		{name: "client without id", doc: "clients:\n  - description: nobody"},
		{name: "duplicate client", doc: "clients:\n  - id: a\n  - id: a"},
		{name: "secret and hash", doc: "clients:\n  - id: a\n    secrets:\n      - secret: s\n        hash: h"},
		{name: "empty secret", doc: "clients:\n  - id: a\n    secrets:\n      - expiration: 2030-01-01T00:00:00Z"},
		{name: "bad assertion key", doc: "clients:\n  - id: a\n    assertionKeys: [nope]"},
		{name: "unknown api scope", doc: "apiResources:\n  - name: api1\n    scopes: [missing]"},
		{name: "user without username", doc: "users:\n  - id: \"1\""},
		{name: "password and hash", doc: "users:\n  - id: \"1\"\n    username: u\n    password: p\n    passwordHash: h"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := catalog.Load(strings.NewReader(tt.doc))
			require.Error(t, err)
		})
	}
}

func TestLoadEmpty(t *testing.T) {
	cat, err := catalog.Load(strings.NewReader(""))
	require.NoError(t, err)
	list, err := cat.Clients.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, list)
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
