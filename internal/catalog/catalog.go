package catalog

import (
	"bytes"
	"crypto"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-token-server/clients"
	"github.com/jrsteele09/go-token-server/resources"
	"github.com/jrsteele09/go-token-server/users"
	"gopkg.in/yaml.v3"
)

// Catalog is the loaded registration data the token server runs with.
type Catalog struct {
	Resources *resources.Catalog
	Clients   *clients.InMemoryRepo
	Users     *users.InMemoryStore
}

type document struct {
	StandardIdentityResources bool                         `yaml:"standardIdentityResources"`
	IdentityResources         []resources.IdentityResource `yaml:"identityResources"`
	APIScopes                 []resources.APIScope         `yaml:"apiScopes"`
	APIResources              []resources.APIResource      `yaml:"apiResources"`
	Clients                   []clientDocument             `yaml:"clients"`
	Users                     []userDocument               `yaml:"users"`
}

type secretDocument struct {
	Secret     string    `yaml:"secret"` // Plain text, hashed at load
	Hash       string    `yaml:"hash"`   // Already hashed with clients.HashSecret
	Expiration time.Time `yaml:"expiration"`
}

type clientDocument struct {
	ID                               string            `yaml:"id"`
	Description                      string            `yaml:"description"`
	Disabled                         bool              `yaml:"disabled"`
	Public                           bool              `yaml:"public"`
	Secrets                          []secretDocument  `yaml:"secrets"`
	AssertionKeys                    []string          `yaml:"assertionKeys"` // PEM encoded public keys
	MutualTLS                        clients.MutualTLS `yaml:"mutualTls"`
	GrantTypes                       []string          `yaml:"grantTypes"`
	Scopes                           []string          `yaml:"scopes"`
	AllowOfflineAccess               bool              `yaml:"allowOfflineAccess"`
	AlwaysIncludeUserClaimsInIDToken bool              `yaml:"alwaysIncludeUserClaimsInIdToken"`
	AccessTokenLifetime              time.Duration     `yaml:"accessTokenLifetime"`
	RefreshTokenLifetime             time.Duration     `yaml:"refreshTokenLifetime"`
	Claims                           map[string]string `yaml:"claims"`
}

type userDocument struct {
	ID           string         `yaml:"id"`
	Username     string         `yaml:"username"`
	Password     string         `yaml:"password"` // Plain text, hashed at load
	PasswordHash string         `yaml:"passwordHash"`
	Disabled     bool           `yaml:"disabled"`
	Claims       map[string]any `yaml:"claims"`
}

// LoadFile reads a YAML catalog from disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("[catalog.LoadFile] read %q: %w", path, err)
	}
	cat, err := Load(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("[catalog.LoadFile] %s: %w", path, err)
	}
	return cat, nil
}

// Load decodes a YAML catalog. Unknown fields are rejected.
func Load(r io.Reader) (*Catalog, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	identity := doc.IdentityResources
	if doc.StandardIdentityResources {
		identity = append(resources.StandardIdentityResources(), identity...)
	}
	resourceCatalog, err := resources.NewCatalog(identity, doc.APIScopes, doc.APIResources)
	if err != nil {
		return nil, err
	}

	clientList := make([]*clients.Client, 0, len(doc.Clients))
	for i := range doc.Clients {
		client, err := doc.Clients[i].toClient()
		if err != nil {
			return nil, err
		}
		clientList = append(clientList, client)
	}
	clientRepo, err := clients.NewInMemoryRepo(clientList...)
	if err != nil {
		return nil, err
	}

	userList := make([]*users.User, 0, len(doc.Users))
	for i := range doc.Users {
		user, err := doc.Users[i].toUser()
		if err != nil {
			return nil, err
		}
		userList = append(userList, user)
	}
	userStore, err := users.NewInMemoryStore(userList...)
	if err != nil {
		return nil, err
	}

	return &Catalog{Resources: resourceCatalog, Clients: clientRepo, Users: userStore}, nil
}

func (d *clientDocument) toClient() (*clients.Client, error) {
	if strings.TrimSpace(d.ID) == "" {
		return nil, fmt.Errorf("client without id")
	}
	client := &clients.Client{
		ID:                               d.ID,
		Description:                      d.Description,
		Enabled:                          !d.Disabled,
		PublicClient:                     d.Public,
		MutualTLS:                        d.MutualTLS,
		AllowedGrantTypes:                d.GrantTypes,
		AllowedScopes:                    d.Scopes,
		AllowOfflineAccess:               d.AllowOfflineAccess,
		AlwaysIncludeUserClaimsInIDToken: d.AlwaysIncludeUserClaimsInIDToken,
		AccessTokenLifetime:              d.AccessTokenLifetime,
		RefreshTokenLifetime:             d.RefreshTokenLifetime,
		Claims:                           d.Claims,
	}
	for i, s := range d.Secrets {
		switch {
		case s.Hash != "" && s.Secret != "":
			return nil, fmt.Errorf("client %q secret %d sets both secret and hash", d.ID, i)
		case s.Hash != "":
			client.Secrets = append(client.Secrets, clients.Secret{Value: s.Hash, Expiration: s.Expiration})
		case s.Secret != "":
			client.Secrets = append(client.Secrets, clients.Secret{Value: clients.HashSecret(s.Secret), Expiration: s.Expiration})
		default:
			return nil, fmt.Errorf("client %q secret %d is empty", d.ID, i)
		}
	}
	for i, keyPEM := range d.AssertionKeys {
		key, err := parsePublicKey([]byte(keyPEM))
		if err != nil {
			return nil, fmt.Errorf("client %q assertion key %d: %w", d.ID, i, err)
		}
		client.AssertionKeys = append(client.AssertionKeys, key)
	}
	return client, nil
}

func (d *userDocument) toUser() (*users.User, error) {
	if d.ID == "" || d.Username == "" {
		return nil, fmt.Errorf("user requires id and username")
	}
	hash := d.PasswordHash
	if d.Password != "" {
		if hash != "" {
			return nil, fmt.Errorf("user %q sets both password and passwordHash", d.Username)
		}
		var err error
		if hash, err = users.HashPassword(d.Password); err != nil {
			return nil, fmt.Errorf("hash password of user %q: %w", d.Username, err)
		}
	}
	return &users.User{
		ID:           d.ID,
		Username:     d.Username,
		PasswordHash: hash,
		Disabled:     d.Disabled,
		Claims:       d.Claims,
	}, nil
}

func parsePublicKey(keyPEM []byte) (crypto.PublicKey, error) {
	if key, err := jwtlib.ParseRSAPublicKeyFromPEM(keyPEM); err == nil {
		return key, nil
	}
	if key, err := jwtlib.ParseECPublicKeyFromPEM(keyPEM); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("expected an RSA or ECDSA public key in PEM format")
}
