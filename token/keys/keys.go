package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"math/big"

	"github.com/golang-jwt/jwt/v5"
	autherrors "github.com/jrsteele09/go-token-server/internal/errors"
)

// JWT algorithms (string values used in JWKs and headers)
const (
	RS256 = "RS256"
	PS256 = "PS256"
	ES256 = "ES256"
	HS256 = "HS256"
)

// KeyPair represents a public/private key pair for signing tokens
type KeyPair struct {
	KeyID      string
	PrivateKey crypto.PrivateKey
	PublicKey  crypto.PublicKey
	Algorithm  string // RS256, PS256, ES256
}

// JWKS represents a JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key
type JWK struct {
	Kty string `json:"kty"`           // Key type (RSA, EC)
	Use string `json:"use,omitempty"` // sig or enc
	Kid string `json:"kid,omitempty"` // Key ID
	Alg string `json:"alg,omitempty"` // Algorithm
	N   string `json:"n,omitempty"`   // Modulus
	E   string `json:"e,omitempty"`   // Exponent
	Crv string `json:"crv,omitempty"` // Curve
	X   string `json:"x,omitempty"`   // EC X coordinate
	Y   string `json:"y,omitempty"`   // EC Y coordinate
}

// GenerateRSAKeyPair generates a new RSA key pair for RS256 or PS256 signing
func GenerateRSAKeyPair(keyID, algorithm string, bits int) (*KeyPair, error) {
	if algorithm != RS256 && algorithm != PS256 {
		return nil, autherrors.Wrapf(autherrors.ErrUnsupportedAlgorithm, "[GenerateRSAKeyPair] %s", algorithm)
	}
	if bits < 2048 {
		bits = 2048
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	return &KeyPair{
		KeyID:      keyID,
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
		Algorithm:  algorithm,
	}, nil
}

// GenerateECDSAKeyPair generates a new P-256 key pair for ES256 signing
func GenerateECDSAKeyPair(keyID string) (*KeyPair, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ECDSA key: %w", err)
	}
	return &KeyPair{
		KeyID:      keyID,
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
		Algorithm:  ES256,
	}, nil
}

// GenerateKeyPair generates a key pair for the algorithm
func GenerateKeyPair(keyID, algorithm string) (*KeyPair, error) {
	switch algorithm {
	case RS256, PS256:
		return GenerateRSAKeyPair(keyID, algorithm, 2048)
	case ES256:
		return GenerateECDSAKeyPair(keyID)
	}
	return nil, autherrors.Wrapf(autherrors.ErrUnsupportedAlgorithm, "[GenerateKeyPair] %s", algorithm)
}

// GetSigningMethod returns the JWT signing method for this key pair
func (kp *KeyPair) GetSigningMethod() jwt.SigningMethod {
	return jwt.GetSigningMethod(kp.Algorithm)
}

// ExportPublicKeyPEM exports the public key as PEM
func (kp *KeyPair) ExportPublicKeyPEM() (string, error) {
	pubKeyBytes, err := x509.MarshalPKIXPublicKey(kp.PublicKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}

	pubKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubKeyBytes,
	})

	return string(pubKeyPEM), nil
}

// ExportPrivateKeyPEM exports the private key as PKCS8 PEM
func (kp *KeyPair) ExportPrivateKeyPEM() (string, error) {
	privateKeyBytes, err := x509.MarshalPKCS8PrivateKey(kp.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal private key: %w", err)
	}
	privateKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: privateKeyBytes,
	})

	return string(privateKeyPEM), nil
}

// ToJWK converts the key pair's public key to JWK format
func (kp *KeyPair) ToJWK() (*JWK, error) {
	jwk := &JWK{
		Kid: kp.KeyID,
		Use: "sig",
		Alg: kp.Algorithm,
	}

	switch pubKey := kp.PublicKey.(type) {
	case *rsa.PublicKey:
		jwk.Kty = "RSA"
		jwk.N = base64.RawURLEncoding.EncodeToString(pubKey.N.Bytes())
		jwk.E = base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pubKey.E)).Bytes())

	case *ecdsa.PublicKey:
		jwk.Kty = "EC"
		jwk.Crv = pubKey.Curve.Params().Name
		size := (pubKey.Curve.Params().BitSize + 7) / 8
		jwk.X = base64.RawURLEncoding.EncodeToString(pubKey.X.FillBytes(make([]byte, size)))
		jwk.Y = base64.RawURLEncoding.EncodeToString(pubKey.Y.FillBytes(make([]byte, size)))

	default:
		return nil, fmt.Errorf("unsupported public key type")
	}

	return jwk, nil
}

// LoadKeyPairFromPEM loads a key pair from a PEM encoded private key (PKCS1, PKCS8 or SEC1)
func LoadKeyPairFromPEM(keyID, algorithm, privateKeyPEM string) (*KeyPair, error) {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	var privateKey crypto.PrivateKey
	var err error
	switch block.Type {
	case "RSA PRIVATE KEY":
		privateKey, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		privateKey, err = x509.ParseECPrivateKey(block.Bytes)
	default:
		privateKey, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	kp := &KeyPair{KeyID: keyID, PrivateKey: privateKey, Algorithm: algorithm}
	switch k := privateKey.(type) {
	case *rsa.PrivateKey:
		if algorithm != RS256 && algorithm != PS256 {
			return nil, autherrors.Wrapf(autherrors.ErrUnsupportedAlgorithm, "[LoadKeyPairFromPEM] RSA key with %s", algorithm)
		}
		kp.PublicKey = &k.PublicKey
	case *ecdsa.PrivateKey:
		if algorithm != ES256 {
			return nil, autherrors.Wrapf(autherrors.ErrUnsupportedAlgorithm, "[LoadKeyPairFromPEM] EC key with %s", algorithm)
		}
		kp.PublicKey = &k.PublicKey
	default:
		return nil, fmt.Errorf("unsupported private key type %T", privateKey)
	}
	return kp, nil
}
