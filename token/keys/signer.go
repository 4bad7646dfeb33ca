package keys

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Signer is an interface for signing and verifying JWT tokens
type Signer interface {
	// Sign creates a signed JWT token from claims
	Sign(claims jwt.MapClaims) (string, error)

	// GetVerificationKey returns the key that verifies tokens signed by this signer
	GetVerificationKey(token *jwt.Token) (any, error)

	// GetSigningMethod returns the JWT signing method used
	GetSigningMethod() jwt.SigningMethod

	// KeyID returns the kid header value, empty for symmetric keys
	KeyID() string
}

// HMACSigner implements Signer using symmetric HMAC-SHA256
type HMACSigner struct {
	secret []byte
}

// NewHMACSigner creates a new HMAC signer with the given secret
func NewHMACSigner(secret string) *HMACSigner {
	return &HMACSigner{
		secret: []byte(secret),
	}
}

func (h *HMACSigner) Sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(h.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token with HMAC: %w", err)
	}
	return signedToken, nil
}

func (h *HMACSigner) GetVerificationKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return h.secret, nil
}

func (h *HMACSigner) GetSigningMethod() jwt.SigningMethod {
	return jwt.SigningMethodHS256
}

func (h *HMACSigner) KeyID() string {
	return ""
}

// KeyPairSigner implements Signer using RSA or ECDSA
type KeyPairSigner struct {
	keyPair *KeyPair
}

// NewKeyPairSigner creates a new key pair signer with the given key pair
func NewKeyPairSigner(keyPair *KeyPair) *KeyPairSigner {
	return &KeyPairSigner{
		keyPair: keyPair,
	}
}

func (a *KeyPairSigner) Sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(a.keyPair.GetSigningMethod(), claims)
	token.Header["kid"] = a.keyPair.KeyID

	signedToken, err := token.SignedString(a.keyPair.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token with asymmetric key: %w", err)
	}
	return signedToken, nil
}

func (a *KeyPairSigner) GetVerificationKey(token *jwt.Token) (any, error) {
	if token.Method.Alg() != a.keyPair.Algorithm {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return a.keyPair.PublicKey, nil
}

func (a *KeyPairSigner) GetSigningMethod() jwt.SigningMethod {
	return a.keyPair.GetSigningMethod()
}

func (a *KeyPairSigner) KeyID() string {
	return a.keyPair.KeyID
}

// JWK returns the public key in JWK format
func (a *KeyPairSigner) JWK() (*JWK, error) {
	return a.keyPair.ToJWK()
}
