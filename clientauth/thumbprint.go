package clientauth

import (
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// Thumbprint returns the hex encoded SHA-256 hash of the DER certificate.
func Thumbprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(sum[:])
}

// PublicKeyHash returns the base64url encoded SHA-256 hash of the subject public key info.
func PublicKeyHash(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.RawSubjectPublicKeyInfo)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// ConfirmationThumbprint returns the x5t#S256 value binding a token to the certificate (RFC 8705).
func ConfirmationThumbprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// matchesThumbprint compares the certificate against every registered value. All values
// are compared so the time taken does not depend on which one matched.
func matchesThumbprint(cert *x509.Certificate, registered []string) bool {
	hexPrint := []byte(Thumbprint(cert))
	keyHash := []byte(PublicKeyHash(cert))
	matched := 0
	for _, r := range registered {
		matched |= subtle.ConstantTimeCompare([]byte(strings.ToLower(r)), hexPrint)
		matched |= subtle.ConstantTimeCompare([]byte(r), keyHash)
	}
	return matched == 1
}
