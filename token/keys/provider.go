package keys

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	autherrors "github.com/jrsteele09/go-token-server/internal/errors"
)

// Provider holds one signer per algorithm. It is built at startup and read-only afterwards.
type Provider struct {
	signers map[string]Signer
	order   []string
}

// NewProvider creates a provider. Registering two signers for one algorithm is an error.
func NewProvider(signers ...Signer) (*Provider, error) {
	p := &Provider{signers: make(map[string]Signer, len(signers))}
	for _, s := range signers {
		alg := s.GetSigningMethod().Alg()
		if _, ok := p.signers[alg]; ok {
			return nil, autherrors.Wrapf(autherrors.ErrDuplicate, "[NewProvider] signer for %s", alg)
		}
		p.signers[alg] = s
		p.order = append(p.order, alg)
	}
	if len(p.order) == 0 {
		return nil, fmt.Errorf("[NewProvider] at least one signer is required")
	}
	return p, nil
}

// Signer returns the signer for an algorithm
func (p *Provider) Signer(algorithm string) (Signer, error) {
	s, ok := p.signers[algorithm]
	if !ok {
		return nil, autherrors.Wrapf(autherrors.ErrNoSigningKey, "%s", algorithm)
	}
	return s, nil
}

// Algorithms returns the registered algorithms in registration order
func (p *Provider) Algorithms() []string {
	return append([]string(nil), p.order...)
}

// JWKS returns the public keys of every asymmetric signer
func (p *Provider) JWKS() (*JWKS, error) {
	set := &JWKS{Keys: []JWK{}}
	for _, alg := range p.order {
		kps, ok := p.signers[alg].(*KeyPairSigner)
		if !ok {
			continue
		}
		jwk, err := kps.JWK()
		if err != nil {
			return nil, fmt.Errorf("failed to convert key to JWK: %w", err)
		}
		set.Keys = append(set.Keys, *jwk)
	}
	return set, nil
}

// VerificationKey implements jwt.Keyfunc by selecting the signer for the token's alg header
func (p *Provider) VerificationKey(token *jwt.Token) (any, error) {
	alg, _ := token.Header["alg"].(string)
	s, ok := p.signers[alg]
	if !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	if kid, _ := token.Header["kid"].(string); kid != "" && s.KeyID() != "" && kid != s.KeyID() {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}
	return s.GetVerificationKey(token)
}
