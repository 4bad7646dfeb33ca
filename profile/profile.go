package profile

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/jrsteele09/go-token-server/oauthmodel"
	"github.com/jrsteele09/go-token-server/resources"
	"github.com/jrsteele09/go-token-server/token/jwt"
	"github.com/jrsteele09/go-token-server/users"
)

// Service returns profile claims for a subject. It may return more than was asked for;
// callers filter the result.
type Service interface {
	Claims(ctx context.Context, subject string, claimTypes []string) (map[string]any, error)
}

// Claims is the augmented claim set of a subject, split by the token it belongs in.
type Claims struct {
	Identity map[string]any // Claims of the granted identity scopes
	Access   map[string]any // Claims of the granted API scopes and resources
}

// Augmenter asks the profile service for the claims of the granted scopes and drops
// anything that was not granted.
type Augmenter struct {
	service Service
	catalog *resources.Catalog
}

func NewAugmenter(service Service, catalog *resources.Catalog) *Augmenter {
	return &Augmenter{service: service, catalog: catalog}
}

// Augment returns the subject's claims for the granted scopes. The result only depends on
// the subject, the scopes and the profile data, so calling it twice yields the same claims.
func (a *Augmenter) Augment(ctx context.Context, subject string, granted []oauthmodel.ParsedScope) (*Claims, error) {
	out := &Claims{Identity: map[string]any{}, Access: map[string]any{}}
	if subject == "" {
		return out, nil
	}

	identityTypes := allowedTypes(a.catalog.IdentityClaimTypes(granted))
	accessTypes := allowedTypes(a.catalog.APIClaimTypes(granted))
	requested := append(slices.Clone(identityTypes), accessTypes...)
	if len(requested) == 0 {
		return out, nil
	}

	claims, err := a.service.Claims(ctx, subject, requested)
	if err != nil {
		return nil, fmt.Errorf("[Augmenter.Augment] profile claims for %s: %w", subject, err)
	}
	out.Identity = filter(claims, identityTypes)
	out.Access = filter(claims, accessTypes)
	return out, nil
}

// allowedTypes drops protocol claim types; those always come from the token issuer.
func allowedTypes(types []string) []string {
	return slices.DeleteFunc(slices.Clone(types), jwt.IsProtocolClaim)
}

func filter(claims map[string]any, allowed []string) map[string]any {
	out := make(map[string]any, len(allowed))
	for _, t := range allowed {
		if v, ok := claims[t]; ok {
			out[t] = v
		}
	}
	return out
}

var _ Service = (*UserProfileService)(nil)

// UserProfileService serves profile claims from the user store.
type UserProfileService struct {
	users users.Store
}

func NewUserProfileService(store users.Store) *UserProfileService {
	return &UserProfileService{users: store}
}

func (s *UserProfileService) Claims(ctx context.Context, subject string, claimTypes []string) (map[string]any, error) {
	user, err := s.users.GetByID(ctx, subject)
	if err != nil {
		return nil, err
	}
	claims := user.ProfileClaims()
	maps.DeleteFunc(claims, func(k string, _ any) bool {
		return !slices.Contains(claimTypes, k)
	})
	return claims, nil
}
