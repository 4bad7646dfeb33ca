package resources

import (
	"fmt"
	"slices"

	autherrors "github.com/jrsteele09/go-token-server/internal/errors"
	"github.com/jrsteele09/go-token-server/oauthmodel"
)

// Catalog resolves scope names to identity resources, API scopes and API resources.
// It is built once and never modified, so it is safe for concurrent use.
type Catalog struct {
	identity     map[string]IdentityResource
	apiScopes    map[string]APIScope
	apiResources map[string]APIResource
	resourceList []string
}

// NewCatalog builds a catalog. Scope names must be unique across identity resources and
// API scopes, and every scope referenced by an API resource must be defined.
func NewCatalog(identity []IdentityResource, scopes []APIScope, apis []APIResource) (*Catalog, error) {
	c := &Catalog{
		identity:     make(map[string]IdentityResource, len(identity)),
		apiScopes:    make(map[string]APIScope, len(scopes)),
		apiResources: make(map[string]APIResource, len(apis)),
	}
	for _, r := range identity {
		if _, ok := c.identity[r.Name]; ok {
			return nil, fmt.Errorf("[NewCatalog] duplicate identity resource %q", r.Name)
		}
		c.identity[r.Name] = r
	}
	for _, s := range scopes {
		if _, ok := c.identity[s.Name]; ok {
			return nil, fmt.Errorf("[NewCatalog] api scope %q collides with an identity resource", s.Name)
		}
		if _, ok := c.apiScopes[s.Name]; ok {
			return nil, fmt.Errorf("[NewCatalog] duplicate api scope %q", s.Name)
		}
		c.apiScopes[s.Name] = s
	}
	for _, a := range apis {
		if _, ok := c.apiResources[a.Name]; ok {
			return nil, fmt.Errorf("[NewCatalog] duplicate api resource %q", a.Name)
		}
		for _, s := range a.Scopes {
			if _, ok := c.apiScopes[s]; !ok {
				return nil, fmt.Errorf("[NewCatalog] api resource %q references unknown scope %q", a.Name, s)
			}
		}
		c.apiResources[a.Name] = a
		c.resourceList = append(c.resourceList, a.Name)
	}
	return c, nil
}

// IsIdentityScope reports whether the scope names an identity resource.
func (c *Catalog) IsIdentityScope(name string) bool {
	_, ok := c.identity[name]
	return ok
}

// IsAPIScope reports whether the scope names an API scope.
func (c *Catalog) IsAPIScope(name string) bool {
	_, ok := c.apiScopes[name]
	return ok
}

// IsKnownScope reports whether a scope is defined. offline_access is always known.
func (c *Catalog) IsKnownScope(name string) bool {
	return name == oauthmodel.ScopeOfflineAccess || c.IsIdentityScope(name) || c.IsAPIScope(name)
}

// APIResource returns an API resource by name.
func (c *Catalog) APIResource(name string) (APIResource, bool) {
	r, ok := c.apiResources[name]
	return r, ok
}

// Audiences returns the API resources covering the granted API scopes, in catalog order.
// A resource-qualified scope restricts its audience to the named resource.
func (c *Catalog) Audiences(scopes []oauthmodel.ParsedScope) []string {
	var audiences []string
	for _, name := range c.resourceList {
		res := c.apiResources[name]
		for _, s := range scopes {
			if !res.HasScope(s.Name) || (s.Resource != "" && s.Resource != name) {
				continue
			}
			audiences = append(audiences, name)
			break
		}
	}
	return audiences
}

// RequestedAudiences narrows Audiences to the requested resource indicators. Each indicator
// must name an API resource owning one of the granted scopes, otherwise the error wraps
// errors.ErrInvalidResource. With no indicators it is the same as Audiences.
func (c *Catalog) RequestedAudiences(scopes []oauthmodel.ParsedScope, requested []string) ([]string, error) {
	audiences := c.Audiences(scopes)
	if len(requested) == 0 {
		return audiences, nil
	}
	for _, name := range requested {
		if _, ok := c.apiResources[name]; !ok {
			return nil, autherrors.Wrapf(autherrors.ErrInvalidResource, "unknown resource %q", name)
		}
		if !slices.Contains(audiences, name) {
			return nil, autherrors.Wrapf(autherrors.ErrInvalidResource, "resource %q owns none of the granted scopes", name)
		}
	}
	return slices.DeleteFunc(audiences, func(name string) bool {
		return !slices.Contains(requested, name)
	}), nil
}

// IdentityClaimTypes returns the claim types of the granted identity scopes.
func (c *Catalog) IdentityClaimTypes(scopes []oauthmodel.ParsedScope) []string {
	var types []string
	for _, s := range scopes {
		if r, ok := c.identity[s.Name]; ok {
			types = appendUnique(types, r.ClaimTypes...)
		}
	}
	return types
}

// APIClaimTypes returns the claim types of the granted API scopes and the API resources
// they belong to.
func (c *Catalog) APIClaimTypes(scopes []oauthmodel.ParsedScope) []string {
	var types []string
	for _, s := range scopes {
		if sc, ok := c.apiScopes[s.Name]; ok {
			types = appendUnique(types, sc.ClaimTypes...)
		}
	}
	for _, aud := range c.Audiences(scopes) {
		types = appendUnique(types, c.apiResources[aud].ClaimTypes...)
	}
	return types
}

// ScopeNames returns every identity and API scope name, sorted.
func (c *Catalog) ScopeNames() []string {
	names := make([]string, 0, len(c.identity)+len(c.apiScopes))
	for name := range c.identity {
		names = append(names, name)
	}
	for name := range c.apiScopes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func appendUnique(list []string, values ...string) []string {
	for _, v := range values {
		if !slices.Contains(list, v) {
			list = append(list, v)
		}
	}
	return list
}
