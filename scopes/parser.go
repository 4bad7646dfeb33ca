package scopes

import (
	"fmt"
	"strings"

	"github.com/jrsteele09/go-token-server/clients"
	"github.com/jrsteele09/go-token-server/oauthmodel"
	"github.com/jrsteele09/go-token-server/resources"
)

// Options tune parsing for the grant being processed.
type Options struct {
	// RequireScope fails the request when no scope results from parsing.
	RequireScope bool
	// UseDefaults grants the client's allowed scopes when none are requested.
	UseDefaults bool
	// APIScopesOnly limits the defaults to the client's API scopes, leaving out identity
	// scopes and offline_access. Explicitly requested scopes are not filtered.
	APIScopesOnly bool
}

// Parser turns the raw scope parameter into validated scopes.
// Errors are *oauthmodel.Error values with the invalid_scope code.
type Parser interface {
	Parse(raw string, client *clients.Client, opts Options) ([]oauthmodel.ParsedScope, error)
}

var (
	_ Parser = (*DefaultParser)(nil)
	_ Parser = (*ResourceParser)(nil)
)

// DefaultParser treats every token as a flat scope name.
type DefaultParser struct {
	catalog *resources.Catalog
}

func NewDefaultParser(catalog *resources.Catalog) *DefaultParser {
	return &DefaultParser{catalog: catalog}
}

func (p *DefaultParser) Parse(raw string, client *clients.Client, opts Options) ([]oauthmodel.ParsedScope, error) {
	return parse(raw, client, opts, func(token string) (oauthmodel.ParsedScope, error) {
		return oauthmodel.ParsedScope{Name: token, Raw: token}, nil
	}, p.catalog)
}

// ResourceParser accepts resource qualified scopes of the form <resource><Separator><scope>.
// The scope name is validated as usual and the qualifier must name an API resource that
// owns the scope. Tokens without the separator are flat scopes.
type ResourceParser struct {
	Separator string
	catalog   *resources.Catalog
}

// DefaultSeparator splits the resource qualifier from the scope name.
const DefaultSeparator = "/"

func NewResourceParser(catalog *resources.Catalog, separator string) *ResourceParser {
	if separator == "" {
		separator = DefaultSeparator
	}
	return &ResourceParser{Separator: separator, catalog: catalog}
}

func (p *ResourceParser) Parse(raw string, client *clients.Client, opts Options) ([]oauthmodel.ParsedScope, error) {
	return parse(raw, client, opts, p.split, p.catalog)
}

// split cuts at the last separator so resource names may contain it.
func (p *ResourceParser) split(token string) (oauthmodel.ParsedScope, error) {
	idx := strings.LastIndex(token, p.Separator)
	if idx < 0 {
		return oauthmodel.ParsedScope{Name: token, Raw: token}, nil
	}
	resource, name := token[:idx], token[idx+len(p.Separator):]
	if resource == "" || name == "" {
		return oauthmodel.ParsedScope{}, fmt.Errorf("malformed scope %q", token)
	}
	api, ok := p.catalog.APIResource(resource)
	if !ok {
		return oauthmodel.ParsedScope{}, fmt.Errorf("unknown resource %q", resource)
	}
	if !api.HasScope(name) {
		return oauthmodel.ParsedScope{}, fmt.Errorf("resource %q does not own scope %q", resource, name)
	}
	return oauthmodel.ParsedScope{Name: name, Resource: resource, Raw: token}, nil
}

func parse(raw string, client *clients.Client, opts Options, split func(string) (oauthmodel.ParsedScope, error), catalog *resources.Catalog) ([]oauthmodel.ParsedScope, error) {
	tokens := strings.Fields(raw)
	if len(tokens) == 0 && opts.UseDefaults {
		tokens = defaultScopes(client, opts, catalog)
	}

	parsed := make([]oauthmodel.ParsedScope, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}

		scope, err := split(token)
		if err != nil {
			return nil, invalidScope(err)
		}
		if !client.HasScope(scope.Name) {
			return nil, invalidScope(fmt.Errorf("scope %q not allowed for client %s", scope.Name, client.ID))
		}
		if catalog != nil && !catalog.IsKnownScope(scope.Name) {
			return nil, invalidScope(fmt.Errorf("scope %q is not defined", scope.Name))
		}
		parsed = append(parsed, scope)
	}

	if len(parsed) == 0 && opts.RequireScope {
		return nil, invalidScope(fmt.Errorf("no scope requested"))
	}
	return parsed, nil
}

// defaultScopes returns the scopes granted when the request names none.
func defaultScopes(client *clients.Client, opts Options, catalog *resources.Catalog) []string {
	if !opts.APIScopesOnly {
		return append([]string(nil), client.AllowedScopes...)
	}
	out := make([]string, 0, len(client.AllowedScopes))
	for _, name := range client.AllowedScopes {
		if catalog != nil && catalog.IsAPIScope(name) {
			out = append(out, name)
		}
	}
	return out
}

func invalidScope(cause error) *oauthmodel.Error {
	return oauthmodel.NewError(oauthmodel.InvalidScope, oauthmodel.DescInvalidScope).WithCause(cause)
}
