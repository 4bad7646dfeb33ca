package server

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-token-server/auth"
	"github.com/jrsteele09/go-token-server/clientauth"
	"github.com/jrsteele09/go-token-server/events"
	"github.com/jrsteele09/go-token-server/grants"
	"github.com/jrsteele09/go-token-server/internal/catalog"
	"github.com/jrsteele09/go-token-server/internal/config"
	"github.com/jrsteele09/go-token-server/oauthmodel"
	"github.com/jrsteele09/go-token-server/profile"
	"github.com/jrsteele09/go-token-server/scopes"
	"github.com/jrsteele09/go-token-server/token"
	"github.com/jrsteele09/go-token-server/token/jwt"
	"github.com/jrsteele09/go-token-server/token/keys"
	"github.com/jrsteele09/go-token-server/token/refresh"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// BootstrapOptions replaces the collaborators Bootstrap would otherwise create.
type BootstrapOptions struct {
	RefreshRepo        refresh.Repo         // Defaults to an in-memory store
	KeyPair            *keys.KeyPair        // Defaults to the configured key file or a generated key
	Registry           *prometheus.Registry // Defaults to a new registry
	RegisterExtensions func(*grants.ExtensionRegistry) error
	TokenOptions       []auth.TokenServiceOption
}

// Bootstrap assembles the token pipeline from configuration and the loaded catalog and
// returns the HTTP server exposing it.
func Bootstrap(cfg config.Config, cat *catalog.Catalog, opts BootstrapOptions) (*Server, error) {
	if cfg == nil || cat == nil {
		return nil, fmt.Errorf("[Bootstrap] config and catalog are required")
	}

	provider, err := signingKeys(cfg, opts.KeyPair)
	if err != nil {
		return nil, fmt.Errorf("[Bootstrap] signing keys: %w", err)
	}

	refreshRepo := opts.RefreshRepo
	if refreshRepo == nil {
		refreshRepo = refresh.NewInMemoryRepo()
	}
	refreshManager := refresh.NewManager(refreshRepo, cfg.GetRefreshTokenLength())

	issuer, err := token.NewIssuer(token.IssuerConfig{
		Issuer:                    cfg.GetIssuer(),
		SigningAlgorithm:          cfg.GetSigningAlgorithm(),
		AccessTokenLifetime:       cfg.GetDefaultAccessTokenExpiry(),
		IdentityTokenLifetime:     cfg.GetDefaultIDTokenExpiry(),
		RefreshTokenLifetime:      cfg.GetDefaultRefreshTokenExpiry(),
		EmitScopesAsDelimitedList: cfg.GetEmitScopesAsString(),
	}, provider, cat.Resources, refreshManager)
	if err != nil {
		return nil, fmt.Errorf("[Bootstrap] %w", err)
	}

	replay := clientauth.NewInMemoryReplayCache(nil)
	audiences := cfg.GetAssertionAudiences()
	if len(audiences) == 0 {
		audiences = []string{cfg.GetIssuer(), cfg.GetIssuer() + RouteToken}
	}
	authenticator, err := clientauth.NewAuthenticator(cat.Clients, audiences, clientauth.WithReplayCache(replay))
	if err != nil {
		return nil, fmt.Errorf("[Bootstrap] %w", err)
	}

	extensions := grants.NewExtensionRegistry()
	if opts.RegisterExtensions != nil {
		if err := opts.RegisterExtensions(extensions); err != nil {
			return nil, fmt.Errorf("[Bootstrap] register extension grants: %w", err)
		}
	}
	dispatcher, err := grants.NewDispatcher(map[oauthmodel.GrantType]grants.GrantValidator{
		oauthmodel.PasswordGrant:          grants.NewPasswordValidator(cat.Users),
		oauthmodel.ClientCredentialsGrant: grants.NewClientCredentialsValidator(cat.Resources),
		oauthmodel.RefreshTokenGrant:      grants.NewRefreshTokenValidator(refreshManager),
	}, extensions)
	if err != nil {
		return nil, fmt.Errorf("[Bootstrap] %w", err)
	}

	var scopeParser scopes.Parser = scopes.NewDefaultParser(cat.Resources)
	if sep := cfg.GetScopeSeparator(); sep != "" {
		scopeParser = scopes.NewResourceParser(cat.Resources, sep)
	}

	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	metricsSink, err := events.NewMetricsSink(registry)
	if err != nil {
		return nil, fmt.Errorf("[Bootstrap] metrics: %w", err)
	}

	augmenter := profile.NewAugmenter(profile.NewUserProfileService(cat.Users), cat.Resources)
	tokenOptions := append([]auth.TokenServiceOption{
		auth.WithEvents(events.Multi{events.NewLogSink(nil), metricsSink}),
	}, opts.TokenOptions...)
	tokens, err := auth.NewTokenService(auth.Components{
		Authenticator: authenticator,
		Dispatcher:    dispatcher,
		ScopeParser:   scopeParser,
		Augmenter:     augmenter,
		Issuer:        issuer,
	}, tokenOptions...)
	if err != nil {
		return nil, fmt.Errorf("[Bootstrap] %w", err)
	}

	grantTypes := make([]string, 0, len(dispatcher.GrantTypes()))
	for _, gt := range dispatcher.GrantTypes() {
		grantTypes = append(grantTypes, string(gt))
	}

	log.Info().Strs("grant_types", grantTypes).Strs("scopes", cat.Resources.ScopeNames()).Msg("token endpoint configured")

	s, err := New(cfg, Dependencies{
		Tokens:    tokens,
		Inspector: jwt.NewInspector(cfg.GetIssuer(), provider),
		Augmenter: augmenter,
		Keys:      provider,
		Metrics:   promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
	})
	if err != nil {
		return nil, err
	}
	s.replay = replay
	if purger, ok := refreshRepo.(refresh.Purger); ok {
		s.purger = purger
	}
	return s, nil
}

// signingKeys builds the key provider for the configured algorithm.
func signingKeys(cfg config.Config, keyPair *keys.KeyPair) (*keys.Provider, error) {
	alg := cfg.GetSigningAlgorithm()
	if keyPair == nil {
		var err error
		if path := cfg.GetSigningKeyFile(); path != "" {
			data, readErr := os.ReadFile(path)
			if readErr != nil {
				return nil, fmt.Errorf("read %q: %w", path, readErr)
			}
			keyPair, err = keys.LoadKeyPairFromPEM("signing-key-"+alg, alg, string(data))
		} else {
			log.Warn().Str("alg", alg).Msg("no signing key configured, generating an ephemeral key")
			keyPair, err = keys.GenerateKeyPair(uuid.NewString(), alg)
		}
		if err != nil {
			return nil, err
		}
	}
	return keys.NewProvider(keys.NewKeyPairSigner(keyPair))
}

// RunMaintenance drops expired assertion ids and refresh grants every interval until
// ctx is done.
func (s *Server) RunMaintenance(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.maintain(ctx, now)
		}
	}
}

func (s *Server) maintain(ctx context.Context, now time.Time) {
	if s.replay != nil {
		s.replay.Cleanup()
	}
	if s.purger == nil {
		return
	}
	removed, err := s.purger.PurgeExpired(ctx, now)
	if err != nil {
		log.Err(err).Msg("failed to purge expired refresh tokens")
		return
	}
	if removed > 0 {
		log.Debug().Int64("removed", removed).Msg("purged expired refresh tokens")
	}
}
