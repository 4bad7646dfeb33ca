package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. TOKENSERVER_LISTEN.
const EnvPrefix = "TOKENSERVER"

type Config interface {
	EnvConfig
	CorsConfig
	OAuthConfig
	SecurityConfig
}

type EnvConfig interface {
	GetListenAddress() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetCatalogFile() string
	GetDatabaseURL() string
	GetConfigFile() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	OAuth
	Security
}

// New creates a configuration backed by v. Defaults are registered on v and
// environment variables with the TOKENSERVER_ prefix override them.
func New(v *viper.Viper) Config {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return mainConfig{
		EnvVars:  EnvVars{v: v},
		Cors:     Cors{v: v},
		OAuth:    OAuth{v: v},
		Security: Security{v: v},
	}
}

// Load creates a configuration and reads the optional config file at path.
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	cfg := New(v)
	if path = strings.TrimSpace(path); path == "" {
		return cfg, nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("[config.Load] read config file %q: %w", path, err)
	}
	return cfg, nil
}

// BindFlags binds every flag in fs to the key of the same name.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var bindErr error
	fs.VisitAll(func(flag *pflag.Flag) {
		if bindErr != nil {
			return
		}
		if err := v.BindPFlag(flag.Name, flag); err != nil {
			bindErr = fmt.Errorf("[config.BindFlags] bind flag %q: %w", flag.Name, err)
		}
	})
	return bindErr
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyListen, defaultListen)
	v.SetDefault(KeyAppName, defaultAppName)
	v.SetDefault(KeyEnv, defaultEnv)
	v.SetDefault(KeyLogLevel, defaultLogLevel)
	v.SetDefault(KeyCatalog, defaultCatalog)

	v.SetDefault(KeyIssuer, defaultIssuer)
	v.SetDefault(KeySigningAlgorithm, defaultSigningAlgorithm)
	v.SetDefault(KeyAccessTokenLifetime, defaultAccessTokenLifetime)
	v.SetDefault(KeyIdentityTokenLifetime, defaultIdentityTokenLifetime)
	v.SetDefault(KeyRefreshTokenLifetime, defaultRefreshTokenLifetime)
	v.SetDefault(KeyRefreshTokenLength, defaultRefreshTokenLength)

	v.SetDefault(KeyReadHeaderTimeout, defaultReadHeaderTimeout)
	v.SetDefault(KeyShutdownTimeout, defaultShutdownTimeout)

	v.SetDefault(KeyCorsMethods, defaultCorsMethods)
	v.SetDefault(KeyCorsHeaders, defaultCorsHeaders)
}
