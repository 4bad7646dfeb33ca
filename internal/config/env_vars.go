package config

import (
	"strings"

	"github.com/spf13/viper"
)

const (
	KeyListen      = "listen"
	KeyAppName     = "app-name"
	KeyEnv         = "env"
	KeyLogLevel    = "log-level"
	KeyCatalog     = "catalog"
	KeyDatabaseURL = "database-url"
	KeyConfigFile  = "config"
)

const (
	defaultListen   = ":8080"
	defaultAppName  = "Go Token Server"
	defaultEnv      = "DEV"
	defaultLogLevel = "info"
	defaultCatalog  = "./catalog.yaml"
)

type EnvVars struct {
	v *viper.Viper
}

var _ EnvConfig = EnvVars{}

// GetListenAddress returns the address the HTTP server binds to. A bare port is
// turned into ":port".
func (e EnvVars) GetListenAddress() string {
	addr := strings.TrimSpace(e.v.GetString(KeyListen))
	if addr == "" {
		return defaultListen
	}
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}
	return addr
}

func (e EnvVars) GetAppName() string {
	return e.v.GetString(KeyAppName)
}

func (e EnvVars) GetEnv() string {
	env := strings.ToUpper(strings.TrimSpace(e.v.GetString(KeyEnv)))
	if env == "" {
		return defaultEnv
	}
	return env
}

func (e EnvVars) GetLogLevel() string {
	return strings.ToLower(strings.TrimSpace(e.v.GetString(KeyLogLevel)))
}

// GetCatalogFile returns the YAML file holding clients, users and resources.
func (e EnvVars) GetCatalogFile() string {
	return e.v.GetString(KeyCatalog)
}

// GetDatabaseURL returns the postgres URL of the refresh token store. Empty keeps
// refresh tokens in memory.
func (e EnvVars) GetDatabaseURL() string {
	return strings.TrimSpace(e.v.GetString(KeyDatabaseURL))
}

// GetConfigFile returns the optional config file path.
func (e EnvVars) GetConfigFile() string {
	return strings.TrimSpace(e.v.GetString(KeyConfigFile))
}
