package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	KeyTLSCert           = "tls-cert"
	KeyTLSKey            = "tls-key"
	KeyClientCA          = "client-ca"
	KeyReadHeaderTimeout = "read-header-timeout"
	KeyShutdownTimeout   = "shutdown-timeout"
)

const (
	defaultReadHeaderTimeout = 10 * time.Second
	defaultShutdownTimeout   = 15 * time.Second
)

type SecurityConfig interface {
	GetTLSCertFile() string
	GetTLSKeyFile() string
	GetClientCAFile() string
	GetTLSEnabled() bool
	GetReadHeaderTimeout() time.Duration
	GetShutdownTimeout() time.Duration
}

type Security struct {
	v *viper.Viper
}

var _ SecurityConfig = Security{}

func (s Security) GetTLSCertFile() string {
	return strings.TrimSpace(s.v.GetString(KeyTLSCert))
}

func (s Security) GetTLSKeyFile() string {
	return strings.TrimSpace(s.v.GetString(KeyTLSKey))
}

// GetClientCAFile returns the bundle used to verify client certificates. Without it
// certificates are requested but not chain verified; clients are matched by thumbprint.
func (s Security) GetClientCAFile() string {
	return strings.TrimSpace(s.v.GetString(KeyClientCA))
}

func (s Security) GetTLSEnabled() bool {
	return s.GetTLSCertFile() != "" && s.GetTLSKeyFile() != ""
}

func (s Security) GetReadHeaderTimeout() time.Duration {
	return s.v.GetDuration(KeyReadHeaderTimeout)
}

func (s Security) GetShutdownTimeout() time.Duration {
	return s.v.GetDuration(KeyShutdownTimeout)
}
