package config

import (
	"sort"
	"strings"

	"github.com/spf13/viper"
)

const (
	KeyCorsOrigins = "cors-allowed-origins"
	KeyCorsMethods = "cors-allowed-methods"
	KeyCorsHeaders = "cors-allowed-headers"
)

const (
	defaultCorsMethods = "GET, POST, OPTIONS"
	defaultCorsHeaders = "Content-Type, Authorization"
)

type Cors struct {
	v *viper.Viper
}

var _ CorsConfig = Cors{}

type AllowedOrigins map[string]struct{}
type nullValue = struct{}

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	_, ok := a[origin]
	return ok
}

func (a AllowedOrigins) String() string {
	var origins []string
	for k := range a {
		origins = append(origins, k)
	}
	sort.Strings(origins)
	return strings.Join(origins, ", ")
}

func (c Cors) GetAllowedOrigins() AllowedOrigins {
	origins := AllowedOrigins{}
	for _, origin := range c.v.GetStringSlice(KeyCorsOrigins) {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins[origin] = nullValue{}
		}
	}
	return origins
}

func (c Cors) GetAllowedMethods() string {
	return c.v.GetString(KeyCorsMethods)
}

func (c Cors) GetAllowedHeaders() string {
	return c.v.GetString(KeyCorsHeaders)
}
