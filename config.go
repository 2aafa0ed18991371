// Copyright 2016 Tamás Demeter-Haludka
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package powernap

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Application configuration.
//
// The keys are read with viper, so they can come from a config file or from
// the environment. Durations are in seconds unless noted otherwise.
type Config struct {
	APIURLPrefix   string   `mapstructure:"api_url_prefix"`
	Debug          bool     `mapstructure:"debug"`
	AuthHeader     string   `mapstructure:"auth_header"`
	TrustedProxies []string `mapstructure:"trusted_proxies"`
	BaseURL        string   `mapstructure:"base_url"`
	Project        string   `mapstructure:"project"`

	PaginationPage    string `mapstructure:"pagination_page"`
	PaginationPerPage string `mapstructure:"pagination_per_page"`
	DefaultPerPage    int    `mapstructure:"default_per_page"`
	MaxPerPage        int    `mapstructure:"max_per_page"`

	RateLimiting                 bool     `mapstructure:"rate_limiting"`
	RateLimitExpiration          int      `mapstructure:"rate_limit_expiration"`
	RateLimitWhitelist           []string `mapstructure:"rate_limit_whitelist"`
	RequestsPerHour              int      `mapstructure:"requests_per_hour"`
	AuthenticatedRequestsPerHour int      `mapstructure:"authenticated_requests_per_hour"`

	TokenExpire        int    `mapstructure:"token_expire"`
	ActiveTokensPrefix string `mapstructure:"active_tokens_prefix"`
	TwoFactorErrorMsg  string `mapstructure:"two_factor_error_msg"`

	// Days to keep request log entries.
	ActivityLogExpiration int `mapstructure:"activity_log_expiration"`
	// Path (without the API prefix) to the list of body attributes that must not be logged.
	SensitiveEndpoints map[string][]string `mapstructure:"sensitive_endpoints"`

	Redis         RedisConfig `mapstructure:"redis"`
	DB            string      `mapstructure:"db"`
	DBMaxIdleConn int         `mapstructure:"db_max_idle_conn"`
	DBMaxOpenConn int         `mapstructure:"db_max_open_conn"`

	LogLevel string      `mapstructure:"log_level"`
	LogFile  string      `mapstructure:"log_file"`
	Gzip     bool        `mapstructure:"gzip"`
	HSTS     *HSTSConfig `mapstructure:"hsts"`

	trustedNets   []*net.IPNet
	whitelistNets []*net.IPNet
}

// Sets the default values on a viper instance.
func SetDefaults(cfg *viper.Viper) {
	cfg.SetDefault("api_url_prefix", "/api/v{version}")
	cfg.SetDefault("debug", false)
	cfg.SetDefault("auth_header", "X-Auth")
	cfg.SetDefault("trusted_proxies", []string{})
	cfg.SetDefault("pagination_page", "page")
	cfg.SetDefault("pagination_per_page", "per_page")
	cfg.SetDefault("default_per_page", 25)
	cfg.SetDefault("max_per_page", 100)
	cfg.SetDefault("rate_limiting", true)
	cfg.SetDefault("rate_limit_expiration", 3600)
	cfg.SetDefault("rate_limit_whitelist", []string{})
	cfg.SetDefault("requests_per_hour", 100)
	cfg.SetDefault("authenticated_requests_per_hour", 1000)
	cfg.SetDefault("token_expire", 86400)
	cfg.SetDefault("active_tokens_prefix", "active")
	cfg.SetDefault("two_factor_error_msg", "Two factor authentication is required.")
	cfg.SetDefault("activity_log_expiration", 30)
	cfg.SetDefault("log_level", "user")
	cfg.SetDefault("gzip", true)
	cfg.SetDefault("redis.db", 0)
}

// Reads the configuration from viper.
func LoadConfig(cfg *viper.Viper) (*Config, error) {
	SetDefaults(cfg)

	c := &Config{}
	if err := cfg.Unmarshal(c); err != nil {
		return nil, err
	}

	if err := c.init(); err != nil {
		return nil, err
	}

	return c, nil
}

// Returns a configuration with only the default values.
func DefaultConfig() *Config {
	c, err := LoadConfig(viper.New())
	if err != nil {
		panic(err)
	}

	return c
}

func (c *Config) init() error {
	var err error

	if c.trustedNets, err = parseNetworks(c.TrustedProxies); err != nil {
		return fmt.Errorf("trusted_proxies: %v", err)
	}

	if c.whitelistNets, err = parseNetworks(c.RateLimitWhitelist); err != nil {
		return fmt.Errorf("rate_limit_whitelist: %v", err)
	}

	if c.DefaultPerPage <= 0 {
		return fmt.Errorf("default_per_page must be positive")
	}

	return nil
}

func (c *Config) RateLimitExpirationDuration() time.Duration {
	return time.Duration(c.RateLimitExpiration) * time.Second
}

func (c *Config) TokenExpireDuration() time.Duration {
	return time.Duration(c.TokenExpire) * time.Second
}

// Checks if ip is inside one of the trusted proxy networks.
func (c *Config) IsTrustedProxy(ip net.IP) bool {
	return networksContain(c.trustedNets, ip)
}

// Checks if ip is inside one of the networks that are excluded from rate limiting.
func (c *Config) IsWhitelisted(ip net.IP) bool {
	return networksContain(c.whitelistNets, ip)
}

// Parses CIDR ranges. Plain addresses are treated as single host networks.
func parseNetworks(addresses []string) ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(addresses))
	for _, address := range addresses {
		address = strings.TrimSpace(address)
		if !strings.Contains(address, "/") {
			ip := net.ParseIP(address)
			if ip == nil {
				return nil, fmt.Errorf("invalid address %q", address)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			address = fmt.Sprintf("%s/%d", address, bits)
		}

		_, n, err := net.ParseCIDR(address)
		if err != nil {
			return nil, err
		}
		nets = append(nets, n)
	}

	return nets, nil
}

func networksContain(nets []*net.IPNet, ip net.IP) bool {
	if ip == nil {
		return false
	}

	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}

	return false
}

// Gets the configuration from the request context.
//
// Requests that did not go through the server's context middleware get the default configuration.
func GetConfig(r *http.Request) *Config {
	if c, ok := r.Context().Value(configKey).(*Config); ok {
		return c
	}

	return defaultConfig
}

var defaultConfig = DefaultConfig()
