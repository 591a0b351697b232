// Package config loads server configuration from environment variables and
// flags via viper. Every tunable has a default so the server runs with no
// configuration at all.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// firebaseJWKSURL serves the securetoken signing keys Firebase ID tokens are
// verified against.
const firebaseJWKSURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"

// Defaults.
const (
	DefaultPort               = 3001
	DefaultPortProbeRange     = 10
	DefaultMaxUsersPerSession = 10
	DefaultPistonURL          = "https://emkc.org/api/v2/piston"
	DefaultRateLimitMax       = 10
	DefaultRateLimitWindow    = 30 * time.Second
	DefaultEmptySessionTTL    = time.Hour
)

// Config holds the full server configuration.
type Config struct {
	// Port is the HTTP + realtime bind port. If busy, the server probes
	// Port+1 through Port+PortProbeRange-1 before giving up.
	Port           int
	PortProbeRange int

	// JWTSecret is the secret for the locally-signed token path. Empty
	// disables the local path.
	JWTSecret string

	// OIDCIssuer and OIDCAudience configure the federated-identity path.
	// An empty issuer disables the federated path.
	OIDCIssuer   string
	OIDCAudience string

	// JWKSURL optionally overrides key discovery for the locally-signed
	// RS256 path.
	JWKSURL string

	// EnableDevTokens allows unverified three-segment tokens carrying sub
	// and email to be accepted as development principals. Must be false in
	// production.
	EnableDevTokens bool

	// AllowGuestHandshake admits realtime connections whose credential is
	// missing or invalid as guest principals. When false the handshake is
	// refused instead.
	AllowGuestHandshake bool

	// PistonURL is the external code-execution sandbox base URL.
	PistonURL string

	// MaxUsersPerSession is the default session user limit.
	MaxUsersPerSession int

	// AllowGuestsDefault seeds new sessions' allowGuests setting.
	AllowGuestsDefault bool

	// RateLimitMax is the number of connections allowed per source IP
	// within RateLimitWindow.
	RateLimitMax    int
	RateLimitWindow time.Duration

	// EmptySessionTTL is how long an empty session survives before the
	// garbage collector purges it.
	EmptySessionTTL time.Duration

	// Debug enables debug logging.
	Debug bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", DefaultPort)
	v.SetDefault("port_probe_range", DefaultPortProbeRange)
	v.SetDefault("enable_dev_tokens", true)
	v.SetDefault("allow_guest_handshake", true)
	v.SetDefault("piston_api_url", DefaultPistonURL)
	v.SetDefault("max_users_per_session", DefaultMaxUsersPerSession)
	v.SetDefault("allow_guests_default", false)
	v.SetDefault("rate_limit_max_connections", DefaultRateLimitMax)
	v.SetDefault("rate_limit_window", DefaultRateLimitWindow)
	v.SetDefault("empty_session_ttl", DefaultEmptySessionTTL)
}

func bindEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"port":                       "PORT",
		"jwt_secret":                 "JWT_SECRET",
		"firebase_admin_key":         "FIREBASE_ADMIN_KEY",
		"oidc_issuer":                "OIDC_ISSUER",
		"oidc_audience":              "OIDC_AUDIENCE",
		"jwks_url":                   "JWKS_URL",
		"enable_dev_tokens":          "ENABLE_DEV_TOKENS",
		"allow_guest_handshake":      "ALLOW_GUEST_HANDSHAKE",
		"piston_api_url":             "PISTON_API_URL",
		"max_users_per_session":      "MAX_USERS_PER_SESSION",
		"allow_guests_default":       "ALLOW_GUESTS_DEFAULT",
		"rate_limit_max_connections": "RATE_LIMIT_MAX_CONNECTIONS",
		"rate_limit_window":          "RATE_LIMIT_WINDOW",
		"empty_session_ttl":          "EMPTY_SESSION_TTL",
		"debug":                      "DEBUG",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	return nil
}

// Load reads configuration from the process environment into a Config.
func Load() (*Config, error) {
	return load(viper.GetViper())
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:                v.GetInt("port"),
		PortProbeRange:      v.GetInt("port_probe_range"),
		JWTSecret:           v.GetString("jwt_secret"),
		OIDCIssuer:          v.GetString("oidc_issuer"),
		OIDCAudience:        v.GetString("oidc_audience"),
		JWKSURL:             v.GetString("jwks_url"),
		EnableDevTokens:     v.GetBool("enable_dev_tokens"),
		AllowGuestHandshake: v.GetBool("allow_guest_handshake"),
		PistonURL:           v.GetString("piston_api_url"),
		MaxUsersPerSession:  v.GetInt("max_users_per_session"),
		AllowGuestsDefault:  v.GetBool("allow_guests_default"),
		RateLimitMax:        v.GetInt("rate_limit_max_connections"),
		RateLimitWindow:     v.GetDuration("rate_limit_window"),
		EmptySessionTTL:     v.GetDuration("empty_session_ttl"),
		Debug:               v.GetBool("debug"),
	}

	// FIREBASE_ADMIN_KEY is an alias for the federated path: a service
	// account key implies the securetoken issuer for its project. Explicit
	// OIDC settings win.
	if cfg.OIDCIssuer == "" {
		if raw := v.GetString("firebase_admin_key"); raw != "" {
			if err := applyFirebaseKey(cfg, raw); err != nil {
				return nil, err
			}
		}
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.MaxUsersPerSession < 1 {
		return nil, fmt.Errorf("max_users_per_session must be at least 1, got %d", cfg.MaxUsersPerSession)
	}
	if cfg.RateLimitMax < 1 || cfg.RateLimitWindow <= 0 {
		return nil, fmt.Errorf("invalid rate limit configuration (%d per %s)", cfg.RateLimitMax, cfg.RateLimitWindow)
	}

	return cfg, nil
}

// applyFirebaseKey derives the federated-identity settings from a Firebase
// service-account key.
func applyFirebaseKey(cfg *Config, raw string) error {
	var key struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal([]byte(raw), &key); err != nil {
		return fmt.Errorf("invalid firebase admin key: %w", err)
	}
	if key.ProjectID == "" {
		return fmt.Errorf("firebase admin key has no project_id")
	}
	cfg.OIDCIssuer = "https://securetoken.google.com/" + key.ProjectID
	cfg.OIDCAudience = key.ProjectID
	if cfg.JWKSURL == "" {
		cfg.JWKSURL = firebaseJWKSURL
	}
	return nil
}
