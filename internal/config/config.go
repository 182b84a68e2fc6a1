package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/al-bashkir/social-login/internal/logsanitize"
)

// Config represents the complete application configuration
type Config struct {
	Listen        ListenConfig                   `yaml:"listen"`
	Variant       Variant                        `yaml:"variant"`
	Registrations map[string]*RegistrationConfig `yaml:"registrations"`
	Session       SessionConfig                  `yaml:"session"`
	CSRF          CSRFConfig                     `yaml:"csrf"`
	Validation    ValidationConfig               `yaml:"validation"`
	HTTP          HTTPConfig                     `yaml:"http"`
	TLS           TLSConfig                      `yaml:"tls"`
	Log           LogConfig                      `yaml:"log"`
}

// ListenConfig defines where the service listens for requests
type ListenConfig struct {
	HTTP   string `yaml:"http"`   // HTTP server address (e.g., ":8080")
	Socket string `yaml:"socket"` // Admin unix socket path, empty disables it
}

// RegistrationConfig describes how to talk to one OAuth2 provider.
type RegistrationConfig struct {
	// RegistrationID is filled from the map key; it selects the registration
	// in /oauth2/authorization/{registrationId}.
	RegistrationID string `yaml:"-"`

	Provider              string   `yaml:"provider"` // preset name: github, google (optional)
	ClientID              string   `yaml:"client_id"`
	ClientSecret          string   `yaml:"client_secret"`
	AuthorizationEndpoint string   `yaml:"authorization_endpoint"`
	TokenEndpoint         string   `yaml:"token_endpoint"`
	UserInfoEndpoint      string   `yaml:"user_info_endpoint"`
	Issuer                string   `yaml:"issuer"` // enables OIDC discovery when set
	RedirectURI           string   `yaml:"redirect_uri"`
	Scopes                []string `yaml:"scopes"`
	UserIDAttribute       string   `yaml:"user_id_attribute"`
	UserNameAttribute     string   `yaml:"user_name_attribute"`
}

// SessionConfig defines server-side session behavior
type SessionConfig struct {
	CookieName   string `yaml:"cookie_name"`
	IdleTimeout  int    `yaml:"idle_timeout"`  // seconds of inactivity before a session expires
	LoginTimeout int    `yaml:"login_timeout"` // seconds an authorization request may stay pending
}

// CSRFConfig defines the double-submit token settings
type CSRFConfig struct {
	CookieName string `yaml:"cookie_name"`
	HeaderName string `yaml:"header_name"`
	SigningKey string `yaml:"signing_key"` // random per process when empty
}

// ValidationConfig configures the principal validator (custom-error variant)
type ValidationConfig struct {
	Organization string `yaml:"organization"`
	Message      string `yaml:"message"`
	APIURL       string `yaml:"api_url"` // GitHub API base URL, empty for api.github.com
}

// HTTPConfig defines HTTP behavior shared by handlers and outbound calls
type HTTPConfig struct {
	BaseURL         string  `yaml:"base_url"`         // external URL used to build redirect URIs
	ProviderTimeout int     `yaml:"provider_timeout"` // seconds per outbound provider call
	RateLimit       float64 `yaml:"rate_limit"`       // requests per second per IP
	RateBurst       int     `yaml:"rate_burst"`
}

// TLSConfig defines TLS settings for the HTTP server
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LogConfig defines logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	cfg.applyRegistrationDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Listen: ListenConfig{
			HTTP:   ":8080",
			Socket: "/run/social-login/admin.sock",
		},
		Variant: VariantCustomError,
		Session: SessionConfig{
			CookieName:   "SESSION",
			IdleTimeout:  1800, // 30 minutes
			LoginTimeout: 300,  // 5 minutes
		},
		CSRF: CSRFConfig{
			CookieName: "XSRF-TOKEN",
			HeaderName: "X-XSRF-TOKEN",
		},
		Validation: ValidationConfig{
			Message: "Not a member of the required organization",
		},
		HTTP: HTTPConfig{
			BaseURL:         "http://localhost:8080",
			ProviderTimeout: 10,
			RateLimit:       10,
			RateBurst:       50,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// applyRegistrationDefaults fills registration ids, provider presets and
// redirect URIs. It is safe to call more than once.
func (c *Config) applyRegistrationDefaults() {
	for id, reg := range c.Registrations {
		if reg == nil {
			continue
		}
		reg.RegistrationID = id
		if preset, ok := presets[reg.Provider]; ok {
			preset.apply(reg)
		}
		if reg.UserNameAttribute == "" {
			reg.UserNameAttribute = "name"
		}
		// Private organization memberships are hidden without read:org.
		if reg.Provider == ProviderGitHub && c.Variant.Capabilities().Validation &&
			!slices.Contains(reg.Scopes, orgScope) {
			reg.Scopes = append(reg.Scopes, orgScope)
		}
		if reg.RedirectURI == "" && c.HTTP.BaseURL != "" {
			reg.RedirectURI = strings.TrimRight(c.HTTP.BaseURL, "/") + "/login/oauth2/code/" + id
		}
	}
}

// RegistrationIDs returns the configured registration ids in sorted order.
func (c *Config) RegistrationIDs() []string {
	ids := make([]string, 0, len(c.Registrations))
	for id := range c.Registrations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if !c.Variant.Valid() {
		return fmt.Errorf("variant must be one of: %s", strings.Join(variantNames(), ", "))
	}

	if len(c.Registrations) == 0 {
		return fmt.Errorf("at least one registration is required")
	}
	if !c.Variant.AllowsMultipleRegistrations() && len(c.Registrations) > 1 {
		return fmt.Errorf("variant %s supports a single registration, got %d", c.Variant, len(c.Registrations))
	}

	for _, id := range c.RegistrationIDs() {
		if err := c.Registrations[id].validate(id); err != nil {
			return err
		}
	}

	if c.Variant.Capabilities().Validation && c.Validation.Organization == "" {
		return fmt.Errorf("validation.organization is required for variant %s", c.Variant)
	}
	if c.Validation.APIURL != "" && !isHTTPURL(c.Validation.APIURL) {
		return fmt.Errorf("validation.api_url must be a valid HTTP(S) URL")
	}

	if c.Session.CookieName == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if c.Session.IdleTimeout <= 0 {
		return fmt.Errorf("session.idle_timeout must be positive")
	}
	if c.Session.LoginTimeout <= 0 {
		return fmt.Errorf("session.login_timeout must be positive")
	}
	if c.Session.LoginTimeout > 3600 {
		return fmt.Errorf("session.login_timeout should not exceed 3600 seconds (1 hour)")
	}

	if c.CSRF.CookieName == "" || c.CSRF.HeaderName == "" {
		return fmt.Errorf("csrf.cookie_name and csrf.header_name are required")
	}

	if c.HTTP.BaseURL != "" && !isHTTPURL(c.HTTP.BaseURL) {
		return fmt.Errorf("http.base_url must be a valid HTTP(S) URL")
	}
	if c.HTTP.ProviderTimeout <= 0 {
		return fmt.Errorf("http.provider_timeout must be positive")
	}
	if c.HTTP.RateLimit <= 0 || c.HTTP.RateBurst <= 0 {
		return fmt.Errorf("http.rate_limit and http.rate_burst must be positive")
	}

	if c.TLS.Enabled {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return fmt.Errorf("tls.cert_file and tls.key_file are required when TLS is enabled")
		}

		if _, err := os.Stat(c.TLS.CertFile); err != nil {
			return fmt.Errorf("tls.cert_file not found: %w", err)
		}
		if _, err := os.Stat(c.TLS.KeyFile); err != nil {
			return fmt.Errorf("tls.key_file not found: %w", err)
		}
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("log.format must be one of: json, text")
	}

	if c.Listen.HTTP == "" {
		return fmt.Errorf("listen.http is required")
	}

	return nil
}

func (r *RegistrationConfig) validate(id string) error {
	if r == nil {
		return fmt.Errorf("registrations.%s is empty", id)
	}
	if r.ClientID == "" {
		return fmt.Errorf("registrations.%s.client_id is required", id)
	}
	if r.ClientSecret == "" {
		return fmt.Errorf("registrations.%s.client_secret is required", id)
	}
	if r.Provider != "" {
		if _, ok := presets[r.Provider]; !ok {
			return fmt.Errorf("registrations.%s.provider %q is unknown", id, r.Provider)
		}
	}

	if r.Issuer != "" {
		if !isHTTPURL(r.Issuer) {
			return fmt.Errorf("registrations.%s.issuer must be a valid HTTP(S) URL", id)
		}
	} else {
		endpoints := map[string]string{
			"authorization_endpoint": r.AuthorizationEndpoint,
			"token_endpoint":         r.TokenEndpoint,
			"user_info_endpoint":     r.UserInfoEndpoint,
		}
		for _, name := range []string{"authorization_endpoint", "token_endpoint", "user_info_endpoint"} {
			if endpoints[name] == "" {
				return fmt.Errorf("registrations.%s.%s is required", id, name)
			}
			if !isHTTPURL(endpoints[name]) {
				return fmt.Errorf("registrations.%s.%s must be a valid HTTP(S) URL", id, name)
			}
		}
	}

	if r.RedirectURI == "" {
		return fmt.Errorf("registrations.%s.redirect_uri is required", id)
	}
	if !isHTTPURL(r.RedirectURI) {
		return fmt.Errorf("registrations.%s.redirect_uri must be a valid HTTP(S) URL", id)
	}
	if r.UserNameAttribute == "" {
		return fmt.Errorf("registrations.%s.user_name_attribute is required", id)
	}

	return nil
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// IdleTimeout returns the session idle timeout as a duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Session.IdleTimeout) * time.Second
}

// LoginTimeout returns how long an authorization request may stay pending.
func (c *Config) LoginTimeout() time.Duration {
	return time.Duration(c.Session.LoginTimeout) * time.Second
}

// ProviderTimeout returns the timeout applied to each outbound provider call.
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.HTTP.ProviderTimeout) * time.Second
}

// SecureCookies reports whether cookies should carry the Secure attribute.
func (c *Config) SecureCookies() bool {
	return c.TLS.Enabled || strings.HasPrefix(c.HTTP.BaseURL, "https://")
}

// SetupLogging configures the global slog logger based on the LogConfig.
func SetupLogging(cfg *LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// Redact returns a deep-enough copy of the config with secrets redacted for safe logging
func (c *Config) Redact() *Config {
	redacted := *c
	if c.Registrations != nil {
		redacted.Registrations = make(map[string]*RegistrationConfig, len(c.Registrations))
		for id, reg := range c.Registrations {
			if reg == nil {
				redacted.Registrations[id] = nil
				continue
			}
			r := *reg
			if reg.Scopes != nil {
				r.Scopes = make([]string, len(reg.Scopes))
				copy(r.Scopes, reg.Scopes)
			}
			r.ClientSecret = logsanitize.Secret(r.ClientSecret)
			redacted.Registrations[id] = &r
		}
	}
	redacted.CSRF.SigningKey = logsanitize.Secret(redacted.CSRF.SigningKey)
	return &redacted
}
