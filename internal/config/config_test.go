package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Listen.HTTP != ":8080" {
		t.Errorf("expected HTTP listen :8080, got %s", cfg.Listen.HTTP)
	}

	if cfg.Variant != VariantCustomError {
		t.Errorf("expected variant custom-error, got %s", cfg.Variant)
	}

	if cfg.Session.IdleTimeout != 1800 {
		t.Errorf("expected idle timeout 1800, got %d", cfg.Session.IdleTimeout)
	}

	if cfg.CSRF.CookieName != "XSRF-TOKEN" || cfg.CSRF.HeaderName != "X-XSRF-TOKEN" {
		t.Errorf("unexpected csrf names: %s / %s", cfg.CSRF.CookieName, cfg.CSRF.HeaderName)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("expected log level info, got %s", cfg.Log.Level)
	}
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name        string
		configYAML  string
		wantErr     bool
		errContains string
	}{
		{
			name: "valid github preset",
			configYAML: `
variant: logout
registrations:
  github:
    provider: github
    client_id: "abc"
    client_secret: "def"
`,
			wantErr: false,
		},
		{
			name: "valid custom endpoints",
			configYAML: `
variant: click
registrations:
  corp:
    client_id: "abc"
    client_secret: "def"
    authorization_endpoint: "https://idp.example.com/authorize"
    token_endpoint: "https://idp.example.com/token"
    user_info_endpoint: "https://idp.example.com/userinfo"
`,
			wantErr: false,
		},
		{
			name: "no registrations",
			configYAML: `
variant: click
`,
			wantErr:     true,
			errContains: "at least one registration",
		},
		{
			name: "missing client_secret",
			configYAML: `
variant: click
registrations:
  github:
    provider: github
    client_id: "abc"
`,
			wantErr:     true,
			errContains: "registrations.github.client_secret is required",
		},
		{
			name: "missing token endpoint",
			configYAML: `
variant: click
registrations:
  corp:
    client_id: "abc"
    client_secret: "def"
    authorization_endpoint: "https://idp.example.com/authorize"
    user_info_endpoint: "https://idp.example.com/userinfo"
`,
			wantErr:     true,
			errContains: "token_endpoint is required",
		},
		{
			name: "unknown provider preset",
			configYAML: `
variant: click
registrations:
  gitlab:
    provider: gitlab
    client_id: "abc"
    client_secret: "def"
    authorization_endpoint: "https://gitlab.example.com/authorize"
    token_endpoint: "https://gitlab.example.com/token"
    user_info_endpoint: "https://gitlab.example.com/userinfo"
`,
			wantErr:     true,
			errContains: "provider \"gitlab\" is unknown",
		},
		{
			name: "two registrations on single-provider variant",
			configYAML: `
variant: logout
registrations:
  github:
    provider: github
    client_id: "abc"
    client_secret: "def"
  google:
    provider: google
    client_id: "ghi"
    client_secret: "jkl"
`,
			wantErr:     true,
			errContains: "supports a single registration",
		},
		{
			name: "custom-error without organization",
			configYAML: `
variant: custom-error
registrations:
  github:
    provider: github
    client_id: "abc"
    client_secret: "def"
`,
			wantErr:     true,
			errContains: "validation.organization is required",
		},
		{
			name: "unknown variant",
			configYAML: `
variant: fancy
registrations:
  github:
    provider: github
    client_id: "abc"
    client_secret: "def"
`,
			wantErr:     true,
			errContains: "variant must be one of",
		},
		{
			name: "invalid log level",
			configYAML: `
variant: click
registrations:
  github:
    provider: github
    client_id: "abc"
    client_secret: "def"
log:
  level: "verbose"
`,
			wantErr:     true,
			errContains: "log.level must be one of",
		},
		{
			name: "invalid yaml",
			configYAML: `
this is not: valid: yaml:
  bad: [syntax
`,
			wantErr:     true,
			errContains: "failed to parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.configYAML))

			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error containing '%s', got nil", tt.errContains)
				} else if tt.errContains != "" && !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("error = %v, want error containing %v", err, tt.errContains)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if cfg == nil {
					t.Error("expected config, got nil")
				}
			}
		})
	}
}

func TestLoadAppliesPresets(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
variant: github-google
http:
  base_url: "https://login.example.com/"
registrations:
  github:
    provider: github
    client_id: "abc"
    client_secret: "def"
  google:
    provider: google
    client_id: "ghi"
    client_secret: "jkl"
`))
	if err != nil {
		t.Fatal(err)
	}

	gh := cfg.Registrations["github"]
	if gh.RegistrationID != "github" {
		t.Errorf("RegistrationID = %q, want github", gh.RegistrationID)
	}
	if gh.UserInfoEndpoint != "https://api.github.com/user" {
		t.Errorf("UserInfoEndpoint = %q", gh.UserInfoEndpoint)
	}
	if gh.RedirectURI != "https://login.example.com/login/oauth2/code/github" {
		t.Errorf("RedirectURI = %q", gh.RedirectURI)
	}
	if gh.UserNameAttribute != "name" || gh.UserIDAttribute != "id" {
		t.Errorf("attributes = %q/%q, want name/id", gh.UserNameAttribute, gh.UserIDAttribute)
	}

	g := cfg.Registrations["google"]
	if g.Issuer != "https://accounts.google.com" {
		t.Errorf("Issuer = %q", g.Issuer)
	}
	if len(g.Scopes) != 3 || g.Scopes[0] != "openid" {
		t.Errorf("Scopes = %v", g.Scopes)
	}

	if ids := cfg.RegistrationIDs(); len(ids) != 2 || ids[0] != "github" || ids[1] != "google" {
		t.Errorf("RegistrationIDs() = %v", ids)
	}

	if !cfg.SecureCookies() {
		t.Error("expected secure cookies for https base URL")
	}
}

func TestLoadAddsOrgScopeForValidation(t *testing.T) {
	tests := []struct {
		name    string
		variant string
		scopes  string
		want    []string
	}{
		{
			name:    "custom-error preset scopes",
			variant: "custom-error",
			want:    []string{"read:user", "read:org"},
		},
		{
			name:    "custom-error explicit scopes",
			variant: "custom-error",
			scopes:  "    scopes: [\"user:email\"]\n",
			want:    []string{"user:email", "read:org"},
		},
		{
			name:    "custom-error scope already present",
			variant: "custom-error",
			scopes:  "    scopes: [\"read:org\", \"read:user\"]\n",
			want:    []string{"read:org", "read:user"},
		},
		{
			name:    "no validation",
			variant: "github-google",
			want:    []string{"read:user"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, `
variant: `+tt.variant+`
validation:
  organization: acme
registrations:
  github:
    provider: github
    client_id: "abc"
    client_secret: "def"
`+tt.scopes))
			if err != nil {
				t.Fatal(err)
			}

			if got := cfg.Registrations["github"].Scopes; !slices.Equal(got, tt.want) {
				t.Errorf("Scopes = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("SOCIAL_LOGIN_GITHUB_CLIENT_SECRET", "env-secret")
	t.Setenv("SOCIAL_LOGIN_LOG_LEVEL", "debug")
	t.Setenv("SOCIAL_LOGIN_VARIANT", "click")
	t.Setenv("SOCIAL_LOGIN_LISTEN_SOCKET", "/tmp/social-login-test.sock")

	cfg, err := Load(writeConfig(t, `
variant: logout
registrations:
  github:
    provider: github
    client_id: "abc"
    client_secret: "yaml-secret"
log:
  level: "info"
`))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Registrations["github"].ClientSecret != "env-secret" {
		t.Errorf("expected client_secret='env-secret', got '%s'", cfg.Registrations["github"].ClientSecret)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level 'debug', got '%s'", cfg.Log.Level)
	}

	if cfg.Variant != VariantClick {
		t.Errorf("expected variant click, got %s", cfg.Variant)
	}

	if cfg.Listen.Socket != "/tmp/social-login-test.sock" {
		t.Errorf("expected socket override, got %s", cfg.Listen.Socket)
	}
}

func TestRegistrationEnvPrefix(t *testing.T) {
	tests := map[string]string{
		"github":      "SOCIAL_LOGIN_GITHUB_",
		"corp-sso":    "SOCIAL_LOGIN_CORP_SSO_",
		"Google2":     "SOCIAL_LOGIN_GOOGLE2_",
		"weird.id/x!": "SOCIAL_LOGIN_WEIRD_ID_X__",
	}
	for id, want := range tests {
		if got := RegistrationEnvPrefix(id); got != want {
			t.Errorf("RegistrationEnvPrefix(%q) = %q, want %q", id, got, want)
		}
	}
}

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Variant = VariantCustomError
	cfg.Validation.Organization = "acme"
	cfg.Registrations = map[string]*RegistrationConfig{
		"github": {
			Provider:     ProviderGitHub,
			ClientID:     "abc",
			ClientSecret: "def",
		},
	}
	cfg.applyRegistrationDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "login timeout too high",
			modify: func(c *Config) {
				c.Session.LoginTimeout = 7200
			},
			wantErr: true,
			errMsg:  "should not exceed 3600",
		},
		{
			name: "idle timeout zero",
			modify: func(c *Config) {
				c.Session.IdleTimeout = 0
			},
			wantErr: true,
			errMsg:  "must be positive",
		},
		{
			name: "redirect uri not http",
			modify: func(c *Config) {
				c.Registrations["github"].RedirectURI = "ftp://example.com/cb"
			},
			wantErr: true,
			errMsg:  "redirect_uri must be a valid HTTP(S) URL",
		},
		{
			name: "missing csrf header name",
			modify: func(c *Config) {
				c.CSRF.HeaderName = ""
			},
			wantErr: true,
			errMsg:  "csrf.cookie_name and csrf.header_name are required",
		},
		{
			name: "TLS enabled without cert",
			modify: func(c *Config) {
				c.TLS.Enabled = true
				c.TLS.CertFile = ""
			},
			wantErr: true,
			errMsg:  "are required when TLS is enabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()

			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error containing '%s', got nil", tt.errMsg)
				} else if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("error = %v, want error containing %v", err, tt.errMsg)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}
		})
	}
}

func TestCapabilities(t *testing.T) {
	simple := VariantSimple.Capabilities()
	if simple.EntryPoint != EntryPointRedirect || simple.UserEndpoint || simple.Logout {
		t.Errorf("unexpected simple capabilities: %+v", simple)
	}

	click := VariantClick.Capabilities()
	if click.EntryPoint != EntryPointStatus || !click.UserEndpoint || click.Logout || click.CSRF {
		t.Errorf("unexpected click capabilities: %+v", click)
	}

	logout := VariantLogout.Capabilities()
	if !logout.Logout || !logout.CSRF || logout.ErrorPage {
		t.Errorf("unexpected logout capabilities: %+v", logout)
	}

	custom := VariantCustomError.Capabilities()
	if !custom.ErrorPage || !custom.Validation || !custom.CSRF {
		t.Errorf("unexpected custom-error capabilities: %+v", custom)
	}

	for _, v := range variants {
		caps := v.Capabilities()
		if !caps.IsPublic("/error") || !caps.IsPublic("/health") {
			t.Errorf("%s: expected /error and /health to be public, got %v", v, caps.PublicPaths)
		}
		if caps.IsPublic("/user") || caps.IsPublic("/logout") {
			t.Errorf("%s: /user and /logout must be protected", v)
		}
		if v == VariantSimple {
			continue
		}
		if !caps.IsPublic("/") || !caps.IsPublic("/webjars/app.css") {
			t.Errorf("%s: expected / and /webjars/ to be public", v)
		}
	}

	if simple.IsPublic("/") || simple.IsPublic("/webjars/app.css") {
		t.Error("simple variant should protect the index page")
	}
}

func TestRedact(t *testing.T) {
	cfg := validConfig()
	cfg.CSRF.SigningKey = "signing-key"

	redacted := cfg.Redact()

	if redacted.Registrations["github"].ClientSecret != "[REDACTED]" {
		t.Errorf("expected [REDACTED], got %s", redacted.Registrations["github"].ClientSecret)
	}
	if redacted.CSRF.SigningKey != "[REDACTED]" {
		t.Errorf("expected signing key to be redacted, got %s", redacted.CSRF.SigningKey)
	}

	// Original should be unchanged
	if cfg.Registrations["github"].ClientSecret != "def" {
		t.Errorf("original was modified")
	}
	if cfg.CSRF.SigningKey != "signing-key" {
		t.Errorf("original signing key was modified")
	}
}

func TestSetupLogging(t *testing.T) {
	old := slog.Default()
	t.Cleanup(func() {
		slog.SetDefault(old)
	})

	SetupLogging(&LogConfig{Level: "debug", Format: "json"})
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug logs to be enabled")
	}

	SetupLogging(&LogConfig{Level: "error", Format: "text"})
	if slog.Default().Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected info logs to be disabled at error level")
	}
	if !slog.Default().Enabled(context.Background(), slog.LevelError) {
		t.Error("expected error logs to be enabled")
	}
}
