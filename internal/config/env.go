package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every environment variable the service reads.
const EnvPrefix = "SOCIAL_LOGIN_"

// envOverrides holds the top-level settings that may come from the environment.
type envOverrides struct {
	ListenHTTP     string `env:"LISTEN_HTTP"`
	ListenSocket   string `env:"LISTEN_SOCKET"`
	Variant        string `env:"VARIANT"`
	BaseURL        string `env:"BASE_URL"`
	CSRFSigningKey string `env:"CSRF_SIGNING_KEY"`
	Organization   string `env:"VALIDATION_ORGANIZATION"`
	LogLevel       string `env:"LOG_LEVEL"`
	LogFormat      string `env:"LOG_FORMAT"`
}

// registrationEnv holds per-registration secrets, read with the prefix
// SOCIAL_LOGIN_<REGISTRATION_ID>_.
type registrationEnv struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() error {
	var raw envOverrides
	if err := env.ParseWithOptions(&raw, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	setIfNotEmpty(&c.Listen.HTTP, raw.ListenHTTP)
	setIfNotEmpty(&c.Listen.Socket, raw.ListenSocket)
	setIfNotEmpty(&c.HTTP.BaseURL, raw.BaseURL)
	setIfNotEmpty(&c.CSRF.SigningKey, raw.CSRFSigningKey)
	setIfNotEmpty(&c.Validation.Organization, raw.Organization)
	setIfNotEmpty(&c.Log.Level, raw.LogLevel)
	setIfNotEmpty(&c.Log.Format, raw.LogFormat)
	if raw.Variant != "" {
		c.Variant = Variant(raw.Variant)
	}

	for id, reg := range c.Registrations {
		if reg == nil {
			continue
		}
		var regRaw registrationEnv
		if err := env.ParseWithOptions(&regRaw, env.Options{Prefix: RegistrationEnvPrefix(id)}); err != nil {
			return fmt.Errorf("parse env for registration %s: %w", id, err)
		}
		setIfNotEmpty(&reg.ClientID, regRaw.ClientID)
		setIfNotEmpty(&reg.ClientSecret, regRaw.ClientSecret)
	}

	return nil
}

// RegistrationEnvPrefix returns the environment prefix for a registration id,
// e.g. "github" -> "SOCIAL_LOGIN_GITHUB_".
func RegistrationEnvPrefix(id string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, id)
	return EnvPrefix + name + "_"
}

func setIfNotEmpty(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
