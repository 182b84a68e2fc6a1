package config

import "strings"

// Variant selects which of the progressive login applications the service
// behaves as. Each variant enables a superset of the previous one's endpoints.
type Variant string

const (
	// VariantSimple protects everything and redirects anonymous users straight
	// into the login flow.
	VariantSimple Variant = "simple"
	// VariantClick serves a public page with a login link and GET /user.
	VariantClick Variant = "click"
	// VariantLogout adds POST /logout and the CSRF guard.
	VariantLogout Variant = "logout"
	// VariantGitHubGoogle is VariantLogout with more than one registration.
	VariantGitHubGoogle Variant = "github-google"
	// VariantCustomError adds the principal validator and the /error message.
	VariantCustomError Variant = "custom-error"
)

var variants = []Variant{
	VariantSimple,
	VariantClick,
	VariantLogout,
	VariantGitHubGoogle,
	VariantCustomError,
}

// EntryPoint decides what anonymous requests to protected paths receive.
type EntryPoint string

const (
	// EntryPointStatus answers 401 with a JSON body.
	EntryPointStatus EntryPoint = "status"
	// EntryPointRedirect sends the browser to the default registration.
	EntryPointRedirect EntryPoint = "redirect"
)

// Capabilities are the toggles the request pipeline is assembled from.
type Capabilities struct {
	PublicPaths    []string
	PublicPrefixes []string
	EntryPoint     EntryPoint
	UserEndpoint   bool
	Logout         bool
	CSRF           bool
	ErrorPage      bool
	Validation     bool
}

// Valid reports whether v names a known variant.
func (v Variant) Valid() bool {
	for _, known := range variants {
		if v == known {
			return true
		}
	}
	return false
}

// AllowsMultipleRegistrations reports whether more than one provider may be
// configured for the variant.
func (v Variant) AllowsMultipleRegistrations() bool {
	return v == VariantGitHubGoogle || v == VariantCustomError
}

// Capabilities returns the pipeline toggles for the variant.
func (v Variant) Capabilities() Capabilities {
	caps := Capabilities{
		PublicPaths:    []string{"/", "/error", "/health"},
		PublicPrefixes: []string{"/webjars/"},
		EntryPoint:     EntryPointStatus,
	}

	switch v {
	case VariantSimple:
		// Everything but the error and health endpoints needs a login.
		caps.PublicPaths = []string{"/error", "/health"}
		caps.PublicPrefixes = nil
		caps.EntryPoint = EntryPointRedirect
	case VariantClick:
		caps.UserEndpoint = true
	case VariantLogout, VariantGitHubGoogle:
		caps.UserEndpoint = true
		caps.Logout = true
		caps.CSRF = true
	case VariantCustomError:
		caps.UserEndpoint = true
		caps.Logout = true
		caps.CSRF = true
		caps.ErrorPage = true
		caps.Validation = true
	}

	return caps
}

// IsPublic reports whether path may be served without a session.
func (c Capabilities) IsPublic(path string) bool {
	for _, p := range c.PublicPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range c.PublicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Capabilities returns the pipeline toggles for the configured variant.
func (c *Config) Capabilities() Capabilities {
	return c.Variant.Capabilities()
}

func variantNames() []string {
	names := make([]string, len(variants))
	for i, v := range variants {
		names[i] = string(v)
	}
	return names
}
