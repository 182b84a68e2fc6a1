// Package oauth implements the OAuth2 authorization-code flow against the
// configured provider registrations.
package oauth

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/al-bashkir/social-login/internal/config"
)

const defaultTimeout = 10 * time.Second

// Provider wraps one provider registration and its OAuth2 configuration.
// Registrations with an issuer additionally carry an OIDC provider used for
// discovery, ID token verification and the user-info call.
type Provider struct {
	registration *config.RegistrationConfig
	oauth2Config *oauth2.Config
	oidcProvider *oidc.Provider
	verifier     *oidc.IDTokenVerifier
	httpClient   *http.Client
	timeout      time.Duration
}

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient sets the client used for every outbound provider call.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithTimeout sets the per-call timeout for outbound provider calls.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// NewProvider creates a provider for a registration. Registrations with an
// issuer perform OIDC discovery via /.well-known/openid-configuration; explicit
// endpoints in the registration override the discovered ones.
func NewProvider(ctx context.Context, reg *config.RegistrationConfig, opts ...Option) (*Provider, error) {
	p := &Provider{
		registration: reg,
		timeout:      defaultTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.httpClient == nil {
		p.httpClient = &http.Client{Timeout: p.timeout}
	}

	endpoint := oauth2.Endpoint{
		AuthURL:  reg.AuthorizationEndpoint,
		TokenURL: reg.TokenEndpoint,
	}

	if reg.Issuer != "" {
		provider, err := oidc.NewProvider(oidc.ClientContext(ctx, p.httpClient), reg.Issuer)
		if err != nil {
			return nil, fmt.Errorf("failed to create OIDC provider for %s: %w", reg.RegistrationID, err)
		}

		discovered := provider.Endpoint()
		if endpoint.AuthURL == "" {
			endpoint.AuthURL = discovered.AuthURL
		}
		if endpoint.TokenURL == "" {
			endpoint.TokenURL = discovered.TokenURL
		}
		endpoint.AuthStyle = discovered.AuthStyle

		p.oidcProvider = provider
		p.verifier = provider.Verifier(&oidc.Config{
			ClientID: reg.ClientID,
		})
	}

	if endpoint.AuthURL == "" || endpoint.TokenURL == "" {
		return nil, fmt.Errorf("registration %s has no authorization or token endpoint", reg.RegistrationID)
	}

	p.oauth2Config = &oauth2.Config{
		ClientID:     reg.ClientID,
		ClientSecret: reg.ClientSecret,
		RedirectURL:  reg.RedirectURI,
		Endpoint:     endpoint,
		Scopes:       reg.Scopes,
	}

	return p, nil
}

// RegistrationID returns the id of the registration this provider serves.
func (p *Provider) RegistrationID() string {
	return p.registration.RegistrationID
}

// ProviderName returns the preset name, or the registration id for custom
// providers.
func (p *Provider) ProviderName() string {
	if p.registration.Provider != "" {
		return p.registration.Provider
	}
	return p.registration.RegistrationID
}

// Client returns an HTTP client that authenticates with the given token.
// The principal validator uses it to call provider APIs beyond user-info.
func (p *Provider) Client(ctx context.Context, token *oauth2.Token) *http.Client {
	return p.oauth2Config.Client(p.clientContext(ctx), token)
}

// clientContext makes x/oauth2 and go-oidc use the provider's HTTP client.
func (p *Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// Registry maps registration ids to providers. It is built once at startup
// and read-only afterwards.
type Registry struct {
	providers map[string]*Provider
	ids       []string
}

// NewRegistry creates a provider for every registration.
func NewRegistry(ctx context.Context, regs map[string]*config.RegistrationConfig, opts ...Option) (*Registry, error) {
	r := &Registry{providers: make(map[string]*Provider, len(regs))}

	for id, reg := range regs {
		p, err := NewProvider(ctx, reg, opts...)
		if err != nil {
			return nil, err
		}
		r.providers[id] = p
		r.ids = append(r.ids, id)
	}
	sort.Strings(r.ids)

	if len(r.ids) == 0 {
		return nil, fmt.Errorf("no registrations configured")
	}

	return r, nil
}

// NewRegistryFromProviders builds a registry from already constructed providers.
func NewRegistryFromProviders(providers ...*Provider) *Registry {
	r := &Registry{providers: make(map[string]*Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.RegistrationID()] = p
		r.ids = append(r.ids, p.RegistrationID())
	}
	sort.Strings(r.ids)
	return r
}

// Lookup returns the provider for a registration id.
func (r *Registry) Lookup(id string) (*Provider, bool) {
	p, ok := r.providers[id]
	return p, ok
}

// IDs returns the registration ids in sorted order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

// Default returns the first registration in sorted order, or nil when the
// registry is empty.
func (r *Registry) Default() *Provider {
	if r == nil || len(r.ids) == 0 {
		return nil
	}
	return r.providers[r.ids[0]]
}
