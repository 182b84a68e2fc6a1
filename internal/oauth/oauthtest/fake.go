// Package oauthtest provides an in-process OAuth2 provider for tests. It
// serves GitHub-shaped authorize, token, user-info and organization endpoints.
package oauthtest

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/al-bashkir/social-login/internal/config"
)

// Provider is a fake OAuth2 provider backed by an httptest.Server.
type Provider struct {
	Server *httptest.Server

	mu           sync.Mutex
	userInfo     map[string]any
	orgs         []string // private memberships
	publicOrgs   []string
	failToken    bool
	failUserInfo bool
	failOrgs     bool
	codes        map[string]string // code -> PKCE challenge
	tokens       map[string]bool
	tokenCalls   int
	orgCalls     int
	publicCalls  int
}

// NewProvider starts a fake provider that is closed when the test ends.
func NewProvider(t *testing.T) *Provider {
	t.Helper()

	p := &Provider{
		userInfo: map[string]any{"id": float64(1), "login": "alice", "name": "Alice"},
		codes:    make(map[string]string),
		tokens:   make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /login/oauth/access_token", p.handleToken)
	mux.HandleFunc("GET /user", p.handleUser)
	mux.HandleFunc("GET /user/orgs", p.handleOrgs)
	mux.HandleFunc("GET /users/{login}/orgs", p.handlePublicOrgs)

	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Server.Close)

	return p
}

// Registration returns a registration pointing at the fake endpoints.
func (p *Provider) Registration(id, redirectURI string) *config.RegistrationConfig {
	return &config.RegistrationConfig{
		RegistrationID:        id,
		Provider:              config.ProviderGitHub,
		ClientID:              "test-client",
		ClientSecret:          "test-secret",
		AuthorizationEndpoint: p.Server.URL + "/login/oauth/authorize",
		TokenEndpoint:         p.Server.URL + "/login/oauth/access_token",
		UserInfoEndpoint:      p.Server.URL + "/user",
		RedirectURI:           redirectURI,
		Scopes:                []string{"read:user"},
		UserIDAttribute:       "id",
		UserNameAttribute:     "name",
	}
}

// APIURL returns the base URL of the fake organization API.
func (p *Provider) APIURL() string {
	return p.Server.URL + "/"
}

// SetUserInfo replaces the attributes returned by the user-info endpoint.
func (p *Provider) SetUserInfo(info map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userInfo = info
}

// SetOrganizations sets the user's private organization memberships. They are
// only listed by the authenticated GET /user/orgs.
func (p *Provider) SetOrganizations(orgs ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orgs = orgs
}

// SetPublicOrganizations sets the user's public memberships, listed by both
// GET /user/orgs and GET /users/{login}/orgs.
func (p *Provider) SetPublicOrganizations(orgs ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.publicOrgs = orgs
}

// FailToken makes the token endpoint reject every exchange.
func (p *Provider) FailToken(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failToken = fail
}

// FailUserInfo makes the user-info endpoint answer 500.
func (p *Provider) FailUserInfo(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failUserInfo = fail
}

// FailOrganizations makes the organization endpoint answer 500.
func (p *Provider) FailOrganizations(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failOrgs = fail
}

// TokenCalls returns how many times the token endpoint was called.
func (p *Provider) TokenCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenCalls
}

// OrganizationCalls returns how many times GET /user/orgs was called.
func (p *Provider) OrganizationCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.orgCalls
}

// PublicOrganizationCalls returns how many times GET /users/{login}/orgs was
// called.
func (p *Provider) PublicOrganizationCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.publicCalls
}

// Authorize plays the user consenting at the provider: it reads the
// authorization URL and returns the callback URL the provider would redirect
// to, carrying a fresh code and the original state.
func (p *Provider) Authorize(t *testing.T, authURL string) string {
	t.Helper()

	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("failed to parse auth URL: %v", err)
	}
	q := u.Query()
	redirectURI := q.Get("redirect_uri")
	if redirectURI == "" {
		t.Fatal("auth URL has no redirect_uri")
	}

	code := p.IssueCode(q.Get("code_challenge"))

	cb, err := url.Parse(redirectURI)
	if err != nil {
		t.Fatalf("failed to parse redirect_uri: %v", err)
	}
	cbq := cb.Query()
	cbq.Set("code", code)
	cbq.Set("state", q.Get("state"))
	cb.RawQuery = cbq.Encode()

	return cb.String()
}

// IssueCode registers an authorization code bound to a PKCE challenge.
// An empty challenge accepts any verifier.
func (p *Provider) IssueCode(challenge string) string {
	code := randomHex()
	p.mu.Lock()
	p.codes[code] = challenge
	p.mu.Unlock()
	return code
}

func (p *Provider) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, "invalid_request")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenCalls++

	if p.failToken {
		writeOAuthError(w, "invalid_grant")
		return
	}

	code := r.PostForm.Get("code")
	challenge, ok := p.codes[code]
	if !ok || r.PostForm.Get("grant_type") != "authorization_code" {
		writeOAuthError(w, "invalid_grant")
		return
	}
	delete(p.codes, code)

	if challenge != "" {
		sum := sha256.Sum256([]byte(r.PostForm.Get("code_verifier")))
		if base64.RawURLEncoding.EncodeToString(sum[:]) != challenge {
			writeOAuthError(w, "invalid_grant")
			return
		}
	}

	token := randomHex()
	p.tokens[token] = true

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"scope":        "read:user",
	})
}

func (p *Provider) authorized(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && p.tokens[token]
}

func (p *Provider) handleUser(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.authorized(r) {
		http.Error(w, `{"message":"Bad credentials"}`, http.StatusUnauthorized)
		return
	}
	if p.failUserInfo {
		http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(p.userInfo)
}

func (p *Provider) handleOrgs(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orgCalls++

	memberships := append(append([]string(nil), p.publicOrgs...), p.orgs...)
	p.writeOrgs(w, r, memberships)
}

func (p *Provider) handlePublicOrgs(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.publicCalls++

	p.writeOrgs(w, r, p.publicOrgs)
}

// writeOrgs answers an organization listing. Callers hold p.mu.
func (p *Provider) writeOrgs(w http.ResponseWriter, r *http.Request, logins []string) {
	if !p.authorized(r) {
		http.Error(w, `{"message":"Bad credentials"}`, http.StatusUnauthorized)
		return
	}
	if p.failOrgs {
		http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
		return
	}

	orgs := make([]map[string]any, 0, len(logins))
	for i, login := range logins {
		orgs = append(orgs, map[string]any{"login": login, "id": i + 1})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(orgs)
}

func writeOAuthError(w http.ResponseWriter, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}

func randomHex() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
