package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/al-bashkir/social-login/internal/config"
	"github.com/al-bashkir/social-login/internal/oauth"
	"github.com/al-bashkir/social-login/internal/oauth/oauthtest"
	"github.com/al-bashkir/social-login/internal/session"
)

// testEnv is a running server wired to a fake provider, plus a browser-like
// client that keeps cookies and does not follow redirects.
type testEnv struct {
	t        *testing.T
	fake     *oauthtest.Provider
	sessions *session.Manager
	ts       *httptest.Server
	client   *http.Client
}

func newTestEnv(t *testing.T, variant config.Variant) *testEnv {
	t.Helper()

	fake := oauthtest.NewProvider(t)

	cfg := config.DefaultConfig()
	cfg.Variant = variant
	cfg.Listen.Socket = ""
	cfg.HTTP.RateLimit = 0
	cfg.Registrations = map[string]*config.RegistrationConfig{
		"github": fake.Registration("github", "http://localhost/login/oauth2/code/github"),
	}
	cfg.Validation.Organization = "acme"
	cfg.Validation.APIURL = fake.APIURL()

	registry, err := oauth.NewRegistry(context.Background(), cfg.Registrations)
	require.NoError(t, err)

	sessions := session.NewManager(cfg.IdleTimeout(), cfg.LoginTimeout())
	t.Cleanup(sessions.Stop)

	server, err := NewServer(cfg, registry, sessions)
	require.NoError(t, err)
	t.Cleanup(server.Close)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{
		t:        t,
		fake:     fake,
		sessions: sessions,
		ts:       ts,
		client:   newBrowser(t),
	}
}

func newBrowser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (e *testEnv) do(method, path string, header http.Header) (*http.Response, string) {
	e.t.Helper()

	req, err := http.NewRequest(method, e.ts.URL+path, nil)
	require.NoError(e.t, err)
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := e.client.Do(req)
	require.NoError(e.t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(e.t, err)
	return resp, string(body)
}

func (e *testEnv) get(path string) (*http.Response, string) {
	return e.do(http.MethodGet, path, nil)
}

func (e *testEnv) getJSON(path string) (*http.Response, string) {
	return e.do(http.MethodGet, path, http.Header{"Accept": {"application/json"}})
}

func (e *testEnv) cookie(name string) string {
	u, _ := url.Parse(e.ts.URL)
	for _, c := range e.client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// logout posts to /logout echoing the CSRF cookie.
func (e *testEnv) logout() (*http.Response, string) {
	return e.do(http.MethodPost, "/logout", http.Header{"X-XSRF-TOKEN": {e.cookie("XSRF-TOKEN")}})
}

// startLogin hits the authorization endpoint and returns the provider URL.
func (e *testEnv) startLogin() string {
	e.t.Helper()
	resp, _ := e.get("/oauth2/authorization/github")
	require.Equal(e.t, http.StatusFound, resp.StatusCode)
	return resp.Header.Get("Location")
}

// callback delivers the provider's redirect to the server.
func (e *testEnv) callback(providerRedirect string) *http.Response {
	e.t.Helper()
	cb, err := url.Parse(providerRedirect)
	require.NoError(e.t, err)
	resp, _ := e.get(cb.RequestURI())
	return resp
}

// login runs the full authorization-code flow and returns the callback response.
func (e *testEnv) login() *http.Response {
	e.t.Helper()
	return e.callback(e.fake.Authorize(e.t, e.startLogin()))
}

func TestLoginUserLogoutScenario(t *testing.T) {
	env := newTestEnv(t, config.VariantLogout)
	env.fake.SetUserInfo(map[string]any{"name": "Alice"})

	resp, _ := env.get("/user")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.login()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
	assert.Equal(t, 1, env.sessions.Count())

	// Idempotent while the session is valid.
	for i := 0; i < 2; i++ {
		resp, body := env.get("/user")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"name":"Alice"}`, body)
	}

	resp, body := env.logout()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)
	assert.Equal(t, 0, env.sessions.Count())

	resp, _ = env.get("/user")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// A second logout is a no-op that still succeeds.
	resp, body = env.logout()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)
}

func TestLoginSetsCookies(t *testing.T) {
	env := newTestEnv(t, config.VariantLogout)

	resp := env.login()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	var sessionCookie, csrfCookie *http.Cookie
	for _, c := range resp.Cookies() {
		switch c.Name {
		case "SESSION":
			sessionCookie = c
		case "XSRF-TOKEN":
			csrfCookie = c
		}
	}
	require.NotNil(t, sessionCookie)
	require.NotNil(t, csrfCookie)

	assert.True(t, sessionCookie.HttpOnly, "session cookie must be HttpOnly")
	assert.False(t, csrfCookie.HttpOnly, "CSRF cookie must be readable by scripts")
	assert.Len(t, sessionCookie.Value, 64)

	list := env.sessions.List()
	require.Len(t, list, 1)
	assert.Equal(t, list[0].CSRFToken, env.cookie("XSRF-TOKEN"))
}

func TestLoginRotatesSession(t *testing.T) {
	env := newTestEnv(t, config.VariantLogout)

	require.Equal(t, "/", env.login().Header.Get("Location"))
	firstID := env.cookie("SESSION")
	firstToken := env.cookie("XSRF-TOKEN")

	require.Equal(t, "/", env.login().Header.Get("Location"))

	assert.NotEqual(t, firstID, env.cookie("SESSION"))
	assert.NotEqual(t, firstToken, env.cookie("XSRF-TOKEN"))
	assert.Equal(t, 1, env.sessions.Count(), "the previous session must be destroyed")
}

func TestLogoutRequiresCSRFToken(t *testing.T) {
	env := newTestEnv(t, config.VariantLogout)
	require.Equal(t, "/", env.login().Header.Get("Location"))

	resp, body := env.do(http.MethodPost, "/logout", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, body, "csrf")

	resp, _ = env.do(http.MethodPost, "/logout", http.Header{"X-XSRF-TOKEN": {"forged_00"}})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// The session survives rejected requests.
	resp, _ = env.get("/user")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, env.sessions.Count())
}

func TestLoginFlowErrors(t *testing.T) {
	tests := []struct {
		name string
		run  func(env *testEnv) *http.Response
	}{
		{
			name: "provider error",
			run: func(env *testEnv) *http.Response {
				env.startLogin()
				resp, _ := env.get("/login/oauth2/code/github?error=access_denied&error_description=denied")
				return resp
			},
		},
		{
			name: "missing code",
			run: func(env *testEnv) *http.Response {
				env.startLogin()
				resp, _ := env.get("/login/oauth2/code/github?state=abc")
				return resp
			},
		},
		{
			name: "state mismatch",
			run: func(env *testEnv) *http.Response {
				redirect, _ := url.Parse(env.fake.Authorize(env.t, env.startLogin()))
				q := redirect.Query()
				q.Set("state", "forged-state")
				redirect.RawQuery = q.Encode()
				return env.callback(redirect.String())
			},
		},
		{
			name: "callback in another browser",
			run: func(env *testEnv) *http.Response {
				redirect := env.fake.Authorize(env.t, env.startLogin())
				env.client = newBrowser(env.t)
				return env.callback(redirect)
			},
		},
		{
			name: "code exchange failure",
			run: func(env *testEnv) *http.Response {
				env.fake.FailToken(true)
				return env.login()
			},
		},
		{
			name: "user info failure",
			run: func(env *testEnv) *http.Response {
				env.fake.FailUserInfo(true)
				return env.login()
			},
		},
		{
			name: "wrong registration",
			run: func(env *testEnv) *http.Response {
				redirect, _ := url.Parse(env.fake.Authorize(env.t, env.startLogin()))
				redirect.Path = "/login/oauth2/code/other"
				return env.callback(redirect.String())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, config.VariantCustomError)
			env.fake.SetOrganizations("acme")

			resp := tt.run(env)
			require.Equal(t, http.StatusFound, resp.StatusCode)
			assert.Equal(t, "/error", resp.Header.Get("Location"))
			assert.Equal(t, 0, env.sessions.Count(), "no session may be created on failure")
			assert.Empty(t, env.cookie("SESSION"))

			resp, body := env.getJSON("/error")
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Contains(t, body, `"message"`)

			resp, _ = env.get("/user")
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestCallbackReplayFails(t *testing.T) {
	env := newTestEnv(t, config.VariantLogout)

	redirect := env.fake.Authorize(t, env.startLogin())
	require.Equal(t, "/", env.callback(redirect).Header.Get("Location"))

	resp := env.callback(redirect)
	assert.Equal(t, "/error", resp.Header.Get("Location"))
	assert.Equal(t, 1, env.fake.TokenCalls(), "a replayed state must not reach the token endpoint")
}

func TestValidatorRejection(t *testing.T) {
	env := newTestEnv(t, config.VariantCustomError)
	env.fake.SetOrganizations("other")

	resp := env.login()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/error", resp.Header.Get("Location"))
	assert.Equal(t, 0, env.sessions.Count())

	resp, body := env.getJSON("/error")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var msg messageResponse
	require.NoError(t, json.Unmarshal([]byte(body), &msg))
	assert.Equal(t, "Not a member of the required organization", msg.Message)

	// The message is shown once.
	resp, body = env.getJSON("/error")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{}`, body)
}

func TestValidatorRejectionHTML(t *testing.T) {
	env := newTestEnv(t, config.VariantCustomError)

	require.Equal(t, "/error", env.login().Header.Get("Location"))

	resp, body := env.get("/error")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, body, "Not a member of the required organization")
}

func TestValidatorAcceptsMember(t *testing.T) {
	env := newTestEnv(t, config.VariantCustomError)
	env.fake.SetOrganizations("acme")

	require.Equal(t, "/", env.login().Header.Get("Location"))

	resp, body := env.get("/user")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"name":"Alice"}`, body)
	assert.Equal(t, 1, env.fake.OrganizationCalls())
}

func TestValidatorAcceptsPrivateMember(t *testing.T) {
	env := newTestEnv(t, config.VariantCustomError)
	env.fake.SetOrganizations("acme")
	env.fake.SetPublicOrganizations()

	require.Equal(t, "/", env.login().Header.Get("Location"))
	assert.Equal(t, 1, env.sessions.Count())
	assert.Zero(t, env.fake.PublicOrganizationCalls())

	resp, body := env.get("/user")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"name":"Alice"}`, body)
}

func TestValidatorOnlyInCustomErrorVariant(t *testing.T) {
	env := newTestEnv(t, config.VariantGitHubGoogle)
	env.fake.SetOrganizations("other")

	require.Equal(t, "/", env.login().Header.Get("Location"))
	assert.Equal(t, 0, env.fake.OrganizationCalls())
}

func TestGenericErrorWithoutErrorPage(t *testing.T) {
	env := newTestEnv(t, config.VariantLogout)
	env.fake.FailToken(true)

	require.Equal(t, "/error", env.login().Header.Get("Location"))

	_, body := env.getJSON("/error")
	var msg messageResponse
	require.NoError(t, json.Unmarshal([]byte(body), &msg))
	assert.Equal(t, genericLoginError, msg.Message)
}

func TestSimpleVariantFlow(t *testing.T) {
	env := newTestEnv(t, config.VariantSimple)

	resp, _ := env.get("/")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/oauth2/authorization/github", resp.Header.Get("Location"))

	require.Equal(t, "/", env.login().Header.Get("Location"))

	resp, body := env.get("/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Alice")

	// The simple variant has no user endpoint.
	resp, _ = env.get("/user")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestClickVariantHasNoLogout(t *testing.T) {
	env := newTestEnv(t, config.VariantClick)
	require.Equal(t, "/", env.login().Header.Get("Location"))

	resp, _ := env.do(http.MethodPost, "/logout", nil)
	assert.NotEqual(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, env.sessions.Count())
	assert.Empty(t, env.cookie("XSRF-TOKEN"), "click variant issues no CSRF cookie")
}

func TestExpiredSessionCookieIsCleared(t *testing.T) {
	env := newTestEnv(t, config.VariantLogout)
	require.Equal(t, "/", env.login().Header.Get("Location"))

	id := env.cookie("SESSION")
	env.sessions.Delete(id)

	resp, _ := env.get("/user")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, env.cookie("SESSION"))
}

func TestAuthorizeSetsStateCookie(t *testing.T) {
	env := newTestEnv(t, config.VariantLogout)

	resp, _ := env.get("/oauth2/authorization/github")
	require.Equal(t, http.StatusFound, resp.StatusCode)

	providerURL, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(providerURL.String(), env.fake.Server.URL))

	var state *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "OAUTH2_STATE" {
			state = c
		}
	}
	require.NotNil(t, state)
	assert.True(t, state.HttpOnly)
	assert.Equal(t, "/login/oauth2/code/", state.Path)
	assert.Equal(t, providerURL.Query().Get("state"), state.Value)
	assert.Equal(t, 1, env.sessions.PendingCount())
}
