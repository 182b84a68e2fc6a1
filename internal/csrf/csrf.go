// Package csrf implements double-submit cookie protection for state-changing
// requests. Tokens are HMAC-signed so the server can tell its own tokens from
// forged ones even when no session exists yet.
package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/al-bashkir/social-login/internal/config"
	"github.com/al-bashkir/social-login/internal/logsanitize"
)

var (
	// ErrMissingToken is returned when the request carries no token or the
	// client has never been issued one.
	ErrMissingToken = errors.New("csrf: missing token")

	// ErrMismatch is returned when the submitted token differs from the
	// expected one.
	ErrMismatch = errors.New("csrf: token mismatch")

	// ErrInvalidSignature is returned when a token was not signed by this server.
	ErrInvalidSignature = errors.New("csrf: invalid signature")
)

// formField is the form parameter accepted when a header cannot be set.
const formField = "_csrf"

// TokenSource returns the CSRF token bound to the request's session, if any.
type TokenSource func(r *http.Request) (token string, ok bool)

// Guard issues and verifies CSRF tokens.
type Guard struct {
	key          []byte
	cookieName   string
	headerName   string
	secure       bool
	sessionToken TokenSource
}

// New creates a guard. An empty signing key gets a random per-process key,
// which invalidates outstanding tokens on restart.
func New(cfg config.CSRFConfig, secure bool, sessionToken TokenSource) (*Guard, error) {
	key := []byte(cfg.SigningKey)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
	}
	if sessionToken == nil {
		sessionToken = func(*http.Request) (string, bool) { return "", false }
	}

	return &Guard{
		key:          key,
		cookieName:   cfg.CookieName,
		headerName:   cfg.HeaderName,
		secure:       secure,
		sessionToken: sessionToken,
	}, nil
}

// CookieName returns the name of the readable token cookie.
func (g *Guard) CookieName() string { return g.cookieName }

// HeaderName returns the header clients echo the token in.
func (g *Guard) HeaderName() string { return g.headerName }

// NewToken returns a fresh signed token: hex(hmac(key, r)) + "_" + hex(r).
func (g *Guard) NewToken() string {
	randomData := make([]byte, 32)
	if _, err := rand.Read(randomData); err != nil {
		// Not recoverable; crypto/rand does not fail under normal operation.
		panic("csrf: random number generation failed: " + err.Error())
	}
	return hex.EncodeToString(g.sign(randomData)) + "_" + hex.EncodeToString(randomData)
}

// Verify checks that token carries a valid signature.
func (g *Guard) Verify(token string) error {
	mac, data, ok := strings.Cut(token, "_")
	if !ok {
		return ErrInvalidSignature
	}

	actualMac, err := hex.DecodeString(mac)
	if err != nil {
		return ErrInvalidSignature
	}
	randomData, err := hex.DecodeString(data)
	if err != nil || len(randomData) == 0 {
		return ErrInvalidSignature
	}

	if !hmac.Equal(actualMac, g.sign(randomData)) {
		return ErrInvalidSignature
	}
	return nil
}

func (g *Guard) sign(data []byte) []byte {
	hasher := hmac.New(sha256.New, g.key)
	hasher.Write(data)
	return hasher.Sum(nil)
}

// Issue sends token in the readable cookie. The cookie is not HttpOnly so the
// page's script can copy it into the request header.
func (g *Guard) Issue(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     g.cookieName,
		Value:    token,
		Path:     "/",
		Secure:   g.secure,
		HttpOnly: false,
		SameSite: http.SameSiteLaxMode,
	})
}

// Rotate issues a fresh anonymous token and returns it.
func (g *Guard) Rotate(w http.ResponseWriter) string {
	token := g.NewToken()
	g.Issue(w, token)
	return token
}

// expected returns the token the request must present: the session's token,
// or for anonymous clients the signed token from their cookie.
func (g *Guard) expected(r *http.Request) string {
	if token, ok := g.sessionToken(r); ok && token != "" {
		return token
	}
	c, err := r.Cookie(g.cookieName)
	if err != nil || g.Verify(c.Value) != nil {
		return ""
	}
	return c.Value
}

// Check validates a state-changing request.
func (g *Guard) Check(r *http.Request) error {
	expected := g.expected(r)
	if expected == "" {
		return ErrMissingToken
	}

	submitted := r.Header.Get(g.headerName)
	if submitted == "" {
		submitted = r.PostFormValue(formField)
	}
	if submitted == "" {
		return ErrMissingToken
	}

	if subtle.ConstantTimeCompare([]byte(submitted), []byte(expected)) != 1 {
		return ErrMismatch
	}
	return g.Verify(submitted)
}

// Middleware rejects unsafe requests without a valid token with 403 and keeps
// the token cookie in sync with the session on safe ones.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSafeMethod(r.Method) {
			g.sync(w, r)
			next.ServeHTTP(w, r)
			return
		}

		if err := g.Check(r); err != nil {
			slog.Warn("csrf check failed",
				"method", logsanitize.Sanitize(r.Method),
				"path", logsanitize.Sanitize(r.URL.Path),
				"error", err,
			)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// sync makes sure the client holds the token it will be asked for.
func (g *Guard) sync(w http.ResponseWriter, r *http.Request) {
	current := ""
	if c, err := r.Cookie(g.cookieName); err == nil {
		current = c.Value
	}

	if token, ok := g.sessionToken(r); ok && token != "" {
		if current != token {
			g.Issue(w, token)
		}
		return
	}

	if current == "" || g.Verify(current) != nil {
		g.Rotate(w)
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}
