package httpserver

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/al-bashkir/social-login/internal/logsanitize"
	"github.com/al-bashkir/social-login/internal/oauth"
	"github.com/al-bashkir/social-login/internal/session"
	"github.com/al-bashkir/social-login/internal/validator"
)

// genericLoginError is shown when the variant has no error page of its own.
const genericLoginError = "Login failed. Please try again."

// handleAuthorize starts the authorization-code flow for a registration:
// it records the pending login, binds its state to the browser and redirects
// to the provider.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	registrationID := r.PathValue("registrationId")

	provider, ok := s.providers.Lookup(registrationID)
	if !ok {
		slog.Warn("unknown registration", // #nosec G706 -- values sanitized via logsanitize
			"request_id", RequestIDFromContext(r.Context()),
			"registration", logsanitize.Sanitize(registrationID),
		)
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown registration"})
		return
	}

	flow, err := provider.StartAuthFlow(r.Context())
	if err != nil {
		slog.Error("failed to start auth flow",
			"request_id", RequestIDFromContext(r.Context()),
			"registration", registrationID,
			"error", err,
		)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if _, err := s.sessions.SavePending(flow.State, registrationID, flow.CodeVerifier); err != nil {
		slog.Error("failed to save pending login",
			"request_id", RequestIDFromContext(r.Context()),
			"registration", registrationID,
			"error", err,
		)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.setCookie(w, stateCookie, flow.State, stateCookiePath, s.cfg.LoginTimeout())

	slog.Debug("redirecting to provider",
		"request_id", RequestIDFromContext(r.Context()),
		"registration", registrationID,
	)

	http.Redirect(w, r, flow.AuthURL, http.StatusFound)
}

// handleCallback completes the authorization-code flow:
// 1. Check the provider's answer and the state against the browser's cookie
// 2. Take the pending login (single use)
// 3. Exchange the code for a token (with PKCE)
// 4. Fetch the user's attributes and build the principal
// 5. Run the principal validator
// 6. Replace any previous session with a new one
//
// Any failure creates no session and sends the browser to /error.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	registrationID := r.PathValue("registrationId")

	q := r.URL.Query()
	code := q.Get("code")
	state := q.Get("state")
	errorParam := q.Get("error")
	errorDesc := q.Get("error_description")

	slog.Info("callback received", // #nosec G706 -- values sanitized via logsanitize
		"request_id", RequestIDFromContext(ctx),
		"registration", logsanitize.Sanitize(registrationID),
		"code_present", code != "",
		"state_present", state != "",
		"error_present", errorParam != "",
	)

	// The state cookie is single use whatever the outcome.
	s.expireCookie(w, stateCookie, stateCookiePath)

	if errorParam != "" {
		msg := errorDesc
		if msg == "" {
			msg = errorParam
		}
		s.failLogin(w, r, "Authentication failed: "+msg,
			fmt.Errorf("provider returned error %q", logsanitize.Sanitize(errorParam)))
		return
	}

	if code == "" || state == "" {
		s.failLogin(w, r, "Invalid callback parameters", errors.New("missing code or state"))
		return
	}

	c, err := r.Cookie(stateCookie)
	if err != nil || subtle.ConstantTimeCompare([]byte(c.Value), []byte(state)) != 1 {
		s.failLogin(w, r, "Login request was not started in this browser. Please try again.",
			errors.New("state does not match cookie"))
		return
	}

	pending, err := s.sessions.TakePending(state)
	if err != nil {
		s.failLogin(w, r, "Login request not found or expired. Please try again.", err)
		return
	}

	if pending.RegistrationID != registrationID {
		s.failLogin(w, r, "Invalid callback parameters",
			fmt.Errorf("state belongs to registration %q", pending.RegistrationID))
		return
	}

	provider, ok := s.providers.Lookup(registrationID)
	if !ok {
		s.failLogin(w, r, "Invalid callback parameters", errors.New("unknown registration"))
		return
	}

	token, err := provider.ExchangeCode(ctx, code, pending.CodeVerifier)
	if err != nil {
		s.failLogin(w, r, "Authentication failed. Please try again.", err)
		return
	}

	p, err := provider.FetchPrincipal(ctx, token)
	if err != nil {
		s.failLogin(w, r, "Could not load your profile. Please try again.", err)
		return
	}

	p, err = s.validator.Validate(ctx, p, provider.Client(ctx, token))
	if err != nil {
		if rejection, ok := validator.IsRejection(err); ok {
			s.failLogin(w, r, rejection.Message, err)
			return
		}
		s.failLogin(w, r, "Authentication failed. Please try again.", err)
		return
	}

	// Never reuse a session id across a login.
	if old, ok := SessionFromContext(ctx); ok {
		s.sessions.Delete(old.ID)
	}

	csrfToken := s.csrf.NewToken()
	sess, err := s.sessions.Create(p, csrfToken)
	if err != nil {
		s.failLogin(w, r, "Authentication failed. Please try again.", err)
		return
	}

	s.setSessionCookie(w, sess.ID)
	if s.caps.CSRF {
		s.csrf.Issue(w, csrfToken)
	}

	slog.Info("user authenticated successfully", // #nosec G706 -- values sanitized via logsanitize
		"request_id", RequestIDFromContext(ctx),
		"session_id", session.ShortID(sess.ID),
		"registration", p.RegistrationID,
		"user_id", logsanitize.Sanitize(p.ID),
		"name", logsanitize.Sanitize(p.DisplayName),
	)

	http.Redirect(w, r, "/", http.StatusFound)
}

// failLogin records the failure for /error and redirects there.
func (s *Server) failLogin(w http.ResponseWriter, r *http.Request, message string, cause error) {
	kind := "flow"
	if _, ok := validator.IsRejection(cause); ok {
		kind = "validation"
	} else if errors.Is(cause, oauth.ErrExchange) {
		kind = "exchange"
	} else if errors.Is(cause, oauth.ErrUserInfo) {
		kind = "user_info"
	} else if errors.Is(cause, session.ErrExpired) || errors.Is(cause, session.ErrNotFound) {
		kind = "state"
	}

	slog.Warn("login failed", // #nosec G706 -- values sanitized via logsanitize
		"request_id", RequestIDFromContext(r.Context()),
		"registration", logsanitize.Sanitize(r.PathValue("registrationId")),
		"kind", kind,
		"error", cause,
	)

	if !s.caps.ErrorPage {
		message = genericLoginError
	}

	if id, err := s.sessions.SetFlash(message); err == nil {
		s.setCookie(w, flashCookie, id, "/", s.cfg.LoginTimeout())
	}

	http.Redirect(w, r, "/error", http.StatusFound)
}
