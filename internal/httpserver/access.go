package httpserver

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/al-bashkir/social-login/internal/config"
	"github.com/al-bashkir/social-login/internal/logsanitize"
	"github.com/al-bashkir/social-login/internal/session"
)

const (
	authorizationPrefix = "/oauth2/authorization/"
	callbackPrefix      = "/login/oauth2/code/"
	logoutPath          = "/logout"
)

// isLoginPath reports whether path belongs to the login flow itself, which
// must stay reachable without a session.
func isLoginPath(path string) bool {
	return strings.HasPrefix(path, authorizationPrefix) || strings.HasPrefix(path, callbackPrefix)
}

// accessControl lets public paths and authenticated requests through and
// answers everything else according to the variant's entry point.
func (s *Server) accessControl(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		if isLoginPath(path) || s.caps.IsPublic(path) {
			next.ServeHTTP(w, r)
			return
		}
		if _, ok := SessionFromContext(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}

		slog.Debug("unauthenticated request to protected path", // #nosec G706 -- values sanitized via logsanitize
			"request_id", RequestIDFromContext(r.Context()),
			"method", logsanitize.Sanitize(r.Method),
			"path", logsanitize.Sanitize(path),
		)

		if s.caps.EntryPoint == config.EntryPointRedirect {
			if p := s.providers.Default(); p != nil {
				http.Redirect(w, r, authorizationPrefix+p.RegistrationID(), http.StatusFound)
				return
			}
		}

		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthenticated"})
	})
}

// logoutMiddleware handles POST /logout ahead of access control, so that
// logging out without a session still succeeds.
func (s *Server) logoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != logoutPath {
			next.ServeHTTP(w, r)
			return
		}

		if sess, ok := SessionFromContext(r.Context()); ok {
			s.sessions.Delete(sess.ID)
			slog.Info("user logged out",
				"request_id", RequestIDFromContext(r.Context()),
				"session_id", session.ShortID(sess.ID),
				"registration", sess.Principal.RegistrationID,
			)
		}

		s.expireCookie(w, s.cfg.Session.CookieName, "/")
		if s.caps.CSRF {
			s.csrf.Rotate(w)
		}

		writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
	})
}
