package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/al-bashkir/social-login/internal/session"
)

const (
	// stateCookie binds an authorization request to the browser that started it.
	stateCookie     = "OAUTH2_STATE"
	stateCookiePath = callbackPrefix

	// flashCookie points at the last login failure message.
	flashCookie = "LOGIN_ERROR"
)

func (s *Server) setCookie(w http.ResponseWriter, name, value, path string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		MaxAge:   int(maxAge.Seconds()),
		Secure:   s.cfg.SecureCookies(),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) expireCookie(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		Secure:   s.cfg.SecureCookies(),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// setSessionCookie sends the session id as a browser-session cookie.
func (s *Server) setSessionCookie(w http.ResponseWriter, id string) {
	s.setCookie(w, s.cfg.Session.CookieName, id, "/", 0)
}

// sessionLoader attaches the session named by the session cookie to the
// request context. Unknown or expired ids are dropped from the browser.
func (s *Server) sessionLoader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(s.cfg.Session.CookieName)
		if err != nil || c.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		sess, err := s.sessions.Get(c.Value)
		if err != nil {
			slog.Debug("ignoring session cookie",
				"request_id", RequestIDFromContext(r.Context()),
				"session_id", session.ShortID(c.Value),
				"error", err,
			)
			s.expireCookie(w, s.cfg.Session.CookieName, "/")
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), sess)))
	})
}

// sessionCSRFToken feeds the CSRF guard the token of the loaded session.
func sessionCSRFToken(r *http.Request) (string, bool) {
	sess, ok := SessionFromContext(r.Context())
	if !ok {
		return "", false
	}
	return sess.CSRFToken, true
}
