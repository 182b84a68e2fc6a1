package httpserver

import (
	"net/http"
	"strings"
)

type userResponse struct {
	Name string `json:"name"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message,omitempty"`
}

// handleUser returns the logged-in user's display name.
func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthenticated"})
		return
	}

	writeJSON(w, http.StatusOK, userResponse{Name: sess.Principal.DisplayName})
}

// handleError shows the last login failure of this browser once. Without one
// it renders a neutral page.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request) {
	var message string
	if c, err := r.Cookie(flashCookie); err == nil {
		message, _ = s.sessions.PopFlash(c.Value)
		s.expireCookie(w, flashCookie, "/")
	}

	status := http.StatusOK
	if message != "" {
		status = http.StatusUnauthorized
	}

	if acceptsJSON(r) {
		writeJSON(w, status, messageResponse{Message: message})
		return
	}

	s.renderError(w, status, message)
}

// handleIndex serves the landing page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := indexData{
		Variant:       string(s.cfg.Variant),
		Registrations: s.registrationLinks(),
		UserEndpoint:  s.caps.UserEndpoint,
		Logout:        s.caps.Logout,
		ErrorPage:     s.caps.ErrorPage,
		CSRFCookie:    s.csrf.CookieName(),
		CSRFHeader:    s.csrf.HeaderName(),
	}
	if sess, ok := SessionFromContext(r.Context()); ok {
		data.User = sess.Principal.DisplayName
	}

	s.renderIndex(w, data)
}

func acceptsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
