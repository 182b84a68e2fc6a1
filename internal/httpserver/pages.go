package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/al-bashkir/social-login/internal/config"
)

type registrationLink struct {
	ID    string
	Label string
}

type indexData struct {
	Variant       string
	Registrations []registrationLink
	User          string
	UserEndpoint  bool
	Logout        bool
	ErrorPage     bool
	CSRFCookie    string
	CSRFHeader    string
}

func (s *Server) registrationLinks() []registrationLink {
	ids := s.providers.IDs()
	links := make([]registrationLink, 0, len(ids))
	for _, id := range ids {
		label := id
		if reg, ok := s.cfg.Registrations[id]; ok {
			switch reg.Provider {
			case config.ProviderGitHub:
				label = "GitHub"
			case config.ProviderGoogle:
				label = "Google"
			}
		}
		if label == id && id != "" {
			label = strings.ToUpper(id[:1]) + id[1:]
		}
		links = append(links, registrationLink{ID: id, Label: label})
	}
	return links
}

// renderIndex renders the landing page
func (s *Server) renderIndex(w http.ResponseWriter, data indexData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		slog.Error("failed to render index template", "error", err)
	}
}

// renderError renders the error page
func (s *Server) renderError(w http.ResponseWriter, status int, errMsg string) {
	data := map[string]string{
		"Error": errMsg,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)

	if err := s.templates.ExecuteTemplate(w, "error.html", data); err != nil {
		slog.Error("failed to render error template", "error", err)
	}
}

// writeJSON writes v as the JSON response body
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort: headers/status are already written.
		slog.Error("failed to encode JSON response", "error", err)
	}
}
