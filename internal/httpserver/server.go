// Package httpserver serves the login flow, the user endpoints and the
// landing page behind a middleware pipeline assembled from the variant's
// capabilities.
package httpserver

import (
	"context"
	"crypto/tls"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/al-bashkir/social-login/internal/config"
	"github.com/al-bashkir/social-login/internal/csrf"
	"github.com/al-bashkir/social-login/internal/oauth"
	"github.com/al-bashkir/social-login/internal/session"
	"github.com/al-bashkir/social-login/internal/validator"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static
var staticFS embed.FS

// Server is the HTTP server for the login flow and the user endpoints
type Server struct {
	cfg        *config.Config
	caps       config.Capabilities
	httpServer *http.Server
	mux        *http.ServeMux
	handler    http.Handler
	templates  *template.Template
	providers  *oauth.Registry
	sessions   *session.Manager
	validator  validator.Validator
	csrf       *csrf.Guard
	limiter    *IPRateLimiter
	version    string
}

// Option configures a Server.
type Option func(*Server)

// WithValidator replaces the principal validator chosen from the variant.
func WithValidator(v validator.Validator) Option {
	return func(s *Server) {
		s.validator = v
	}
}

// WithVersion sets the version reported by /health.
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, providers *oauth.Registry, sessions *session.Manager, opts ...Option) (*Server, error) {
	if providers == nil {
		return nil, errors.New("provider registry is required")
	}
	if sessions == nil {
		return nil, errors.New("session manager is required")
	}

	templates, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       cfg,
		caps:      cfg.Capabilities(),
		mux:       http.NewServeMux(),
		templates: templates,
		providers: providers,
		sessions:  sessions,
		version:   "dev",
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.validator == nil {
		s.validator = validator.AllowAll
		if s.caps.Validation {
			s.validator = validator.NewOrgMembership(cfg.Validation)
		}
	}

	s.csrf, err = csrf.New(cfg.CSRF, cfg.SecureCookies(), sessionCSRFToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSRF guard: %w", err)
	}

	if err := s.registerRoutes(); err != nil {
		return nil, err
	}

	pipeline := NewPipeline(securityHeadersMiddleware)
	if cfg.HTTP.RateLimit > 0 {
		s.limiter = NewIPRateLimiter(rate.Limit(cfg.HTTP.RateLimit), cfg.HTTP.RateBurst)
		pipeline.Use(s.limiter.Middleware)
	}
	pipeline.Use(recoveryMiddleware, requestIDMiddleware, loggingMiddleware, s.sessionLoader)
	if s.caps.CSRF {
		pipeline.Use(s.csrf.Middleware)
	}
	if s.caps.Logout {
		pipeline.Use(s.logoutMiddleware)
	}
	pipeline.Use(s.accessControl)
	s.handler = pipeline.Then(s.mux)

	s.httpServer = &http.Server{
		Addr:         cfg.Listen.HTTP,
		Handler:      s.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10*time.Second + 2*cfg.ProviderTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	// Configure TLS if enabled
	if cfg.TLS.Enabled {
		s.httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			CipherSuites: []uint16{
				tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			},
		}
	}

	return s, nil
}

func (s *Server) registerRoutes() error {
	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		return err
	}

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.Handle("GET /webjars/", http.FileServerFS(static))
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /error", s.handleError)
	s.mux.HandleFunc("GET "+authorizationPrefix+"{registrationId}", s.handleAuthorize)
	s.mux.HandleFunc("GET "+callbackPrefix+"{registrationId}", s.handleCallback)

	if s.caps.UserEndpoint {
		s.mux.HandleFunc("GET /user", s.handleUser)
	}

	return nil
}

// Handler returns the full middleware pipeline.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	slog.Info("starting HTTP server",
		"addr", s.cfg.Listen.HTTP,
		"tls", s.cfg.TLS.Enabled,
		"variant", s.cfg.Variant,
		"registrations", s.providers.IDs(),
	)

	if s.cfg.TLS.Enabled {
		return s.httpServer.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	}

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down HTTP server")
	s.Close()
	return s.httpServer.Shutdown(ctx)
}

// Close releases background resources without touching the listener.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}
