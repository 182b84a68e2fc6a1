// Package daemon wires the login service together and runs it until it is
// told to stop.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/al-bashkir/social-login/internal/config"
	"github.com/al-bashkir/social-login/internal/httpserver"
	"github.com/al-bashkir/social-login/internal/ipc"
	"github.com/al-bashkir/social-login/internal/oauth"
	"github.com/al-bashkir/social-login/internal/session"
)

const (
	// discoveryTimeout bounds provider discovery at startup.
	discoveryTimeout = 30 * time.Second
	shutdownTimeout  = 30 * time.Second
)

// Daemon represents the main daemon process that coordinates all components.
type Daemon struct {
	cfg        *config.Config
	providers  *oauth.Registry
	sessionMgr *session.Manager
	httpServer *httpserver.Server
	ipcServer  *ipc.Server // nil when the admin socket is disabled
}

// New creates a new daemon with all components initialized.
func New(cfg *config.Config, version string) (*Daemon, error) {
	ctx, cancel := context.WithTimeout(context.Background(), discoveryTimeout)
	defer cancel()

	providers, err := oauth.NewRegistry(ctx, cfg.Registrations, oauth.WithTimeout(cfg.ProviderTimeout()))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	slog.Info("providers initialized",
		"variant", cfg.Variant,
		"registrations", providers.IDs(),
	)

	sessionMgr := session.NewManager(cfg.IdleTimeout(), cfg.LoginTimeout())

	slog.Info("session manager initialized",
		"idle_timeout", cfg.IdleTimeout(),
		"login_timeout", cfg.LoginTimeout(),
	)

	httpServer, err := httpserver.NewServer(cfg, providers, sessionMgr, httpserver.WithVersion(version))
	if err != nil {
		sessionMgr.Stop()
		return nil, fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	d := &Daemon{
		cfg:        cfg,
		providers:  providers,
		sessionMgr: sessionMgr,
		httpServer: httpServer,
	}

	if cfg.Listen.Socket != "" {
		d.ipcServer = ipc.NewServer(cfg.Listen.Socket, ipc.NewSessionHandler(sessionMgr))
	} else {
		slog.Info("admin socket disabled")
	}

	return d, nil
}

// Run starts all components and blocks until ctx is cancelled, SIGINT or
// SIGTERM arrives, or the HTTP server fails.
func (d *Daemon) Run(ctx context.Context) error {
	slog.Info("starting social login service")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start the admin socket synchronously to catch startup errors
	if d.ipcServer != nil {
		if err := d.ipcServer.Start(ctx); err != nil {
			d.httpServer.Close()
			d.sessionMgr.Stop()
			return fmt.Errorf("failed to start admin socket: %w", err)
		}
	}

	httpErrCh := make(chan error, 1)
	go func() {
		if err := d.httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErrCh <- err
		}
		close(httpErrCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err, ok := <-httpErrCh:
		if ok && err != nil {
			slog.Error("HTTP server failed", "error", err)
			runErr = fmt.Errorf("HTTP server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if d.ipcServer != nil {
		if err := d.ipcServer.Stop(); err != nil {
			slog.Error("error stopping admin socket", "error", err)
		}
	}

	if err := d.httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("error stopping HTTP server", "error", err)
	}

	d.sessionMgr.Stop()

	slog.Info("shutdown complete")
	return runErr
}
