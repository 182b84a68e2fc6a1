package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/al-bashkir/social-login/internal/config"
	"github.com/al-bashkir/social-login/internal/daemon"
	"github.com/al-bashkir/social-login/internal/ipc"
)

// Version information (set via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Global flags
var (
	configFile string
	logLevel   string
	logFormat  string
	socketPath string
)

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitConfig  = 3
)

// defaultSocket is used by the sessions commands when the config cannot be read.
const defaultSocket = "/run/social-login/admin.sock"

var rootCmd = &cobra.Command{
	Use:   "social-login",
	Short: "OAuth2 social login service",
	Long: `Browser login through third-party OAuth2 providers such as GitHub and Google.

The service runs the authorization-code flow, keeps an in-memory session per
browser and serves the login page, GET /user and POST /logout. The variant
setting picks how much of that surface is enabled.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the login service",
	Long: `Start the HTTP server and, when listen.socket is set, the admin socket.

The service runs until SIGINT or SIGTERM and then shuts down gracefully.`,
	RunE: runServe,
}

// overrideExitCode is set by check-config so main() can call os.Exit() after
// cobra finishes. -1 means "use default".
var overrideExitCode = -1

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Long:  `Display version, commit hash, and build date.`,
	Run:   runVersion,
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate configuration file",
	Long: `Load and validate the configuration file without starting the service.

Exit codes:
  0 = Configuration is valid
  3 = Configuration error`,
	RunE: runCheckConfig,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and revoke sessions of a running service",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsRevokeCmd = &cobra.Command{
	Use:   "revoke <id-prefix>",
	Short: "Revoke the session whose ID starts with the given prefix",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsRevoke,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "/etc/social-login/config.yaml",
		"Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level (debug, info, warn, error) - overrides config file")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Log format (json, text) - overrides config file")

	sessionsCmd.PersistentFlags().StringVar(&socketPath, "socket", "",
		"Admin socket path - overrides config file")
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsRevokeCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(checkConfigCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}

	if overrideExitCode >= 0 {
		os.Exit(overrideExitCode)
	}
}

// runServe starts the daemon
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}

	config.SetupLogging(&cfg.Log)

	slog.Info("starting social login service",
		"version", version,
		"commit", commit,
		"build_date", buildDate,
		"config", configFile,
	)

	d, err := daemon.New(cfg, version)
	if err != nil {
		slog.Error("failed to create daemon", "error", err)
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	return d.Run(context.Background())
}

// runVersion displays version information
func runVersion(cmd *cobra.Command, args []string) {
	fmt.Printf("social-login version %s\n", version)
	fmt.Printf("  Commit:     %s\n", commit)
	fmt.Printf("  Build date: %s\n", buildDate)
	fmt.Printf("  Go version: %s\n", runtime.Version())
}

// runCheckConfig validates the configuration
func runCheckConfig(cmd *cobra.Command, args []string) error {
	fmt.Printf("Checking configuration: %s\n\n", configFile)

	loaded, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation failed:\n")
		fmt.Fprintf(os.Stderr, "   %v\n", err)
		overrideExitCode = ExitConfig
		return nil // exit code handled via overrideExitCode
	}
	cfg := loaded.Redact()

	fmt.Println("✅ Configuration is valid")
	fmt.Println()
	fmt.Println("Configuration summary:")
	fmt.Printf("  Variant:         %s\n", cfg.Variant)
	fmt.Printf("  HTTP Listen:     %s\n", cfg.Listen.HTTP)
	fmt.Printf("  Base URL:        %s\n", cfg.HTTP.BaseURL)
	fmt.Printf("  Admin Socket:    %s\n", orDisabled(cfg.Listen.Socket))
	fmt.Printf("  Idle Timeout:    %d seconds\n", cfg.Session.IdleTimeout)
	fmt.Printf("  Login Timeout:   %d seconds\n", cfg.Session.LoginTimeout)
	fmt.Printf("  Rate Limit:      %.1f req/s (burst %d)\n", cfg.HTTP.RateLimit, cfg.HTTP.RateBurst)
	fmt.Printf("  Log Level:       %s\n", cfg.Log.Level)
	fmt.Printf("  Log Format:      %s\n", cfg.Log.Format)
	fmt.Printf("  TLS Enabled:     %v\n", cfg.TLS.Enabled)
	if cfg.Validation.Organization != "" {
		fmt.Printf("  Organization:    %s\n", cfg.Validation.Organization)
	}

	for _, id := range cfg.RegistrationIDs() {
		reg := cfg.Registrations[id]
		fmt.Printf("\n  Registration %s:\n", id)
		fmt.Printf("    Provider:      %s\n", orDefault(reg.Provider, "custom"))
		fmt.Printf("    Client ID:     %s\n", reg.ClientID)
		fmt.Printf("    Client Secret: %s\n", reg.ClientSecret)
		fmt.Printf("    Redirect URI:  %s\n", reg.RedirectURI)
		fmt.Printf("    Scopes:        %s\n", strings.Join(reg.Scopes, " "))
	}

	fmt.Println("\n✅ Ready to start service")

	return nil
}

// adminClient builds a client for the admin socket of the running service.
func adminClient() *ipc.Client {
	path := socketPath
	if path == "" {
		path = defaultSocket
		// If config load fails, we still try with the default socket path
		if cfg, err := config.Load(configFile); err == nil && cfg.Listen.Socket != "" {
			path = cfg.Listen.Socket
		}
	}
	return ipc.NewClient(path)
}

// runSessionsList prints the live sessions
func runSessionsList(cmd *cobra.Command, args []string) error {
	list, err := adminClient().ListSessions(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No active sessions")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tREGISTRATION\tNAME\tCREATED\tEXPIRES")
	for _, s := range list {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			s.IDPrefix,
			s.RegistrationID,
			s.Name,
			s.CreatedAt.Local().Format(time.DateTime),
			s.ExpiresAt.Local().Format(time.DateTime),
		)
	}
	return w.Flush()
}

// runSessionsRevoke deletes one session by ID prefix
func runSessionsRevoke(cmd *cobra.Command, args []string) error {
	revoked, err := adminClient().RevokeSession(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	fmt.Printf("Revoked session %s\n", revoked)
	return nil
}

func orDisabled(s string) string {
	return orDefault(s, "(disabled)")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
