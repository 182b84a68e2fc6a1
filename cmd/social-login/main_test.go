package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/al-bashkir/social-login/internal/ipc"
	"github.com/al-bashkir/social-login/internal/principal"
	"github.com/al-bashkir/social-login/internal/session"
)

func writeTestConfig(t *testing.T, path string, socketPath string) {
	t.Helper()

	data := fmt.Sprintf(`listen:
  http: "127.0.0.1:0"
  socket: %q
variant: logout
registrations:
  github:
    provider: github
    client_id: "test-client"
    client_secret: "super-secret"
http:
  base_url: "http://localhost:8080"
log:
  level: "info"
  format: "json"
`, socketPath)

	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
}

func useConfig(t *testing.T, path string) {
	t.Helper()

	oldCfg := configFile
	oldExit := overrideExitCode
	oldSocket := socketPath
	t.Cleanup(func() {
		configFile = oldCfg
		overrideExitCode = oldExit
		socketPath = oldSocket
	})
	configFile = path
	overrideExitCode = -1
	socketPath = ""
}

func TestRunCheckConfig_Valid(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	writeTestConfig(t, cfgPath, filepath.Join(tmpDir, "admin.sock"))
	useConfig(t, cfgPath)

	if err := runCheckConfig(nil, nil); err != nil {
		t.Fatalf("runCheckConfig failed: %v", err)
	}
	if overrideExitCode != -1 {
		t.Fatalf("overrideExitCode = %d, want -1 (unset)", overrideExitCode)
	}
}

func TestRunCheckConfig_Invalid(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")

	// Missing client_secret
	data := `listen:
  http: "127.0.0.1:0"
variant: logout
registrations:
  github:
    provider: github
    client_id: "test-client"
log:
  level: "info"
  format: "json"
`
	if err := os.WriteFile(cfgPath, []byte(data), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	useConfig(t, cfgPath)

	if err := runCheckConfig(nil, nil); err != nil {
		t.Fatalf("runCheckConfig returned unexpected error: %v", err)
	}
	if overrideExitCode != ExitConfig {
		t.Fatalf("overrideExitCode = %d, want %d (ExitConfig)", overrideExitCode, ExitConfig)
	}
}

func TestRunServe_ConfigLoadFailure(t *testing.T) {
	useConfig(t, filepath.Join(t.TempDir(), "does-not-exist.yaml"))

	if err := runServe(nil, nil); err == nil {
		t.Fatal("expected runServe to fail, got nil")
	}
}

func TestRunVersion(t *testing.T) {
	oldVersion, oldCommit, oldBuildDate := version, commit, buildDate
	t.Cleanup(func() {
		version, commit, buildDate = oldVersion, oldCommit, oldBuildDate
	})

	version = "1.2.3"
	commit = "deadbeef"
	buildDate = "2026-02-17"

	runVersion(nil, nil)
}

// startAdminSocket runs an admin socket over a session manager holding one session.
func startAdminSocket(t *testing.T, socket string) (*session.Manager, *session.Session) {
	t.Helper()

	sessions := session.NewManager(time.Hour, time.Minute)
	t.Cleanup(sessions.Stop)

	sess, err := sessions.Create(&principal.Principal{
		ID:             "1",
		DisplayName:    "Alice",
		Provider:       "github",
		RegistrationID: "github",
	}, "token")
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	server := ipc.NewServer(socket, ipc.NewSessionHandler(sessions))
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("failed to start admin socket: %v", err)
	}
	t.Cleanup(func() {
		if err := server.Stop(); err != nil {
			t.Errorf("server.Stop failed: %v", err)
		}
	})

	return sessions, sess
}

func TestRunSessionsListAndRevoke(t *testing.T) {
	tmpDir := t.TempDir()
	socket := filepath.Join(tmpDir, "admin.sock")
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	writeTestConfig(t, cfgPath, socket)
	useConfig(t, cfgPath)

	sessions, sess := startAdminSocket(t, socket)

	if err := runSessionsList(nil, nil); err != nil {
		t.Fatalf("runSessionsList failed: %v", err)
	}

	if err := runSessionsRevoke(nil, []string{sess.ID[:8]}); err != nil {
		t.Fatalf("runSessionsRevoke failed: %v", err)
	}
	if sessions.Count() != 0 {
		t.Fatalf("expected session to be revoked, %d left", sessions.Count())
	}

	if err := runSessionsRevoke(nil, []string{sess.ID[:8]}); err == nil {
		t.Fatal("expected revoking an unknown prefix to fail")
	}

	if err := runSessionsList(nil, nil); err != nil {
		t.Fatalf("runSessionsList on empty store failed: %v", err)
	}
}

func TestRunSessions_SocketFlagOverridesConfig(t *testing.T) {
	tmpDir := t.TempDir()
	useConfig(t, filepath.Join(tmpDir, "does-not-exist.yaml"))

	socket := filepath.Join(tmpDir, "other.sock")
	startAdminSocket(t, socket)
	socketPath = socket

	if err := runSessionsList(nil, nil); err != nil {
		t.Fatalf("runSessionsList failed: %v", err)
	}
}

func TestRunSessions_DaemonNotRunning(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	writeTestConfig(t, cfgPath, filepath.Join(tmpDir, "missing.sock"))
	useConfig(t, cfgPath)

	if err := runSessionsList(nil, nil); err == nil {
		t.Fatal("expected error when the service is not running")
	}
}
