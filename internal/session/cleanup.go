package session

import (
	"log/slog"
)

// cleanupLoop runs in a background goroutine and periodically cleans up expired entries.
// It runs every minute (configured by cleanupTicker) and stops when the stopCleanup channel is closed.
func (m *Manager) cleanupLoop() {
	for {
		select {
		case <-m.cleanupTicker.C:
			m.cleanup()
		case <-m.stopCleanup:
			return
		}
	}
}

// cleanup removes expired sessions, abandoned pending logins and unread
// flashes.
func (m *Manager) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var sessions, pending, flashes int

	for id, s := range m.sessions {
		if now.After(s.ExpiresAt) {
			slog.Debug("session expired",
				"session_id", ShortID(id),
				"registration", s.Principal.RegistrationID,
			)
			delete(m.sessions, id)
			sessions++
		}
	}

	for state, pl := range m.pending {
		if now.After(pl.ExpiresAt) {
			delete(m.pending, state)
			pending++
		}
	}

	for id, f := range m.flashes {
		if now.After(f.expiresAt) {
			delete(m.flashes, id)
			flashes++
		}
	}

	if sessions+pending+flashes > 0 {
		slog.Info("cleaned up expired entries",
			"sessions", sessions,
			"pending_logins", pending,
			"flashes", flashes,
		)
	}
}
