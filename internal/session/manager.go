package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/al-bashkir/social-login/internal/principal"
)

// Manager manages sessions, pending logins and login-failure flashes
// in-memory with TTL-based cleanup. It is thread-safe.
type Manager struct {
	mu            sync.RWMutex
	sessions      map[string]*Session      // sessionID -> Session
	pending       map[string]*PendingLogin // state -> PendingLogin
	flashes       map[string]*flash        // flashID -> message
	idleTimeout   time.Duration
	loginTimeout  time.Duration
	now           func() time.Time
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	stopOnce      sync.Once
}

// NewManager creates a session manager. Sessions expire after idleTimeout
// without access; pending logins and flashes expire after loginTimeout.
// It automatically starts a background cleanup goroutine that runs every minute.
func NewManager(idleTimeout, loginTimeout time.Duration) *Manager {
	m := &Manager{
		sessions:      make(map[string]*Session),
		pending:       make(map[string]*PendingLogin),
		flashes:       make(map[string]*flash),
		idleTimeout:   idleTimeout,
		loginTimeout:  loginTimeout,
		now:           time.Now,
		cleanupTicker: time.NewTicker(1 * time.Minute),
		stopCleanup:   make(chan struct{}),
	}

	go m.cleanupLoop()

	return m
}

// Stop stops the session manager's cleanup goroutine. Safe to call twice.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.cleanupTicker.Stop()
		close(m.stopCleanup)
	})
}

// Create stores a new session for an authenticated principal.
// The session ID is generated using crypto/rand (64 hex characters).
func (m *Manager) Create(p *principal.Principal, csrfToken string) (*Session, error) {
	if p == nil {
		return nil, errors.New("session requires a principal")
	}

	sessionID, err := generateID(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := m.now()
	session := &Session{
		ID:        sessionID,
		Principal: p,
		CSRFToken: csrfToken,
		CreatedAt: now,
		LastSeen:  now,
		ExpiresAt: now.Add(m.idleTimeout),
	}

	m.mu.Lock()
	m.sessions[sessionID] = session
	m.mu.Unlock()

	out := *session
	return &out, nil
}

// Get retrieves a session by its ID and extends its idle timeout.
// Expired sessions are removed and reported as ErrExpired.
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}

	now := m.now()
	if now.After(session.ExpiresAt) {
		delete(m.sessions, sessionID)
		return nil, ErrExpired
	}

	session.LastSeen = now
	session.ExpiresAt = now.Add(m.idleTimeout)

	out := *session
	return &out, nil
}

// Delete removes a session. Deleting an unknown session is a no-op.
func (m *Manager) Delete(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// List returns a snapshot of all live sessions ordered by creation time.
func (m *Manager) List() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if now.After(s.ExpiresAt) {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// DeleteByPrefix removes the single session whose ID starts with prefix and
// returns its ID. It fails with ErrNotFound or ErrAmbiguous otherwise.
func (m *Manager) DeleteByPrefix(prefix string) (string, error) {
	if prefix == "" {
		return "", ErrNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var match string
	for id := range m.sessions {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		if match != "" {
			return "", ErrAmbiguous
		}
		match = id
	}
	if match == "" {
		return "", ErrNotFound
	}

	delete(m.sessions, match)
	return match, nil
}

// Count returns the current number of stored sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// SavePending records an authorization request keyed by its state.
func (m *Manager) SavePending(state, registrationID, codeVerifier string) (*PendingLogin, error) {
	if state == "" {
		return nil, errors.New("pending login requires a state")
	}

	now := m.now()
	pl := &PendingLogin{
		State:          state,
		RegistrationID: registrationID,
		CodeVerifier:   codeVerifier,
		CreatedAt:      now,
		ExpiresAt:      now.Add(m.loginTimeout),
	}

	m.mu.Lock()
	m.pending[state] = pl
	m.mu.Unlock()

	out := *pl
	return &out, nil
}

// TakePending removes and returns the pending login for state. A state can be
// taken once; replays get ErrNotFound.
func (m *Manager) TakePending(state string) (*PendingLogin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pl, ok := m.pending[state]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.pending, state)

	if m.now().After(pl.ExpiresAt) {
		return nil, ErrExpired
	}
	return pl, nil
}

// PendingCount returns the number of authorization requests in flight.
func (m *Manager) PendingCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pending)
}

// SetFlash stores a one-shot message and returns the id to look it up with.
func (m *Manager) SetFlash(message string) (string, error) {
	id, err := generateID(16)
	if err != nil {
		return "", fmt.Errorf("failed to generate flash ID: %w", err)
	}

	m.mu.Lock()
	m.flashes[id] = &flash{message: message, expiresAt: m.now().Add(m.loginTimeout)}
	m.mu.Unlock()

	return id, nil
}

// PopFlash returns and removes the message stored under id.
func (m *Manager) PopFlash(id string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.flashes[id]
	if !ok {
		return "", false
	}
	delete(m.flashes, id)

	if m.now().After(f.expiresAt) {
		return "", false
	}
	return f.message, true
}

// generateID returns n cryptographically random bytes as hex.
func generateID(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
