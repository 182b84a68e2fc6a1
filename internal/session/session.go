// Package session provides the server-side session store for logged-in users
// and for authorization requests that are still in flight.
package session

import (
	"errors"
	"time"

	"github.com/al-bashkir/social-login/internal/principal"
)

var (
	// ErrNotFound is returned when no session or pending login matches.
	ErrNotFound = errors.New("session not found")

	// ErrExpired is returned when a session or pending login has timed out.
	ErrExpired = errors.New("session expired")

	// ErrAmbiguous is returned when an id prefix matches more than one session.
	ErrAmbiguous = errors.New("session id prefix is ambiguous")
)

// Session represents an authenticated browser session.
type Session struct {
	// ID is a unique identifier for this session (64-char hex string)
	ID string

	// Principal is the authenticated user. Never nil.
	Principal *principal.Principal

	// CSRFToken is the token state-changing requests must echo back.
	CSRFToken string

	CreatedAt time.Time
	LastSeen  time.Time

	// ExpiresAt moves forward on every access (idle timeout).
	ExpiresAt time.Time
}

// PendingLogin is an authorization request waiting for the provider callback.
type PendingLogin struct {
	// State is the OAuth2 state parameter the callback must echo
	State string

	// RegistrationID is the registration the request was started for
	RegistrationID string

	// CodeVerifier is the PKCE code verifier (stored to verify the code later)
	CodeVerifier string

	CreatedAt time.Time
	ExpiresAt time.Time
}

type flash struct {
	message   string
	expiresAt time.Time
}

// ShortID returns the first eight characters of a session id, which is what
// logs and the admin socket show.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
