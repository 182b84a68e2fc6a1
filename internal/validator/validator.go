// Package validator decides whether an authenticated principal may hold a
// session. It runs after the user-info fetch and before the session is created.
package validator

import (
	"context"
	"errors"
	"net/http"

	"github.com/al-bashkir/social-login/internal/principal"
)

// Validator accepts or rejects a principal. The client is bound to the
// user's access token so implementations can call provider APIs on their
// behalf. Implementations return a *Rejection to deny the login; any other
// error means the check itself could not be performed.
type Validator interface {
	Validate(ctx context.Context, p *principal.Principal, client *http.Client) (*principal.Principal, error)
}

// Rejection denies a login with a message that is shown to the user.
type Rejection struct {
	Message string
}

func (r *Rejection) Error() string {
	return "principal rejected: " + r.Message
}

// Reject returns a Rejection carrying message.
func Reject(message string) error {
	return &Rejection{Message: message}
}

// IsRejection reports whether err (or anything it wraps) is a Rejection and
// returns it.
func IsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// Func adapts a function to the Validator interface.
type Func func(ctx context.Context, p *principal.Principal, client *http.Client) (*principal.Principal, error)

// Validate calls f.
func (f Func) Validate(ctx context.Context, p *principal.Principal, client *http.Client) (*principal.Principal, error) {
	return f(ctx, p, client)
}

// AllowAll accepts every principal unchanged.
var AllowAll Validator = Func(func(_ context.Context, p *principal.Principal, _ *http.Client) (*principal.Principal, error) {
	return p, nil
})
