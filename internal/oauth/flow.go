package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

var (
	// ErrExchange marks a failed authorization-code exchange.
	ErrExchange = errors.New("code exchange failed")

	// ErrUserInfo marks a failed user-info fetch or an unusable response.
	ErrUserInfo = errors.New("user info fetch failed")
)

// AuthFlowData contains the data needed to initiate an authorization flow.
type AuthFlowData struct {
	// State is the anti-forgery state parameter
	State string

	// CodeVerifier is the PKCE code verifier (must be stored for token exchange)
	CodeVerifier string

	// AuthURL is the complete authorization URL to redirect the user to
	AuthURL string
}

// StartAuthFlow initiates an authorization flow with PKCE.
// It generates the state and the PKCE verifier, constructs the authorization
// URL with the registration's scopes, and returns the flow data.
func (p *Provider) StartAuthFlow(ctx context.Context) (*AuthFlowData, error) {
	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	verifier := oauth2.GenerateVerifier()

	authURL := p.oauth2Config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))

	return &AuthFlowData{
		State:        state,
		CodeVerifier: verifier,
		AuthURL:      authURL,
	}, nil
}

// ExchangeCode exchanges an authorization code for tokens at the token
// endpoint. The call is bounded by the provider timeout and never retried.
func (p *Provider) ExchangeCode(ctx context.Context, code, codeVerifier string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(p.clientContext(ctx), p.timeout)
	defer cancel()

	token, err := p.oauth2Config.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExchange, err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response has no access_token", ErrExchange)
	}

	return token, nil
}

// generateState creates a random state parameter.
// The state is 16 random bytes encoded as hex (32 characters).
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
