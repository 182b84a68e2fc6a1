package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/al-bashkir/social-login/internal/principal"
)

// maxUserInfoBytes caps the user-info response body.
const maxUserInfoBytes = 1 << 20

// FetchPrincipal loads the user's attributes with the access token and maps
// them onto a Principal. Issuer registrations verify the ID token (when the
// token response carries one) and use the discovered user-info endpoint unless
// an explicit one is configured.
func (p *Provider) FetchPrincipal(ctx context.Context, token *oauth2.Token) (*principal.Principal, error) {
	ctx, cancel := context.WithTimeout(p.clientContext(ctx), p.timeout)
	defer cancel()

	attrs := make(map[string]any)

	if p.oidcProvider != nil {
		if err := p.mergeIDTokenClaims(ctx, token, attrs); err != nil {
			return nil, err
		}
	}

	var (
		info map[string]any
		err  error
	)
	if p.oidcProvider != nil && p.registration.UserInfoEndpoint == "" {
		info, err = p.fetchOIDCUserInfo(ctx, token)
	} else {
		info, err = p.fetchUserInfo(ctx, token)
	}
	if err != nil {
		return nil, err
	}

	// ID token and user-info must describe the same subject.
	if sub, ok := attrs["sub"]; ok {
		if infoSub, ok := info["sub"]; ok && fmt.Sprint(infoSub) != fmt.Sprint(sub) {
			return nil, fmt.Errorf("%w: user info subject does not match ID token", ErrUserInfo)
		}
	}

	for k, v := range info {
		attrs[k] = v
	}

	pr, err := principal.FromAttributes(
		p.registration.RegistrationID,
		p.ProviderName(),
		p.registration.UserIDAttribute,
		p.registration.UserNameAttribute,
		attrs,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUserInfo, err)
	}

	return pr, nil
}

// fetchUserInfo calls the registration's user-info endpoint with the bearer
// token and decodes the JSON object it returns.
func (p *Provider) fetchUserInfo(ctx context.Context, token *oauth2.Token) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.registration.UserInfoEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUserInfo, err)
	}
	req.Header.Set("Accept", "application/json")
	token.SetAuthHeader(req)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUserInfo, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: user info endpoint returned status %d", ErrUserInfo, resp.StatusCode)
	}

	var info map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUserInfoBytes)).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: failed to decode user info: %w", ErrUserInfo, err)
	}
	if info == nil {
		return nil, fmt.Errorf("%w: user info response is empty", ErrUserInfo)
	}

	return info, nil
}

// fetchOIDCUserInfo calls the discovered user-info endpoint.
func (p *Provider) fetchOIDCUserInfo(ctx context.Context, token *oauth2.Token) (map[string]any, error) {
	userInfo, err := p.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUserInfo, err)
	}

	var info map[string]any
	if err := userInfo.Claims(&info); err != nil {
		return nil, fmt.Errorf("%w: failed to parse user info claims: %w", ErrUserInfo, err)
	}
	return info, nil
}

// mergeIDTokenClaims verifies the ID token (signature, issuer, audience,
// expiry) and copies its claims into dst. Token responses without an ID token
// are accepted; the user-info call then carries the identity alone.
func (p *Provider) mergeIDTokenClaims(ctx context.Context, token *oauth2.Token, dst map[string]any) error {
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		slog.Debug("token response has no id_token", "registration", p.registration.RegistrationID)
		return nil
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return fmt.Errorf("%w: failed to verify ID token: %w", ErrUserInfo, err)
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return fmt.Errorf("%w: failed to parse ID token claims: %w", ErrUserInfo, err)
	}
	for k, v := range claims {
		dst[k] = v
	}
	return nil
}
