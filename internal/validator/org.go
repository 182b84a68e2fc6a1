package validator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v74/github"

	"github.com/al-bashkir/social-login/internal/config"
	"github.com/al-bashkir/social-login/internal/logsanitize"
	"github.com/al-bashkir/social-login/internal/principal"
)

// OrgMembership rejects GitHub principals that do not belong to Organization.
// Principals from other providers pass unchanged.
type OrgMembership struct {
	Organization string
	Message      string

	// APIBaseURL overrides https://api.github.com/ (GitHub Enterprise, tests).
	APIBaseURL string
}

// NewOrgMembership builds the validator from the validation config.
func NewOrgMembership(cfg config.ValidationConfig) *OrgMembership {
	return &OrgMembership{
		Organization: cfg.Organization,
		Message:      cfg.Message,
		APIBaseURL:   cfg.APIURL,
	}
}

// Validate lists the token owner's organizations, private memberships
// included, and looks for the configured one. Private memberships are only
// visible with the read:org scope.
func (v *OrgMembership) Validate(ctx context.Context, p *principal.Principal, client *http.Client) (*principal.Principal, error) {
	if p.Provider != config.ProviderGitHub {
		return p, nil
	}

	gh, err := v.client(client)
	if err != nil {
		return nil, err
	}

	// The public /users/{login}/orgs listing hides private memberships, so
	// only the token owner's own listing is consulted.
	opts := &github.ListOptions{PerPage: 100}
	for {
		orgs, resp, err := gh.Organizations.List(ctx, "", opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list organizations: %w", err)
		}

		for _, org := range orgs {
			if strings.EqualFold(org.GetLogin(), v.Organization) {
				return p, nil
			}
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	slog.Info("principal is not an organization member",
		"registration", p.RegistrationID,
		"user_id", logsanitize.Sanitize(p.ID),
		"organization", v.Organization,
	)

	return nil, Reject(v.message())
}

func (v *OrgMembership) client(httpClient *http.Client) (*github.Client, error) {
	gh := github.NewClient(httpClient)
	if v.APIBaseURL == "" {
		return gh, nil
	}

	base, err := url.Parse(strings.TrimSuffix(v.APIBaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid validation api_url: %w", err)
	}
	gh.BaseURL = base
	return gh, nil
}

func (v *OrgMembership) message() string {
	if v.Message != "" {
		return v.Message
	}
	return "Not a member of the required organization"
}
