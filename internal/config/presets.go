package config

// Provider preset names accepted in registrations.<id>.provider.
const (
	ProviderGitHub = "github"
	ProviderGoogle = "google"
)

// orgScope lets the organization check see private GitHub memberships.
const orgScope = "read:org"

// preset holds the well-known endpoints of a provider. Values are only used
// where the registration leaves the field empty.
type preset struct {
	authorizationEndpoint string
	tokenEndpoint         string
	userInfoEndpoint      string
	issuer                string
	scopes                []string
	userIDAttribute       string
	userNameAttribute     string
}

var presets = map[string]preset{
	ProviderGitHub: {
		authorizationEndpoint: "https://github.com/login/oauth/authorize",
		tokenEndpoint:         "https://github.com/login/oauth/access_token",
		userInfoEndpoint:      "https://api.github.com/user",
		scopes:                []string{"read:user"},
		userIDAttribute:       "id",
		userNameAttribute:     "name",
	},
	ProviderGoogle: {
		issuer:            "https://accounts.google.com",
		scopes:            []string{"openid", "profile", "email"},
		userIDAttribute:   "sub",
		userNameAttribute: "name",
	},
}

func (p preset) apply(r *RegistrationConfig) {
	// Explicit endpoints win over discovery.
	explicit := r.AuthorizationEndpoint != "" || r.TokenEndpoint != "" || r.UserInfoEndpoint != ""

	if r.AuthorizationEndpoint == "" {
		r.AuthorizationEndpoint = p.authorizationEndpoint
	}
	if r.TokenEndpoint == "" {
		r.TokenEndpoint = p.tokenEndpoint
	}
	if r.UserInfoEndpoint == "" {
		r.UserInfoEndpoint = p.userInfoEndpoint
	}
	if r.Issuer == "" && !explicit {
		r.Issuer = p.issuer
	}
	if len(r.Scopes) == 0 {
		r.Scopes = append([]string(nil), p.scopes...)
	}
	if r.UserIDAttribute == "" {
		r.UserIDAttribute = p.userIDAttribute
	}
	if r.UserNameAttribute == "" {
		r.UserNameAttribute = p.userNameAttribute
	}
}
