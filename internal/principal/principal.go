// Package principal defines the authenticated end-user identity built from a
// provider's user-info response.
package principal

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoIdentity is returned when a user-info response carries neither an id
// nor a display name.
var ErrNoIdentity = errors.New("user info has no usable id or name attribute")

// Principal identifies an authenticated end user. It is built once from the
// provider's user-info response and never modified afterwards.
type Principal struct {
	// ID is the provider-scoped stable identifier.
	ID string `json:"id"`

	// DisplayName is what GET /user returns as "name".
	DisplayName string `json:"name"`

	// Provider is the preset the registration was built from (github, google),
	// or the registration id for custom providers.
	Provider string `json:"provider"`

	// RegistrationID names the registration that produced this principal.
	RegistrationID string `json:"registration_id"`

	// Attributes are the raw user-info attributes.
	Attributes map[string]any `json:"-"`
}

// FromAttributes builds a Principal from raw user-info attributes.
// The display name comes from nameAttr, falling back to "login" (GitHub users
// without a public name) and then to the id. The id comes from idAttr,
// falling back to the display name.
func FromAttributes(registrationID, provider, idAttr, nameAttr string, attrs map[string]any) (*Principal, error) {
	if attrs == nil {
		attrs = map[string]any{}
	}

	name, _ := lookupString(attrs, nameAttr)
	if name == "" {
		name, _ = lookupString(attrs, "login")
	}

	id := ""
	if idAttr != "" {
		id, _ = lookupString(attrs, idAttr)
	}
	if id == "" {
		id = name
	}
	if name == "" {
		name = id
	}

	if id == "" {
		return nil, ErrNoIdentity
	}

	if provider == "" {
		provider = registrationID
	}

	return &Principal{
		ID:             id,
		DisplayName:    name,
		Provider:       provider,
		RegistrationID: registrationID,
		Attributes:     copyAttributes(attrs),
	}, nil
}

// Attribute returns the attribute at a dot-separated path, e.g. "plan.name".
func (p *Principal) Attribute(path string) (any, bool) {
	v, err := nestedAttribute(p.Attributes, path)
	if err != nil {
		return nil, false
	}
	return v, true
}

// StringAttribute returns a scalar attribute rendered as a string.
func (p *Principal) StringAttribute(path string) (string, bool) {
	return lookupString(p.Attributes, path)
}

// lookupString resolves path and renders scalars as strings. JSON numbers
// decode as float64, so integral values are printed without a fraction
// (GitHub user ids).
func lookupString(attrs map[string]any, path string) (string, bool) {
	if path == "" {
		return "", false
	}
	v, err := nestedAttribute(attrs, path)
	if err != nil {
		return "", false
	}

	switch val := v.(type) {
	case string:
		return val, val != ""
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10), true
		}
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		return "", false
	}
}

// nestedAttribute retrieves an attribute using dot notation.
func nestedAttribute(attrs map[string]any, path string) (any, error) {
	parts := strings.Split(path, ".")

	var current any = attrs
	for i, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("attribute path '%s' not found at level %d (%s)", path, i, part)
		}

		current, ok = m[part]
		if !ok {
			return nil, fmt.Errorf("attribute '%s' not found in path '%s'", part, path)
		}
	}

	return current, nil
}

func copyAttributes(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
