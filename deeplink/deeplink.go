// Package deeplink parses the app://oauth-callback URLs through which the
// browser hands a completed vendor login back to the running application,
// and round-trips the correlation state that links a callback to the
// provider that initiated it.
package deeplink

import (
	"encoding/json"
	"fmt"
	"net/url"

	"cloudsave/models"
	"cloudsave/provider"
)

// Scheme is the URL scheme registered for the desktop application
const Scheme = "app"

// Host is the deep-link host reserved for OAuth callbacks
const Host = "oauth-callback"

// Callback is a parsed OAuth deep link
type Callback struct {
	Code     string
	State    string
	Provider models.CloudProvider
}

// correlationState is the structured form carried through the vendor
// redirect
type correlationState struct {
	Provider models.CloudProvider `json:"provider"`
}

// EncodeState builds the correlation state embedded in an authorization
// URL. It must survive URL-encoding and JSON-encoding round trips.
func EncodeState(p models.CloudProvider) string {
	raw, _ := json.Marshal(correlationState{Provider: p})
	return string(raw)
}

// DecodeState resolves the provider a callback belongs to. The structured
// JSON form is tried first; a plain provider name is accepted as a
// fallback for callers that pass the bare identifier as state.
func DecodeState(state string) (models.CloudProvider, error) {
	if state == "" {
		return "", fmt.Errorf("%w: empty state", provider.ErrUnsupportedProvider)
	}

	// The vendor may hand the state back still URL-encoded
	decoded := state
	if unescaped, err := url.QueryUnescape(state); err == nil {
		decoded = unescaped
	}

	var structured correlationState
	if err := json.Unmarshal([]byte(decoded), &structured); err == nil && structured.Provider != "" {
		decoded = string(structured.Provider)
	}

	name, err := models.ParseProvider(decoded)
	if err != nil {
		return "", fmt.Errorf("%w: %q", provider.ErrUnsupportedProvider, decoded)
	}
	return name, nil
}

// Parse extracts the authorization code and correlation state from a deep
// link URL and resolves its provider
func Parse(raw string) (*Callback, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid deep link: %w", err)
	}
	if parsed.Scheme != Scheme || parsed.Host != Host {
		return nil, fmt.Errorf("not an oauth callback link: %s://%s", parsed.Scheme, parsed.Host)
	}

	query := parsed.Query()
	code := query.Get("code")
	if code == "" {
		return nil, provider.ErrMissingCode
	}

	state := query.Get("state")
	name, err := DecodeState(state)
	if err != nil {
		return nil, err
	}

	return &Callback{Code: code, State: state, Provider: name}, nil
}

// BuildURL assembles the deep link the redirect page sends the desktop
// application
func BuildURL(code, state string) string {
	return fmt.Sprintf("%s://%s?code=%s&state=%s",
		Scheme, Host, url.QueryEscape(code), url.QueryEscape(state))
}
