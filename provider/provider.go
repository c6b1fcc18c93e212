package provider

import (
	"context"
	"fmt"

	"cloudsave/models"
)

// Provider is the capability contract every storage backend satisfies.
// Operations are scoped by an explicitly passed access token; adapters hold
// no session state and never retry internally.
type Provider interface {
	// Name returns the provider identifier
	Name() models.CloudProvider

	// AuthCodeURL builds the vendor authorization URL carrying the given
	// correlation state
	AuthCodeURL(state string) string

	// Authenticate exchanges an authorization code for a fresh credential
	Authenticate(ctx context.Context, code string) (*models.Credential, error)

	// Refresh exchanges a refresh token for a new access token. Providers
	// that rotate refresh tokens return the new one; others keep the old.
	Refresh(ctx context.Context, refreshToken string) (*models.Credential, error)

	// Upload writes content to remotePath inside the provider's private
	// root, creating missing intermediate folders and overwriting an
	// existing object at that exact path
	Upload(ctx context.Context, accessToken string, content []byte, remotePath string) (models.RemoteObject, error)

	// Download returns the content of the object with the given id
	Download(ctx context.Context, accessToken, objectID string) ([]byte, error)

	// List returns the immediate children of path (empty path: the private
	// root). A non-existent path yields an empty slice, not an error.
	List(ctx context.Context, accessToken, path string) ([]models.RemoteObject, error)

	// Delete removes the object with the given id
	Delete(ctx context.Context, accessToken, objectID string) error

	// CreateFolder creates a folder under parentID (empty: the private
	// root). Duplicate-name behavior is adapter-defined.
	CreateFolder(ctx context.Context, accessToken, name, parentID string) (models.RemoteObject, error)
}

// Registry holds the pre-built adapter instances. Adapters are stateless
// apart from configuration, so one instance per provider is enough.
type Registry struct {
	providers map[models.CloudProvider]Provider
}

// NewRegistry builds a registry from the given adapters
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[models.CloudProvider]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get returns the adapter for a known provider
func (r *Registry) Get(name models.CloudProvider) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, name)
	}
	return p, nil
}

// Resolve parses a raw provider string (including legacy aliases) and
// returns its adapter
func (r *Registry) Resolve(raw string) (Provider, error) {
	name, err := models.ParseProvider(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, raw)
	}
	return r.Get(name)
}
