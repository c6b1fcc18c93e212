package services

import (
	"context"
	"log/slog"

	"cloudsave/deeplink"
	"cloudsave/models"
	"cloudsave/provider"
	"cloudsave/tokens"
)

// AuthService runs the authorization handshake: it builds vendor
// authorization URLs carrying correlation state, reconciles the deep-link
// callback with the provider that initiated it, and stores the resulting
// credential.
type AuthService struct {
	registry *provider.Registry
	tokens   *tokens.Store
	logger   *slog.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(registry *provider.Registry, store *tokens.Store, logger *slog.Logger) *AuthService {
	return &AuthService{
		registry: registry,
		tokens:   store,
		logger:   logger,
	}
}

// AuthURL builds the authorization URL for a provider, embedding the
// correlation state that routes the eventual callback back to it
func (s *AuthService) AuthURL(rawProvider string) (string, error) {
	adapter, err := s.registry.Resolve(rawProvider)
	if err != nil {
		return "", err
	}

	state := deeplink.EncodeState(adapter.Name())
	return adapter.AuthCodeURL(state), nil
}

// ExchangeCode trades an authorization code for tokens and stores them.
// Codes are single-use by vendor contract: a second exchange for the same
// code surfaces the adapter's failure rather than being swallowed.
func (s *AuthService) ExchangeCode(ctx context.Context, rawProvider, code string) (*models.Credential, error) {
	if code == "" {
		return nil, provider.ErrMissingCode
	}

	adapter, err := s.registry.Resolve(rawProvider)
	if err != nil {
		return nil, err
	}

	cred, err := adapter.Authenticate(ctx, code)
	if err != nil {
		s.logger.Warn("code exchange failed", "provider", adapter.Name(), "error", err)
		return nil, err
	}

	if err := s.tokens.Put(cred); err != nil {
		s.logger.Error("failed to persist credential", "provider", adapter.Name(), "error", err)
	}

	s.logger.Info("provider connected", "provider", adapter.Name(), "token", cred.Redacted())
	return cred, nil
}

// RefreshWithToken runs the refresh-token grant with a caller-supplied
// refresh token and stores the result
func (s *AuthService) RefreshWithToken(ctx context.Context, rawProvider, refreshToken string) (*models.Credential, error) {
	adapter, err := s.registry.Resolve(rawProvider)
	if err != nil {
		return nil, err
	}

	cred, err := adapter.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	if err := s.tokens.Put(cred); err != nil {
		s.logger.Error("failed to persist credential", "provider", adapter.Name(), "error", err)
	}
	return cred, nil
}

// HandleDeepLink consumes an app://oauth-callback URL delivered by the
// host platform, decodes its correlation state and completes the code
// exchange with the matching provider
func (s *AuthService) HandleDeepLink(ctx context.Context, rawURL string) (*models.Credential, error) {
	callback, err := deeplink.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return s.ExchangeCode(ctx, string(callback.Provider), callback.Code)
}

// Disconnect destroys a provider's stored credential
func (s *AuthService) Disconnect(rawProvider string) error {
	adapter, err := s.registry.Resolve(rawProvider)
	if err != nil {
		return err
	}
	return s.tokens.Delete(adapter.Name())
}
