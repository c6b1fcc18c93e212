// Package tokens holds the per-provider credentials and the refresh
// policy. The store keeps at most one credential per provider, loads them
// from persistent storage at startup and writes through on every change.
package tokens

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"cloudsave/models"
	"cloudsave/provider"
)

// Repository is the persistence collaborator the store writes through to
type Repository interface {
	Save(cred *models.Credential) error
	GetAll() ([]*models.Credential, error)
	Delete(p models.CloudProvider) error
}

// Store is the only mutable shared resource in the sync core. Refresh is
// single-flight per provider: concurrent callers observing an expired
// credential share one refresh call and its result.
type Store struct {
	mu       sync.Mutex
	creds    map[models.CloudProvider]*models.Credential
	inflight map[models.CloudProvider]*refreshCall

	repo     Repository
	registry *provider.Registry
	logger   *slog.Logger
}

type refreshCall struct {
	done chan struct{}
	cred *models.Credential
	err  error
}

func NewStore(repo Repository, registry *provider.Registry, logger *slog.Logger) *Store {
	return &Store{
		creds:    make(map[models.CloudProvider]*models.Credential),
		inflight: make(map[models.CloudProvider]*refreshCall),
		repo:     repo,
		registry: registry,
		logger:   logger,
	}
}

// Load populates the store from persistent storage
func (s *Store) Load() error {
	creds, err := s.repo.GetAll()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cred := range creds {
		s.creds[cred.Provider] = cred
	}
	return nil
}

// Get returns the stored credential for a provider, or nil when absent
func (s *Store) Get(p models.CloudProvider) *models.Credential {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.creds[p]
	if !ok {
		return nil
	}
	copied := *cred
	return &copied
}

// Put stores a credential and writes it through to persistence
func (s *Store) Put(cred *models.Credential) error {
	s.mu.Lock()
	copied := *cred
	s.creds[cred.Provider] = &copied
	s.mu.Unlock()

	return s.repo.Save(cred)
}

// Delete drops a provider's credential (explicit disconnect)
func (s *Store) Delete(p models.CloudProvider) error {
	s.mu.Lock()
	delete(s.creds, p)
	s.mu.Unlock()

	return s.repo.Delete(p)
}

// Refresh exchanges the stored refresh token for a fresh credential.
// At most one refresh per provider is in flight; late callers wait for the
// first call's result and reuse it. A refresh failure is terminal for the
// credential: the provider drops back to absent and the user must
// re-authenticate.
func (s *Store) Refresh(ctx context.Context, p models.CloudProvider) (*models.Credential, error) {
	s.mu.Lock()
	if call, ok := s.inflight[p]; ok {
		s.mu.Unlock()
		select {
		case <-call.done:
			return call.cred, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	cred, ok := s.creds[p]
	if !ok || cred.RefreshToken == "" {
		s.mu.Unlock()
		return nil, provider.NewTokenRefreshError(p, errors.New("no refresh token available"))
	}

	call := &refreshCall{done: make(chan struct{})}
	s.inflight[p] = call
	refreshToken := cred.RefreshToken
	s.mu.Unlock()

	fresh, err := s.doRefresh(ctx, p, refreshToken)

	s.mu.Lock()
	delete(s.inflight, p)
	if err != nil {
		delete(s.creds, p)
		if derr := s.repo.Delete(p); derr != nil {
			s.logger.Error("failed to drop credential after refresh failure",
				"provider", p, "error", derr)
		}
		call.err = err
	} else {
		s.creds[p] = fresh
		if serr := s.repo.Save(fresh); serr != nil {
			s.logger.Error("failed to persist refreshed credential",
				"provider", p, "error", serr)
		}
		copied := *fresh
		call.cred = &copied
	}
	close(call.done)
	s.mu.Unlock()

	return call.cred, call.err
}

func (s *Store) doRefresh(ctx context.Context, p models.CloudProvider, refreshToken string) (*models.Credential, error) {
	adapter, err := s.registry.Get(p)
	if err != nil {
		return nil, err
	}

	fresh, err := adapter.Refresh(ctx, refreshToken)
	if err != nil {
		s.logger.Warn("token refresh failed", "provider", p, "error", err)
		return nil, err
	}

	s.logger.Info("token refreshed", "provider", p, "token", fresh.Redacted())
	return fresh, nil
}
