package tokens

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cloudsave/models"
	"cloudsave/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	mu    sync.Mutex
	creds map[models.CloudProvider]*models.Credential
}

func newMemRepo() *memRepo {
	return &memRepo{creds: make(map[models.CloudProvider]*models.Credential)}
}

func (r *memRepo) Save(cred *models.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *cred
	r.creds[cred.Provider] = &copied
	return nil
}

func (r *memRepo) GetAll() ([]*models.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Credential
	for _, cred := range r.creds {
		copied := *cred
		out = append(out, &copied)
	}
	return out, nil
}

func (r *memRepo) Delete(p models.CloudProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.creds, p)
	return nil
}

func (r *memRepo) get(p models.CloudProvider) *models.Credential {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creds[p]
}

// stubProvider satisfies the capability contract with a controllable
// refresh behavior; the storage operations are never reached from these
// tests.
type stubProvider struct {
	name         models.CloudProvider
	refreshCalls atomic.Int32
	refreshDelay time.Duration
	refreshErr   error
}

func (s *stubProvider) Name() models.CloudProvider     { return s.name }
func (s *stubProvider) AuthCodeURL(state string) string { return "https://auth.example/?state=" + state }

func (s *stubProvider) Authenticate(ctx context.Context, code string) (*models.Credential, error) {
	return &models.Credential{Provider: s.name, AccessToken: "access-" + code, RefreshToken: "refresh-" + code}, nil
}

func (s *stubProvider) Refresh(ctx context.Context, refreshToken string) (*models.Credential, error) {
	s.refreshCalls.Add(1)
	if s.refreshDelay > 0 {
		time.Sleep(s.refreshDelay)
	}
	if s.refreshErr != nil {
		return nil, s.refreshErr
	}
	return &models.Credential{
		Provider:     s.name,
		AccessToken:  "refreshed-" + refreshToken,
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().Add(time.Hour),
	}, nil
}

func (s *stubProvider) Upload(ctx context.Context, accessToken string, content []byte, remotePath string) (models.RemoteObject, error) {
	return models.RemoteObject{}, nil
}

func (s *stubProvider) Download(ctx context.Context, accessToken, objectID string) ([]byte, error) {
	return nil, nil
}

func (s *stubProvider) List(ctx context.Context, accessToken, path string) ([]models.RemoteObject, error) {
	return nil, nil
}

func (s *stubProvider) Delete(ctx context.Context, accessToken, objectID string) error { return nil }

func (s *stubProvider) CreateFolder(ctx context.Context, accessToken, name, parentID string) (models.RemoteObject, error) {
	return models.RemoteObject{}, nil
}

func newTestStore(t *testing.T, stub *stubProvider) (*Store, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	registry := provider.NewRegistry(stub)
	return NewStore(repo, registry, slog.Default()), repo
}

func TestStoreLoadAndGet(t *testing.T) {
	stub := &stubProvider{name: models.ProviderDropbox}
	repo := newMemRepo()
	require.NoError(t, repo.Save(&models.Credential{Provider: models.ProviderDropbox, AccessToken: "stored"}))

	store := NewStore(repo, provider.NewRegistry(stub), slog.Default())
	require.NoError(t, store.Load())

	cred := store.Get(models.ProviderDropbox)
	require.NotNil(t, cred)
	assert.Equal(t, "stored", cred.AccessToken)

	assert.Nil(t, store.Get(models.ProviderGoogleDrive))
}

func TestStoreGetReturnsCopy(t *testing.T) {
	stub := &stubProvider{name: models.ProviderDropbox}
	store, _ := newTestStore(t, stub)

	require.NoError(t, store.Put(&models.Credential{Provider: models.ProviderDropbox, AccessToken: "original"}))

	cred := store.Get(models.ProviderDropbox)
	cred.AccessToken = "mutated"

	assert.Equal(t, "original", store.Get(models.ProviderDropbox).AccessToken)
}

func TestStorePutWritesThrough(t *testing.T) {
	stub := &stubProvider{name: models.ProviderGoogleDrive}
	store, repo := newTestStore(t, stub)

	cred := &models.Credential{Provider: models.ProviderGoogleDrive, AccessToken: "abc", RefreshToken: "r1"}
	require.NoError(t, store.Put(cred))

	persisted := repo.get(models.ProviderGoogleDrive)
	require.NotNil(t, persisted)
	assert.Equal(t, "abc", persisted.AccessToken)
}

func TestStorePutReplacesExistingCredential(t *testing.T) {
	stub := &stubProvider{name: models.ProviderGoogleDrive}
	store, _ := newTestStore(t, stub)

	require.NoError(t, store.Put(&models.Credential{Provider: models.ProviderGoogleDrive, AccessToken: "first"}))
	require.NoError(t, store.Put(&models.Credential{Provider: models.ProviderGoogleDrive, AccessToken: "second"}))

	assert.Equal(t, "second", store.Get(models.ProviderGoogleDrive).AccessToken)
}

func TestStoreDelete(t *testing.T) {
	stub := &stubProvider{name: models.ProviderOneDrive}
	store, repo := newTestStore(t, stub)

	require.NoError(t, store.Put(&models.Credential{Provider: models.ProviderOneDrive, AccessToken: "abc"}))
	require.NoError(t, store.Delete(models.ProviderOneDrive))

	assert.Nil(t, store.Get(models.ProviderOneDrive))
	assert.Nil(t, repo.get(models.ProviderOneDrive))
}

func TestRefreshReplacesCredential(t *testing.T) {
	stub := &stubProvider{name: models.ProviderDropbox}
	store, repo := newTestStore(t, stub)

	require.NoError(t, store.Put(&models.Credential{
		Provider:     models.ProviderDropbox,
		AccessToken:  "old",
		RefreshToken: "r1",
	}))

	fresh, err := store.Refresh(context.Background(), models.ProviderDropbox)
	require.NoError(t, err)
	assert.Equal(t, "refreshed-r1", fresh.AccessToken)

	// Write-through
	assert.Equal(t, "refreshed-r1", repo.get(models.ProviderDropbox).AccessToken)
	assert.Equal(t, "refreshed-r1", store.Get(models.ProviderDropbox).AccessToken)
}

func TestRefreshWithoutCredential(t *testing.T) {
	stub := &stubProvider{name: models.ProviderDropbox}
	store, _ := newTestStore(t, stub)

	_, err := store.Refresh(context.Background(), models.ProviderDropbox)
	require.Error(t, err)
	var refreshErr *provider.TokenRefreshError
	assert.ErrorAs(t, err, &refreshErr)
}

func TestRefreshWithoutRefreshToken(t *testing.T) {
	stub := &stubProvider{name: models.ProviderDropbox}
	store, _ := newTestStore(t, stub)

	require.NoError(t, store.Put(&models.Credential{Provider: models.ProviderDropbox, AccessToken: "only-access"}))

	_, err := store.Refresh(context.Background(), models.ProviderDropbox)
	require.Error(t, err)
	var refreshErr *provider.TokenRefreshError
	assert.ErrorAs(t, err, &refreshErr)
}

func TestRefreshFailureDropsCredential(t *testing.T) {
	stub := &stubProvider{
		name:       models.ProviderDropbox,
		refreshErr: provider.NewTokenRefreshError(models.ProviderDropbox, errors.New("invalid_grant")),
	}
	store, repo := newTestStore(t, stub)

	require.NoError(t, store.Put(&models.Credential{
		Provider:     models.ProviderDropbox,
		AccessToken:  "old",
		RefreshToken: "revoked",
	}))

	_, err := store.Refresh(context.Background(), models.ProviderDropbox)
	require.Error(t, err)

	// Terminal: the credential is gone everywhere, re-auth required
	assert.Nil(t, store.Get(models.ProviderDropbox))
	assert.Nil(t, repo.get(models.ProviderDropbox))
}

func TestRefreshIsSingleFlight(t *testing.T) {
	stub := &stubProvider{
		name:         models.ProviderGoogleDrive,
		refreshDelay: 50 * time.Millisecond,
	}
	store, _ := newTestStore(t, stub)

	require.NoError(t, store.Put(&models.Credential{
		Provider:     models.ProviderGoogleDrive,
		AccessToken:  "old",
		RefreshToken: "r1",
	}))

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*models.Credential, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = store.Refresh(context.Background(), models.ProviderGoogleDrive)
		}(i)
	}
	wg.Wait()

	// All callers share the result of exactly one vendor call
	assert.EqualValues(t, 1, stub.refreshCalls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "refreshed-r1", results[i].AccessToken)
	}
}

func TestRefreshWaiterHonorsContext(t *testing.T) {
	stub := &stubProvider{
		name:         models.ProviderGoogleDrive,
		refreshDelay: 200 * time.Millisecond,
	}
	store, _ := newTestStore(t, stub)

	require.NoError(t, store.Put(&models.Credential{
		Provider:     models.ProviderGoogleDrive,
		AccessToken:  "old",
		RefreshToken: "r1",
	}))

	go store.Refresh(context.Background(), models.ProviderGoogleDrive)
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := store.Refresh(ctx, models.ProviderGoogleDrive)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
