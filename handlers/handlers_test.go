package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"cloudsave/app"
	"cloudsave/blobstore"
	"cloudsave/config/setup"
	"cloudsave/models"
	"cloudsave/provider"
	"cloudsave/services"
	"cloudsave/sharedsaves"
	"cloudsave/tokens"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubVendor is an in-memory provider for exercising the HTTP surface.
type stubVendor struct {
	name models.CloudProvider

	mu      sync.Mutex
	objects map[string][]byte
}

func newStubVendor(name models.CloudProvider) *stubVendor {
	return &stubVendor{name: name, objects: make(map[string][]byte)}
}

func (s *stubVendor) Name() models.CloudProvider      { return s.name }
func (s *stubVendor) AuthCodeURL(state string) string { return "https://vendor.example/auth?state=" + state }

func (s *stubVendor) Authenticate(ctx context.Context, code string) (*models.Credential, error) {
	if code == "bad-code" {
		return nil, provider.ErrMissingCode
	}
	return &models.Credential{
		Provider:     s.name,
		AccessToken:  "access-" + code,
		RefreshToken: "refresh-" + code,
		ExpiresAt:    time.Now().Add(time.Hour),
		TokenKind:    "Bearer",
	}, nil
}

func (s *stubVendor) Refresh(ctx context.Context, refreshToken string) (*models.Credential, error) {
	return &models.Credential{
		Provider:     s.name,
		AccessToken:  "refreshed-" + refreshToken,
		RefreshToken: refreshToken,
		TokenKind:    "Bearer",
	}, nil
}

func (s *stubVendor) Upload(ctx context.Context, accessToken string, content []byte, remotePath string) (models.RemoteObject, error) {
	if accessToken != "good-token" {
		return models.RemoteObject{}, fmt.Errorf("upload: %w", provider.ErrUnauthorized)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[remotePath] = content

	name := remotePath
	if i := strings.LastIndex(remotePath, "/"); i >= 0 {
		name = remotePath[i+1:]
	}
	return models.RemoteObject{ID: remotePath, Name: name, Path: remotePath, Size: int64(len(content))}, nil
}

func (s *stubVendor) Download(ctx context.Context, accessToken, objectID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[objectID]
	if !ok {
		return nil, fmt.Errorf("download: %w", provider.ErrNotFound)
	}
	return data, nil
}

func (s *stubVendor) List(ctx context.Context, accessToken, path string) ([]models.RemoteObject, error) {
	if accessToken != "good-token" {
		return nil, fmt.Errorf("list: %w", provider.ErrUnauthorized)
	}
	return []models.RemoteObject{}, nil
}

func (s *stubVendor) Delete(ctx context.Context, accessToken, objectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[objectID]; !ok {
		return fmt.Errorf("delete: %w", provider.ErrNotFound)
	}
	delete(s.objects, objectID)
	return nil
}

func (s *stubVendor) CreateFolder(ctx context.Context, accessToken, name, parentID string) (models.RemoteObject, error) {
	return models.RemoteObject{ID: "folder-" + name, Name: name, IsFolder: true}, nil
}

type memRepo struct {
	mu    sync.Mutex
	creds map[models.CloudProvider]*models.Credential
}

func (r *memRepo) Save(cred *models.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *cred
	r.creds[cred.Provider] = &copied
	return nil
}

func (r *memRepo) GetAll() ([]*models.Credential, error) { return nil, nil }

func (r *memRepo) Delete(p models.CloudProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.creds, p)
	return nil
}

func newTestApp(t *testing.T) (*fiber.App, *stubVendor) {
	t.Helper()

	vendor := newStubVendor(models.ProviderDropbox)
	registry := provider.NewRegistry(vendor)
	logger := slog.Default()

	store := tokens.NewStore(&memRepo{creds: make(map[models.CloudProvider]*models.Credential)}, registry, logger)
	blobs, err := blobstore.New(t.TempDir())
	require.NoError(t, err)
	shared, err := sharedsaves.New(t.TempDir())
	require.NoError(t, err)

	application := app.New(
		registry,
		store,
		services.NewAuthService(registry, store, logger),
		services.NewSyncService(registry, store, logger),
		blobs,
		shared,
		logger,
	)

	fiberApp := fiber.New()
	setup.RegisterRoutes(fiberApp, application)
	return fiberApp, vendor
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHealth(t *testing.T) {
	fiberApp, _ := newTestApp(t)

	resp, err := fiberApp.Test(newRequest(t, http.MethodGet, "/health", nil, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthURLRoute(t *testing.T) {
	fiberApp, _ := newTestApp(t)

	resp, err := fiberApp.Test(newRequest(t, http.MethodGet, "/auth/dropbox/url", nil, nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Contains(t, body["authUrl"], "https://vendor.example/auth")
	assert.Contains(t, body["authUrl"], "provider")
}

func TestAuthURLUnknownProvider(t *testing.T) {
	fiberApp, _ := newTestApp(t)

	resp, err := fiberApp.Test(newRequest(t, http.MethodGet, "/auth/icloud/url", nil, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExchangeCodeRoute(t *testing.T) {
	fiberApp, _ := newTestApp(t)

	resp, err := fiberApp.Test(newJSONRequest(t, http.MethodPost, "/auth/dropbox/callback",
		map[string]string{"code": "abc"}))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The client destructures a top-level "tokens" object
	body := decodeBody(t, resp)
	tokens, ok := body["tokens"].(map[string]any)
	require.True(t, ok, "response must carry the credential under a tokens key")
	assert.Equal(t, "access-abc", tokens["accessToken"])
	assert.Equal(t, "refresh-abc", tokens["refreshToken"])
	assert.Equal(t, "dropbox", tokens["provider"])
}

func TestExchangeCodeRouteRequiresCode(t *testing.T) {
	fiberApp, _ := newTestApp(t)

	resp, err := fiberApp.Test(newJSONRequest(t, http.MethodPost, "/auth/dropbox/callback",
		map[string]string{}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRefreshRoute(t *testing.T) {
	fiberApp, _ := newTestApp(t)

	resp, err := fiberApp.Test(newJSONRequest(t, http.MethodPost, "/auth/dropbox/refresh",
		map[string]string{"refreshToken": "r1"}))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	tokens, ok := body["tokens"].(map[string]any)
	require.True(t, ok, "response must carry the credential under a tokens key")
	assert.Equal(t, "refreshed-r1", tokens["accessToken"])
}

func TestCallbackPageReflectsDeepLink(t *testing.T) {
	fiberApp, _ := newTestApp(t)

	resp, err := fiberApp.Test(newRequest(t, http.MethodGet, "/auth/callback?code=abc&state=dropbox", nil, nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	page, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(page), "app://oauth-callback")
	assert.Contains(t, string(page), "code=abc")
}

func TestCallbackPageRequiresCode(t *testing.T) {
	fiberApp, _ := newTestApp(t)

	resp, err := fiberApp.Test(newRequest(t, http.MethodGet, "/auth/dropbox/callback", nil, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCloudRoutesRequireAuth(t *testing.T) {
	fiberApp, _ := newTestApp(t)

	t.Run("missing authorization", func(t *testing.T) {
		resp, err := fiberApp.Test(newRequest(t, http.MethodGet, "/cloud/files", nil, nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("unknown provider header", func(t *testing.T) {
		resp, err := fiberApp.Test(newRequest(t, http.MethodGet, "/cloud/files", nil, map[string]string{
			"Authorization":    "Bearer good-token",
			"X-Cloud-Provider": "icloud",
		}))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestSyncGameRoute(t *testing.T) {
	fiberApp, vendor := newTestApp(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("gameId", "42"))
	require.NoError(t, writer.WriteField("gameName", "MyGame"))

	part, err := writer.CreateFormFile("files", "slot1.sav")
	require.NoError(t, err)
	part.Write([]byte("save data"))
	require.NoError(t, writer.Close())

	req := newRequest(t, http.MethodPost, "/cloud/sync/game", &buf, map[string]string{
		"Authorization":    "Bearer good-token",
		"X-Cloud-Provider": "dropbox",
		"Content-Type":     writer.FormDataContentType(),
	})

	resp, err := fiberApp.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "42", body["gameId"])
	assert.Equal(t, "MyGame", body["gameName"])
	assert.Len(t, body["uploadedFiles"], 1)

	vendor.mu.Lock()
	_, stored := vendor.objects["MyGame_42/slot1.sav"]
	vendor.mu.Unlock()
	assert.True(t, stored)
}

func TestSyncGameRouteRejectsEmptyBatch(t *testing.T) {
	fiberApp, _ := newTestApp(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("gameId", "42"))
	require.NoError(t, writer.WriteField("gameName", "MyGame"))
	require.NoError(t, writer.Close())

	req := newRequest(t, http.MethodPost, "/cloud/sync/game", &buf, map[string]string{
		"Authorization":    "Bearer good-token",
		"X-Cloud-Provider": "dropbox",
		"Content-Type":     writer.FormDataContentType(),
	})

	resp, err := fiberApp.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCloudDownloadNotFound(t *testing.T) {
	fiberApp, _ := newTestApp(t)

	resp, err := fiberApp.Test(newRequest(t, http.MethodGet, "/cloud/download/missing-object", nil, map[string]string{
		"Authorization":    "Bearer good-token",
		"X-Cloud-Provider": "dropbox",
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStorageRoundTrip(t *testing.T) {
	fiberApp, _ := newTestApp(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "backup.zip")
	require.NoError(t, err)
	part.Write([]byte("zip bytes"))
	require.NoError(t, writer.Close())

	req := newRequest(t, http.MethodPost, "/storage/upload", &buf, map[string]string{
		"Content-Type": writer.FormDataContentType(),
	})

	resp, err := fiberApp.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody(t, resp)
	file := body["file"].(map[string]any)
	id := file["id"].(string)
	require.NotEmpty(t, id)

	resp, err = fiberApp.Test(newRequest(t, http.MethodGet, "/storage/download/"+id, nil, nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte("zip bytes"), data)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "backup.zip")

	resp, err = fiberApp.Test(newRequest(t, http.MethodDelete, "/storage/file/"+id, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = fiberApp.Test(newRequest(t, http.MethodGet, "/storage/file/"+id, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func uploadSharedSave(t *testing.T, fiberApp *fiber.App, gameID, fileName string) string {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("gameId", gameID))
	require.NoError(t, writer.WriteField("gameTitle", "My Game"))
	require.NoError(t, writer.WriteField("description", "endgame save"))
	part, err := writer.CreateFormFile("file", fileName)
	require.NoError(t, err)
	part.Write([]byte("archive bytes"))
	require.NoError(t, writer.Close())

	req := newRequest(t, http.MethodPost, "/shared-saves/upload", &buf, map[string]string{
		"Content-Type": writer.FormDataContentType(),
	})
	resp, err := fiberApp.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody(t, resp)
	save := body["save"].(map[string]any)
	return save["id"].(string)
}

func TestSharedSavesRoundTrip(t *testing.T) {
	fiberApp, _ := newTestApp(t)

	id := uploadSharedSave(t, fiberApp, "42", "slot1.sav")

	resp, err := fiberApp.Test(newRequest(t, http.MethodGet, "/shared-saves/42", nil, nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	saves := body["saves"].([]any)
	require.Len(t, saves, 1)
	save := saves[0].(map[string]any)
	assert.Equal(t, id, save["id"])
	assert.Equal(t, "My Game", save["game_title"])
	assert.Equal(t, "Anonymous", save["uploaded_by"])
	assert.Equal(t, "pc", save["platform"])
	assert.Equal(t, float64(0), save["download_count"])

	resp, err = fiberApp.Test(newRequest(t, http.MethodGet, "/shared-saves/download/"+id, nil, nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte("archive bytes"), data)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `slot1.sav.zip`)

	resp, err = fiberApp.Test(newRequest(t, http.MethodPost, "/shared-saves/download/"+id+"/count", nil, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = fiberApp.Test(newRequest(t, http.MethodGet, "/shared-saves/42", nil, nil))
	require.NoError(t, err)
	body = decodeBody(t, resp)
	save = body["saves"].([]any)[0].(map[string]any)
	assert.Equal(t, float64(1), save["download_count"])

	resp, err = fiberApp.Test(newRequest(t, http.MethodDelete, "/shared-saves/"+id, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = fiberApp.Test(newRequest(t, http.MethodGet, "/shared-saves/download/"+id, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSharedSaveUploadRequiresGameInfo(t *testing.T) {
	fiberApp, _ := newTestApp(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "slot1.sav")
	require.NoError(t, err)
	part.Write([]byte("archive bytes"))
	require.NoError(t, writer.Close())

	req := newRequest(t, http.MethodPost, "/shared-saves/upload", &buf, map[string]string{
		"Content-Type": writer.FormDataContentType(),
	})
	resp, err := fiberApp.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSharedSaveDownloadUnknownID(t *testing.T) {
	fiberApp, _ := newTestApp(t)

	resp, err := fiberApp.Test(newRequest(t, http.MethodGet, "/shared-saves/download/nope", nil, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func newRequest(t *testing.T, method, target string, body io.Reader, headers map[string]string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, target, body)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func newJSONRequest(t *testing.T, method, target string, payload any) *http.Request {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	req := newRequest(t, method, target, bytes.NewReader(raw), nil)
	req.Header.Set("Content-Type", "application/json")
	return req
}
