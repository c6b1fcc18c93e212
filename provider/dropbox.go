package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"

	"cloudsave/models"
)

// Dropbox OAuth endpoints
const (
	dropboxAuthURL  = "https://www.dropbox.com/oauth2/authorize"
	dropboxTokenURL = "https://api.dropboxapi.com/oauth2/token"
)

// DropboxConfig configures the Dropbox adapter. Base URL overrides are for
// tests; empty values use the vendor defaults.
type DropboxConfig struct {
	ClientID       string
	ClientSecret   string
	RedirectURL    string
	RootPath       string
	APIBaseURL     string
	ContentBaseURL string
	AuthURL        string
	TokenURL       string
	Timeout        time.Duration
}

// Dropbox adapts the capability contract to the Dropbox HTTP API. Objects
// are addressed by full path, so the path itself serves as the canonical
// id, and folders exist implicitly once something is written under them.
type Dropbox struct {
	cfg     DropboxConfig
	api     *resty.Client
	content *resty.Client
	oauth   *oauth2.Config
}

// NewDropbox builds the Dropbox adapter
func NewDropbox(cfg DropboxConfig) *Dropbox {
	if cfg.RootPath == "" {
		cfg.RootPath = "/Apps/CloudSave"
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.dropboxapi.com/2"
	}
	if cfg.ContentBaseURL == "" {
		cfg.ContentBaseURL = "https://content.dropboxapi.com/2"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	endpoint := oauth2.Endpoint{
		AuthURL:  dropboxAuthURL,
		TokenURL: dropboxTokenURL,
	}
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}

	return &Dropbox{
		cfg:     cfg,
		api:     resty.New().SetBaseURL(cfg.APIBaseURL).SetTimeout(cfg.Timeout),
		content: resty.New().SetBaseURL(cfg.ContentBaseURL).SetTimeout(cfg.Timeout),
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
		},
	}
}

func (db *Dropbox) Name() models.CloudProvider { return models.ProviderDropbox }

func (db *Dropbox) AuthCodeURL(state string) string {
	return db.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("token_access_type", "offline"))
}

func (db *Dropbox) Authenticate(ctx context.Context, code string) (*models.Credential, error) {
	token, err := db.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, &AuthExchangeError{Provider: db.Name(), cause: err}
	}
	return db.credential(token, ""), nil
}

func (db *Dropbox) Refresh(ctx context.Context, refreshToken string) (*models.Credential, error) {
	source := db.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, &TokenRefreshError{Provider: db.Name(), cause: err}
	}
	// Dropbox does not rotate refresh tokens
	return db.credential(token, refreshToken), nil
}

func (db *Dropbox) credential(token *oauth2.Token, previousRefresh string) *models.Credential {
	refresh := token.RefreshToken
	if refresh == "" {
		refresh = previousRefresh
	}
	return &models.Credential{
		Provider:     db.Name(),
		AccessToken:  token.AccessToken,
		RefreshToken: refresh,
		ExpiresAt:    token.Expiry,
		TokenKind:    token.TokenType,
	}
}

// dropboxEntry is the subset of Dropbox file metadata the adapter reads
type dropboxEntry struct {
	Tag            string    `json:".tag"`
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	PathDisplay    string    `json:"path_display"`
	Size           int64     `json:"size"`
	ServerModified time.Time `json:"server_modified"`
}

type dropboxListResult struct {
	Entries []dropboxEntry `json:"entries"`
}

func (db *Dropbox) Upload(ctx context.Context, accessToken string, content []byte, remotePath string) (models.RemoteObject, error) {
	arg := map[string]any{
		"path":       db.fullPath(remotePath),
		"mode":       "overwrite",
		"autorename": false,
		"mute":       true,
	}
	argJSON, err := json.Marshal(arg)
	if err != nil {
		return models.RemoteObject{}, transferErr(db.Name(), "upload", http.StatusInternalServerError, err)
	}

	var entry dropboxEntry
	resp, err := db.content.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetHeader("Dropbox-API-Arg", string(argJSON)).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(content).
		SetResult(&entry).
		Post("/files/upload")
	if err := db.check("upload", resp, err); err != nil {
		return models.RemoteObject{}, err
	}

	entry.Tag = "file"
	return dropboxObject(entry), nil
}

func (db *Dropbox) Download(ctx context.Context, accessToken, objectID string) ([]byte, error) {
	arg, err := json.Marshal(map[string]string{"path": objectID})
	if err != nil {
		return nil, transferErr(db.Name(), "download", http.StatusInternalServerError, err)
	}

	resp, err := db.content.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetHeader("Dropbox-API-Arg", string(arg)).
		Post("/files/download")
	if err := db.check("download", resp, err); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

func (db *Dropbox) List(ctx context.Context, accessToken, remotePath string) ([]models.RemoteObject, error) {
	var result dropboxListResult
	resp, err := db.api.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetBody(map[string]any{
			"path":      db.fullPath(remotePath),
			"recursive": false,
		}).
		SetResult(&result).
		Post("/files/list_folder")
	if err == nil && isDropboxNotFound(resp) {
		// A missing folder is an empty folder
		return []models.RemoteObject{}, nil
	}
	if err := db.check("list", resp, err); err != nil {
		return nil, err
	}

	objects := make([]models.RemoteObject, 0, len(result.Entries))
	for _, entry := range result.Entries {
		objects = append(objects, dropboxObject(entry))
	}
	return objects, nil
}

func (db *Dropbox) Delete(ctx context.Context, accessToken, objectID string) error {
	resp, err := db.api.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetBody(map[string]string{"path": objectID}).
		Post("/files/delete_v2")
	return db.check("delete", resp, err)
}

// CreateFolder creates a folder explicitly. Dropbox folders are otherwise
// implicit (they appear once a file is written under their path), so a
// name conflict is treated as the folder already existing.
func (db *Dropbox) CreateFolder(ctx context.Context, accessToken, name, parentID string) (models.RemoteObject, error) {
	base := parentID
	if base == "" {
		base = db.cfg.RootPath
	}
	folderPath := base + "/" + name

	var result struct {
		Metadata dropboxEntry `json:"metadata"`
	}
	resp, err := db.api.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetBody(map[string]any{"path": folderPath, "autorename": false}).
		SetResult(&result).
		Post("/files/create_folder_v2")
	if err == nil && resp.StatusCode() == http.StatusConflict {
		return models.RemoteObject{ID: folderPath, Name: name, Path: folderPath, IsFolder: true}, nil
	}
	if err := db.check("create folder", resp, err); err != nil {
		return models.RemoteObject{}, err
	}

	result.Metadata.Tag = "folder"
	return dropboxObject(result.Metadata), nil
}

// fullPath applies the app's private-root prefix
func (db *Dropbox) fullPath(remotePath string) string {
	segments := pathSegments(remotePath)
	if len(segments) == 0 {
		return db.cfg.RootPath
	}
	return db.cfg.RootPath + "/" + strings.Join(segments, "/")
}

// check maps a Dropbox response into the shared error taxonomy
func (db *Dropbox) check(op string, resp *resty.Response, err error) error {
	if err != nil {
		return transferErr(db.Name(), op, http.StatusBadGateway, err)
	}
	if resp.IsError() {
		status := resp.StatusCode()
		if isDropboxNotFound(resp) {
			status = http.StatusNotFound
		}
		return transferErr(db.Name(), op, status,
			fmt.Errorf("dropbox api status %d: %s", resp.StatusCode(), resp.String()))
	}
	return nil
}

// isDropboxNotFound detects the 409 path/not_found error shape Dropbox
// uses for missing paths
func isDropboxNotFound(resp *resty.Response) bool {
	if resp.StatusCode() != http.StatusConflict {
		return false
	}
	return strings.Contains(string(resp.Body()), "not_found")
}

func dropboxObject(entry dropboxEntry) models.RemoteObject {
	// The display path is the canonical handle; the opaque id is only a
	// fallback for entries without one
	id := entry.PathDisplay
	if id == "" {
		id = entry.ID
	}
	obj := models.RemoteObject{
		ID:       id,
		Name:     entry.Name,
		Path:     entry.PathDisplay,
		IsFolder: entry.Tag == "folder",
	}
	if !obj.IsFolder {
		obj.Size = entry.Size
		obj.ModifiedAt = entry.ServerModified
	}
	return obj
}
