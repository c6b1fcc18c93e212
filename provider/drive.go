package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"cloudsave/models"
)

const driveFolderMimeType = "application/vnd.google-apps.folder"

// DriveConfig configures the Google Drive adapter. Endpoint overrides are
// for tests; empty values use the vendor defaults.
type DriveConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	RootFolder   string
	APIEndpoint  string
	AuthURL      string
	TokenURL     string
	Timeout      time.Duration
}

// Drive adapts the capability contract to Google Drive. Drive addresses
// objects by opaque id, so every slash-delimited remote path is resolved
// to a chain of folder ids before talking to the API.
type Drive struct {
	cfg   DriveConfig
	oauth *oauth2.Config
}

// NewDrive builds the Google Drive adapter
func NewDrive(cfg DriveConfig) *Drive {
	if cfg.RootFolder == "" {
		cfg.RootFolder = "CloudSave"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	endpoint := google.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}

	return &Drive{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{drive.DriveFileScope},
			Endpoint:     endpoint,
		},
	}
}

func (d *Drive) Name() models.CloudProvider { return models.ProviderGoogleDrive }

// AuthCodeURL requests offline access with a forced consent prompt so a
// refresh token is issued on every connect
func (d *Drive) AuthCodeURL(state string) string {
	return d.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (d *Drive) Authenticate(ctx context.Context, code string) (*models.Credential, error) {
	token, err := d.oauth.Exchange(ctx, code, oauth2.AccessTypeOffline)
	if err != nil {
		return nil, &AuthExchangeError{Provider: d.Name(), cause: err}
	}
	return d.credential(token, ""), nil
}

func (d *Drive) Refresh(ctx context.Context, refreshToken string) (*models.Credential, error) {
	source := d.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, &TokenRefreshError{Provider: d.Name(), cause: err}
	}
	return d.credential(token, refreshToken), nil
}

// credential converts an oauth2 token, keeping the previous refresh token
// when the vendor does not rotate it
func (d *Drive) credential(token *oauth2.Token, previousRefresh string) *models.Credential {
	refresh := token.RefreshToken
	if refresh == "" {
		refresh = previousRefresh
	}
	return &models.Credential{
		Provider:     d.Name(),
		AccessToken:  token.AccessToken,
		RefreshToken: refresh,
		ExpiresAt:    token.Expiry,
		TokenKind:    token.TokenType,
	}
}

// service builds a Drive API client bound to the caller's access token
func (d *Drive) service(ctx context.Context, accessToken string) (*drive.Service, error) {
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	client := oauth2.NewClient(ctx, source)
	client.Timeout = d.cfg.Timeout

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if d.cfg.APIEndpoint != "" {
		opts = append(opts, option.WithEndpoint(d.cfg.APIEndpoint))
	}
	return drive.NewService(ctx, opts...)
}

func (d *Drive) Upload(ctx context.Context, accessToken string, content []byte, remotePath string) (models.RemoteObject, error) {
	srv, err := d.service(ctx, accessToken)
	if err != nil {
		return models.RemoteObject{}, d.mapErr("upload", err)
	}

	segments, fileName := splitRemotePath(remotePath)

	parentID := "root"
	for _, folder := range append([]string{d.cfg.RootFolder}, segments...) {
		parentID, err = d.ensureFolder(ctx, srv, folder, parentID)
		if err != nil {
			return models.RemoteObject{}, d.mapErr("upload", err)
		}
	}

	existing, err := d.findChild(ctx, srv, fileName, parentID)
	if err != nil {
		return models.RemoteObject{}, d.mapErr("upload", err)
	}

	var file *drive.File
	if existing != nil {
		file, err = srv.Files.Update(existing.Id, &drive.File{}).
			Media(bytes.NewReader(content)).
			Fields("id, name, size, modifiedTime").
			Context(ctx).
			Do()
	} else {
		meta := &drive.File{Name: fileName, Parents: []string{parentID}}
		file, err = srv.Files.Create(meta).
			Media(bytes.NewReader(content)).
			Fields("id, name, size, modifiedTime").
			Context(ctx).
			Do()
	}
	if err != nil {
		return models.RemoteObject{}, d.mapErr("upload", err)
	}

	return driveObject(file), nil
}

func (d *Drive) Download(ctx context.Context, accessToken, objectID string) ([]byte, error) {
	srv, err := d.service(ctx, accessToken)
	if err != nil {
		return nil, d.mapErr("download", err)
	}

	resp, err := srv.Files.Get(objectID).Context(ctx).Download()
	if err != nil {
		return nil, d.mapErr("download", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, d.mapErr("download", err)
	}
	return data, nil
}

func (d *Drive) List(ctx context.Context, accessToken, remotePath string) ([]models.RemoteObject, error) {
	srv, err := d.service(ctx, accessToken)
	if err != nil {
		return nil, d.mapErr("list", err)
	}

	// Resolve the path to a folder id without creating anything; a missing
	// segment means the folder does not exist yet
	parentID := "root"
	segments := append([]string{d.cfg.RootFolder}, pathSegments(remotePath)...)
	for _, folder := range segments {
		child, err := d.findFolder(ctx, srv, folder, parentID)
		if err != nil {
			return nil, d.mapErr("list", err)
		}
		if child == "" {
			return []models.RemoteObject{}, nil
		}
		parentID = child
	}

	query := fmt.Sprintf("'%s' in parents and trashed=false", parentID)
	fileList, err := srv.Files.List().
		Q(query).
		Fields("files(id, name, size, modifiedTime, mimeType)").
		PageSize(1000).
		Context(ctx).
		Do()
	if err != nil {
		return nil, d.mapErr("list", err)
	}

	objects := make([]models.RemoteObject, 0, len(fileList.Files))
	for _, file := range fileList.Files {
		objects = append(objects, driveObject(file))
	}
	return objects, nil
}

func (d *Drive) Delete(ctx context.Context, accessToken, objectID string) error {
	srv, err := d.service(ctx, accessToken)
	if err != nil {
		return d.mapErr("delete", err)
	}
	if err := srv.Files.Delete(objectID).Context(ctx).Do(); err != nil {
		return d.mapErr("delete", err)
	}
	return nil
}

func (d *Drive) CreateFolder(ctx context.Context, accessToken, name, parentID string) (models.RemoteObject, error) {
	srv, err := d.service(ctx, accessToken)
	if err != nil {
		return models.RemoteObject{}, d.mapErr("create folder", err)
	}

	if parentID == "" {
		parentID, err = d.ensureFolder(ctx, srv, d.cfg.RootFolder, "root")
		if err != nil {
			return models.RemoteObject{}, d.mapErr("create folder", err)
		}
	}

	folderID, err := d.ensureFolder(ctx, srv, name, parentID)
	if err != nil {
		return models.RemoteObject{}, d.mapErr("create folder", err)
	}

	return models.RemoteObject{ID: folderID, Name: name, IsFolder: true}, nil
}

// ensureFolder returns the id of a folder under parentID, creating it if
// it does not exist. Search-then-create keeps folder names unique.
func (d *Drive) ensureFolder(ctx context.Context, srv *drive.Service, name, parentID string) (string, error) {
	folderID, err := d.findFolder(ctx, srv, name, parentID)
	if err != nil {
		return "", err
	}
	if folderID != "" {
		return folderID, nil
	}

	meta := &drive.File{
		Name:     name,
		MimeType: driveFolderMimeType,
		Parents:  []string{parentID},
	}
	file, err := srv.Files.Create(meta).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return file.Id, nil
}

// findFolder looks up a folder by name under parentID, returning "" when
// no match exists
func (d *Drive) findFolder(ctx context.Context, srv *drive.Service, name, parentID string) (string, error) {
	query := fmt.Sprintf("name='%s' and mimeType='%s' and '%s' in parents and trashed=false",
		escapeDriveQuery(name), driveFolderMimeType, parentID)
	fileList, err := srv.Files.List().Q(query).Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	if len(fileList.Files) == 0 {
		return "", nil
	}
	return fileList.Files[0].Id, nil
}

// findChild looks up any object (file or folder) by name under parentID
func (d *Drive) findChild(ctx context.Context, srv *drive.Service, name, parentID string) (*drive.File, error) {
	query := fmt.Sprintf("name='%s' and '%s' in parents and trashed=false",
		escapeDriveQuery(name), parentID)
	fileList, err := srv.Files.List().Q(query).Fields("files(id, name)").Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	if len(fileList.Files) == 0 {
		return nil, nil
	}
	return fileList.Files[0], nil
}

// mapErr translates Drive API failures into the shared error taxonomy
func (d *Drive) mapErr(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return transferErr(d.Name(), op, gerr.Code, err)
	}
	return transferErr(d.Name(), op, http.StatusBadGateway, err)
}

func driveObject(file *drive.File) models.RemoteObject {
	obj := models.RemoteObject{
		ID:       file.Id,
		Name:     file.Name,
		IsFolder: file.MimeType == driveFolderMimeType,
	}
	if !obj.IsFolder {
		obj.Size = file.Size
	}
	if file.ModifiedTime != "" {
		if modified, err := time.Parse(time.RFC3339, file.ModifiedTime); err == nil {
			obj.ModifiedAt = modified
		}
	}
	return obj
}

// escapeDriveQuery escapes single quotes in Drive query literals
func escapeDriveQuery(s string) string {
	return strings.ReplaceAll(s, `'`, `\'`)
}

// splitRemotePath splits a slash-delimited remote path into its folder
// segments and trailing file name
func splitRemotePath(remotePath string) ([]string, string) {
	segments := pathSegments(remotePath)
	if len(segments) == 0 {
		return nil, ""
	}
	return segments[:len(segments)-1], segments[len(segments)-1]
}

// pathSegments splits a remote path, dropping empty segments
func pathSegments(remotePath string) []string {
	var segments []string
	for _, part := range strings.Split(remotePath, "/") {
		if part != "" {
			segments = append(segments, part)
		}
	}
	return segments
}
