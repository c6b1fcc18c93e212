package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"cloudsave/models"
)

// GraphConfig configures the OneDrive adapter. Base URL overrides are for
// tests; empty values use the vendor defaults.
type GraphConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	APIBaseURL   string
	AuthURL      string
	TokenURL     string
	Timeout      time.Duration
}

// Graph adapts the capability contract to OneDrive via the Microsoft Graph
// REST API. Objects carry opaque ids, but the app-root ("approot") special
// folder makes upload and listing path-addressed, so no id walking is
// needed on the write path.
type Graph struct {
	cfg   GraphConfig
	http  *resty.Client
	oauth *oauth2.Config
}

// NewGraph builds the OneDrive adapter
func NewGraph(cfg GraphConfig) *Graph {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://graph.microsoft.com/v1.0"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	endpoint := microsoft.AzureADEndpoint("common")
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}

	return &Graph{
		cfg: cfg,
		http: resty.New().
			SetBaseURL(cfg.APIBaseURL).
			SetTimeout(cfg.Timeout),
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"files.readwrite.appfolder", "offline_access"},
			Endpoint:     endpoint,
		},
	}
}

func (g *Graph) Name() models.CloudProvider { return models.ProviderOneDrive }

func (g *Graph) AuthCodeURL(state string) string {
	return g.oauth.AuthCodeURL(state)
}

func (g *Graph) Authenticate(ctx context.Context, code string) (*models.Credential, error) {
	token, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, &AuthExchangeError{Provider: g.Name(), cause: err}
	}
	return g.credential(token, ""), nil
}

func (g *Graph) Refresh(ctx context.Context, refreshToken string) (*models.Credential, error) {
	source := g.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, &TokenRefreshError{Provider: g.Name(), cause: err}
	}
	// Microsoft rotates refresh tokens on every grant
	return g.credential(token, refreshToken), nil
}

func (g *Graph) credential(token *oauth2.Token, previousRefresh string) *models.Credential {
	refresh := token.RefreshToken
	if refresh == "" {
		refresh = previousRefresh
	}
	return &models.Credential{
		Provider:     g.Name(),
		AccessToken:  token.AccessToken,
		RefreshToken: refresh,
		ExpiresAt:    token.Expiry,
		TokenKind:    token.TokenType,
	}
}

// driveItem is the subset of the Graph driveItem resource the adapter
// reads
type driveItem struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Size                 int64     `json:"size"`
	LastModifiedDateTime time.Time `json:"lastModifiedDateTime"`
	Folder               *struct{} `json:"folder"`
}

type driveItemList struct {
	Value []driveItem `json:"value"`
}

func (g *Graph) Upload(ctx context.Context, accessToken string, content []byte, remotePath string) (models.RemoteObject, error) {
	var item driveItem
	resp, err := g.request(ctx, accessToken).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(content).
		SetResult(&item).
		Put(g.itemPath(remotePath, "content"))
	if err := g.check("upload", resp, err); err != nil {
		return models.RemoteObject{}, err
	}
	return graphObject(item), nil
}

func (g *Graph) Download(ctx context.Context, accessToken, objectID string) ([]byte, error) {
	resp, err := g.request(ctx, accessToken).
		Get(fmt.Sprintf("/me/drive/items/%s/content", url.PathEscape(objectID)))
	if err := g.check("download", resp, err); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

func (g *Graph) List(ctx context.Context, accessToken, remotePath string) ([]models.RemoteObject, error) {
	endpoint := "/me/drive/special/approot/children"
	if remotePath != "" {
		endpoint = g.itemPath(remotePath, "children")
	}

	var list driveItemList
	resp, err := g.request(ctx, accessToken).
		SetResult(&list).
		Get(endpoint)
	if err == nil && resp.StatusCode() == http.StatusNotFound {
		// A missing folder is an empty folder
		return []models.RemoteObject{}, nil
	}
	if err := g.check("list", resp, err); err != nil {
		return nil, err
	}

	objects := make([]models.RemoteObject, 0, len(list.Value))
	for _, item := range list.Value {
		objects = append(objects, graphObject(item))
	}
	return objects, nil
}

func (g *Graph) Delete(ctx context.Context, accessToken, objectID string) error {
	resp, err := g.request(ctx, accessToken).
		Delete(fmt.Sprintf("/me/drive/items/%s", url.PathEscape(objectID)))
	return g.check("delete", resp, err)
}

func (g *Graph) CreateFolder(ctx context.Context, accessToken, name, parentID string) (models.RemoteObject, error) {
	endpoint := "/me/drive/special/approot/children"
	if parentID != "" {
		endpoint = fmt.Sprintf("/me/drive/items/%s/children", url.PathEscape(parentID))
	}

	var item driveItem
	resp, err := g.request(ctx, accessToken).
		SetBody(map[string]any{
			"name":                              name,
			"folder":                            struct{}{},
			"@microsoft.graph.conflictBehavior": "rename",
		}).
		SetResult(&item).
		Post(endpoint)
	if err := g.check("create folder", resp, err); err != nil {
		return models.RemoteObject{}, err
	}
	return graphObject(item), nil
}

func (g *Graph) request(ctx context.Context, accessToken string) *resty.Request {
	return g.http.R().
		SetContext(ctx).
		SetAuthToken(accessToken)
}

// itemPath builds an approot-relative Graph path of the form
// /me/drive/special/approot:/<path>:/<verb>
func (g *Graph) itemPath(remotePath, verb string) string {
	segments := pathSegments(remotePath)
	escaped := make([]string, 0, len(segments))
	for _, segment := range segments {
		escaped = append(escaped, url.PathEscape(segment))
	}
	return fmt.Sprintf("/me/drive/special/approot:/%s:/%s", strings.Join(escaped, "/"), verb)
}

// check maps a Graph response into the shared error taxonomy
func (g *Graph) check(op string, resp *resty.Response, err error) error {
	if err != nil {
		return transferErr(g.Name(), op, http.StatusBadGateway, err)
	}
	if resp.IsError() {
		return transferErr(g.Name(), op, resp.StatusCode(),
			fmt.Errorf("graph api status %d: %s", resp.StatusCode(), resp.String()))
	}
	return nil
}

func graphObject(item driveItem) models.RemoteObject {
	obj := models.RemoteObject{
		ID:         item.ID,
		Name:       item.Name,
		ModifiedAt: item.LastModifiedDateTime,
		IsFolder:   item.Folder != nil,
	}
	if !obj.IsFolder {
		obj.Size = item.Size
	}
	return obj
}
