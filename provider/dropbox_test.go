package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDropbox is a minimal in-memory Dropbox API covering the endpoints
// the adapter touches. One server stands in for both the api and content
// hosts.
type fakeDropbox struct {
	t     *testing.T
	files map[string][]byte
	token string
}

func newFakeDropbox(t *testing.T) (*fakeDropbox, *Dropbox) {
	fake := &fakeDropbox{t: t, files: map[string][]byte{}, token: "dropbox-token"}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	adapter := NewDropbox(DropboxConfig{
		APIBaseURL:     srv.URL,
		ContentBaseURL: srv.URL,
	})
	return fake, adapter
}

func (f *fakeDropbox) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+f.token {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch r.URL.Path {
	case "/files/upload":
		var arg struct {
			Path string `json:"path"`
			Mode string `json:"mode"`
		}
		json.Unmarshal([]byte(r.Header.Get("Dropbox-API-Arg")), &arg)
		if arg.Mode != "overwrite" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		body, _ := io.ReadAll(r.Body)
		f.files[arg.Path] = body
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":           "id:" + arg.Path,
			"name":         baseName(arg.Path),
			"path_display": arg.Path,
			"size":         len(body),
		})
	case "/files/list_folder":
		var arg struct {
			Path string `json:"path"`
		}
		json.NewDecoder(r.Body).Decode(&arg)
		var entries []map[string]any
		for p, data := range f.files {
			if dirName(p) == arg.Path {
				entries = append(entries, map[string]any{
					".tag":         "file",
					"id":           "id:" + p,
					"name":         baseName(p),
					"path_display": p,
					"size":         len(data),
				})
			}
		}
		if len(entries) == 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]any{
				"error_summary": "path/not_found/...",
			})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"entries": entries})
	case "/files/download":
		var arg struct {
			Path string `json:"path"`
		}
		json.Unmarshal([]byte(r.Header.Get("Dropbox-API-Arg")), &arg)
		data, ok := f.files[arg.Path]
		if !ok {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"error_summary":"path/not_found/..."}`))
			return
		}
		w.Write(data)
	case "/files/delete_v2":
		var arg struct {
			Path string `json:"path"`
		}
		json.NewDecoder(r.Body).Decode(&arg)
		if _, ok := f.files[arg.Path]; !ok {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"error_summary":"path_lookup/not_found/..."}`))
			return
		}
		delete(f.files, arg.Path)
		w.Write([]byte(`{}`))
	case "/files/create_folder_v2":
		var arg struct {
			Path string `json:"path"`
		}
		json.NewDecoder(r.Body).Decode(&arg)
		if strings.HasSuffix(arg.Path, "/Existing") {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"error_summary":"path/conflict/folder/..."}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"metadata": map[string]any{
				"id":           "id:" + arg.Path,
				"name":         baseName(arg.Path),
				"path_display": arg.Path,
			},
		})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestDropboxUploadDownloadRoundTrip(t *testing.T) {
	fake, adapter := newFakeDropbox(t)

	obj, err := adapter.Upload(context.Background(), fake.token, []byte("slot one"), "MyGame_42/save.dat")
	require.NoError(t, err)
	assert.Equal(t, "save.dat", obj.Name)
	assert.Equal(t, "/Apps/CloudSave/MyGame_42/save.dat", obj.ID)
	assert.EqualValues(t, 8, obj.Size)

	// Path-addressed backends use the path itself as the object handle
	data, err := adapter.Download(context.Background(), fake.token, obj.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("slot one"), data)
}

func TestDropboxUploadOverwritesSamePath(t *testing.T) {
	fake, adapter := newFakeDropbox(t)

	_, err := adapter.Upload(context.Background(), fake.token, []byte("v1"), "g/save.dat")
	require.NoError(t, err)
	_, err = adapter.Upload(context.Background(), fake.token, []byte("v2"), "g/save.dat")
	require.NoError(t, err)

	data, err := adapter.Download(context.Background(), fake.token, "/Apps/CloudSave/g/save.dat")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)

	children, err := adapter.List(context.Background(), fake.token, "g")
	require.NoError(t, err)
	assert.Len(t, children, 1)
}

func TestDropboxListMissingFolderIsEmpty(t *testing.T) {
	fake, adapter := newFakeDropbox(t)

	children, err := adapter.List(context.Background(), fake.token, "never-written")
	require.NoError(t, err)
	assert.Empty(t, children)
	assert.NotNil(t, children)
}

func TestDropboxDeleteMissingIsNotFound(t *testing.T) {
	fake, adapter := newFakeDropbox(t)

	err := adapter.Delete(context.Background(), fake.token, "/Apps/CloudSave/nope.sav")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestDropboxRejectedTokenIsAuthFailure(t *testing.T) {
	_, adapter := newFakeDropbox(t)

	_, err := adapter.Upload(context.Background(), "bad-token", []byte("x"), "g/a.sav")
	require.Error(t, err)
	assert.True(t, IsAuthFailure(err))
}

func TestDropboxCreateFolderConflictReturnsExisting(t *testing.T) {
	fake, adapter := newFakeDropbox(t)

	folder, err := adapter.CreateFolder(context.Background(), fake.token, "Existing", "")
	require.NoError(t, err)
	assert.True(t, folder.IsFolder)
	assert.Equal(t, "Existing", folder.Name)
	assert.Equal(t, "/Apps/CloudSave/Existing", folder.ID)
}

func TestDropboxAuthCodeURLUsesVendorEndpoint(t *testing.T) {
	adapter := NewDropbox(DropboxConfig{ClientID: "client", RedirectURL: "http://localhost/cb"})

	authURL := adapter.AuthCodeURL("state")
	assert.True(t, strings.HasPrefix(authURL, "https://www.dropbox.com/oauth2/authorize"))
	assert.Contains(t, authURL, "token_access_type=offline")
	assert.Contains(t, authURL, "client_id=client")
}

func TestDropboxFullPath(t *testing.T) {
	adapter := NewDropbox(DropboxConfig{})

	assert.Equal(t, "/Apps/CloudSave", adapter.fullPath(""))
	assert.Equal(t, "/Apps/CloudSave/a/b", adapter.fullPath("a/b"))
	assert.Equal(t, "/Apps/CloudSave/a/b", adapter.fullPath("/a//b/"))
}
