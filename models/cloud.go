package models

import (
	"fmt"
	"time"
)

// CloudProvider identifies one of the supported storage backends
type CloudProvider string

const (
	ProviderGoogleDrive CloudProvider = "google_drive"
	ProviderOneDrive    CloudProvider = "onedrive"
	ProviderDropbox     CloudProvider = "dropbox"
)

// ParseProvider resolves a provider string, accepting the short vendor
// aliases used by older clients ("google", "microsoft")
func ParseProvider(s string) (CloudProvider, error) {
	switch s {
	case "google", "google_drive":
		return ProviderGoogleDrive, nil
	case "microsoft", "onedrive":
		return ProviderOneDrive, nil
	case "dropbox":
		return ProviderDropbox, nil
	default:
		return "", fmt.Errorf("unsupported cloud provider %q", s)
	}
}

// DisplayName returns the human-facing provider name
func (p CloudProvider) DisplayName() string {
	switch p {
	case ProviderGoogleDrive:
		return "Google Drive"
	case ProviderOneDrive:
		return "OneDrive"
	case ProviderDropbox:
		return "Dropbox"
	default:
		return string(p)
	}
}

// RemoteObject is the vendor-neutral shape of a stored item.
// ID is the adapter's canonical handle; for path-addressed backends the
// handle is the path itself. Folders never carry a size.
type RemoteObject struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Path       string    `json:"path,omitempty"`
	Size       int64     `json:"size,omitempty"`
	ModifiedAt time.Time `json:"modifiedTime,omitempty"`
	IsFolder   bool      `json:"isFolder"`
}

// Credential holds one provider's OAuth tokens. Owned exclusively by the
// token store; created on code exchange or refresh, destroyed on disconnect.
type Credential struct {
	Provider     CloudProvider `json:"provider"`
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken,omitempty"`
	ExpiresAt    time.Time     `json:"expiresAt,omitempty"`
	TokenKind    string        `json:"tokenType,omitempty"`
}

// Redacted returns a loggable form of the access token. Tokens must never
// be logged in full.
func (c *Credential) Redacted() string {
	if len(c.AccessToken) <= 8 {
		return "***"
	}
	return c.AccessToken[:8] + "..."
}

// LocalFile is one save file handed to the sync orchestrator
type LocalFile struct {
	Name string
	Data []byte
}

// UploadBatch is the result of one sync call. It exists only for the
// duration of the call; callers may persist a summary.
type UploadBatch struct {
	GameID       string         `json:"gameId"`
	GameTitle    string         `json:"gameName"`
	TargetFolder string         `json:"targetFolder"`
	Results      []RemoteObject `json:"uploadedFiles"`
	TotalSize    int64          `json:"totalSize"`
	CompletedAt  time.Time      `json:"syncDate"`
}

// SyncState is the orchestrator's coarse status
type SyncState string

const (
	SyncIdle    SyncState = "idle"
	SyncSyncing SyncState = "syncing"
	SyncError   SyncState = "error"
)

// SyncStatus describes the last/current sync operation
type SyncStatus struct {
	Provider   CloudProvider `json:"provider"`
	State      SyncState     `json:"status"`
	LastSync   time.Time     `json:"lastSync,omitempty"`
	TotalFiles int           `json:"totalFiles"`
	TotalSize  int64         `json:"totalSize"`
	Error      string        `json:"error,omitempty"`
}
