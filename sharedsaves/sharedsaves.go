// Package sharedsaves is the community save-file exchange: uploaded
// save archives on local disk with an index.json carrying their
// metadata, listed per game and counted per download.
package sharedsaves

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a save id does not resolve
var ErrNotFound = errors.New("shared save not found")

// SharedSave is one community-uploaded save archive. The JSON shape is
// the one the desktop client consumes.
type SharedSave struct {
	ID            string    `json:"id"`
	GameID        string    `json:"game_id"`
	GameTitle     string    `json:"game_title"`
	FileName      string    `json:"file_name"`
	FilePath      string    `json:"file_path"`
	Description   string    `json:"description"`
	UploadedBy    string    `json:"uploaded_by"`
	UploadedAt    time.Time `json:"uploaded_at"`
	DownloadCount int       `json:"download_count"`
	SizeBytes     int64     `json:"size_bytes"`
	Platform      string    `json:"platform"`
}

// Upload describes a new shared save before it is stored
type Upload struct {
	GameID      string
	GameTitle   string
	FileName    string
	Description string
	UploadedBy  string
	Platform    string
}

// Store keeps save archives under a root directory and persists their
// metadata to index.json, reloaded on startup.
type Store struct {
	root string

	mu    sync.Mutex
	saves map[string]*SharedSave
}

// index is the on-disk shape of the metadata file
type index struct {
	Saves []*SharedSave `json:"saves"`
}

// New creates a shared-save store rooted at dir, loading any existing
// index
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create shared-saves directory: %w", err)
	}

	s := &Store{root: dir, saves: make(map[string]*SharedSave)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	raw, err := os.ReadFile(s.indexPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read shared-saves index: %w", err)
	}

	var idx index
	if err := json.Unmarshal(raw, &idx); err != nil {
		return fmt.Errorf("corrupt shared-saves index: %w", err)
	}
	for _, save := range idx.Saves {
		s.saves[save.ID] = save
	}
	return nil
}

// Save stores an uploaded archive and registers it in the index
func (s *Store) Save(meta Upload, r io.Reader) (*SharedSave, error) {
	if meta.GameID == "" || meta.GameTitle == "" {
		return nil, errors.New("game id and title required")
	}
	if meta.UploadedBy == "" {
		meta.UploadedBy = "Anonymous"
	}
	if meta.Platform == "" {
		meta.Platform = "pc"
	}

	id := uuid.New().String()
	blobPath := filepath.Join(s.root, id+"-"+filepath.Base(meta.FileName))

	f, err := os.Create(blobPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create shared save: %w", err)
	}
	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(blobPath)
		return nil, fmt.Errorf("failed to write shared save: %w", err)
	}

	save := &SharedSave{
		ID:          id,
		GameID:      meta.GameID,
		GameTitle:   meta.GameTitle,
		FileName:    meta.FileName,
		FilePath:    blobPath,
		Description: meta.Description,
		UploadedBy:  meta.UploadedBy,
		UploadedAt:  time.Now(),
		SizeBytes:   size,
		Platform:    meta.Platform,
	}

	s.mu.Lock()
	s.saves[id] = save
	err = s.persistLocked()
	s.mu.Unlock()
	if err != nil {
		os.Remove(blobPath)
		return nil, err
	}

	copied := *save
	return &copied, nil
}

// ListByGame returns a game's shared saves, newest first
func (s *Store) ListByGame(gameID string) []SharedSave {
	s.mu.Lock()
	defer s.mu.Unlock()

	saves := []SharedSave{}
	for _, save := range s.saves {
		if save.GameID == gameID {
			saves = append(saves, *save)
		}
	}
	sort.Slice(saves, func(i, j int) bool {
		return saves[i].UploadedAt.After(saves[j].UploadedAt)
	})
	return saves
}

// Open returns a reader over a save's archive together with its metadata
func (s *Store) Open(saveID string) (io.ReadCloser, *SharedSave, error) {
	s.mu.Lock()
	save, ok := s.saves[saveID]
	if !ok {
		s.mu.Unlock()
		return nil, nil, ErrNotFound
	}
	copied := *save
	s.mu.Unlock()

	f, err := os.Open(copied.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to open shared save: %w", err)
	}
	return f, &copied, nil
}

// CountDownload increments a save's download counter
func (s *Store) CountDownload(saveID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	save, ok := s.saves[saveID]
	if !ok {
		return ErrNotFound
	}
	save.DownloadCount++
	return s.persistLocked()
}

// Delete removes a save's archive and its index entry
func (s *Store) Delete(saveID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	save, ok := s.saves[saveID]
	if !ok {
		return ErrNotFound
	}

	if err := os.Remove(save.FilePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete shared save: %w", err)
	}
	delete(s.saves, saveID)
	return s.persistLocked()
}

// persistLocked writes the index; the caller holds the mutex
func (s *Store) persistLocked() error {
	idx := index{Saves: make([]*SharedSave, 0, len(s.saves))}
	for _, save := range s.saves {
		idx.Saves = append(idx.Saves, save)
	}
	sort.Slice(idx.Saves, func(i, j int) bool {
		return idx.Saves[i].UploadedAt.After(idx.Saves[j].UploadedAt)
	})

	raw, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode shared-saves index: %w", err)
	}
	if err := os.WriteFile(s.indexPath(), raw, 0644); err != nil {
		return fmt.Errorf("failed to write shared-saves index: %w", err)
	}
	return nil
}

func (s *Store) indexPath() string {
	return filepath.Join(s.root, "index.json")
}
