// Package blobstore is a disk-backed blob store for ad-hoc uploads.
// Content lands under date-partitioned directories; per-object metadata
// lives in JSON sidecar files keyed by a random hex id.
package blobstore

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// ObjectInfo is the metadata sidecar for one stored blob
type ObjectInfo struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"originalName"`
	FileName     string    `json:"filename"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"mimetype"`
	Path         string    `json:"path"`
	UploadedAt   time.Time `json:"uploadDate"`
}

// ErrNotFound is returned when an object id does not resolve
var ErrNotFound = os.ErrNotExist

var validID = regexp.MustCompile(`^[a-f0-9]{32}$`)

// Store writes blobs and their sidecars under a root directory
type Store struct {
	root string
}

// New creates a blob store rooted at dir
func New(dir string) (*Store, error) {
	for _, sub := range []string{"uploads", "metadata"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}
	return &Store{root: dir}, nil
}

// Save writes a blob and its metadata sidecar, returning the stored
// object's info
func (s *Store) Save(originalName, contentType string, r io.Reader) (*ObjectInfo, error) {
	id, err := randomID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	dir := filepath.Join(s.root, "uploads",
		fmt.Sprintf("%04d", now.Year()),
		fmt.Sprintf("%02d", now.Month()),
		fmt.Sprintf("%02d", now.Day()))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	ext := filepath.Ext(originalName)
	base := originalName[:len(originalName)-len(ext)]
	fileName := fmt.Sprintf("%s-%d-%s%s", base, now.UnixMilli(), id[:12], ext)
	blobPath := filepath.Join(dir, fileName)

	f, err := os.Create(blobPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob: %w", err)
	}
	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(blobPath)
		return nil, fmt.Errorf("failed to write blob: %w", err)
	}

	info := &ObjectInfo{
		ID:           id,
		OriginalName: originalName,
		FileName:     fileName,
		Size:         size,
		ContentType:  contentType,
		Path:         blobPath,
		UploadedAt:   now,
	}

	if err := s.writeSidecar(info); err != nil {
		os.Remove(blobPath)
		return nil, err
	}
	return info, nil
}

// Info loads an object's metadata sidecar
func (s *Store) Info(id string) (*ObjectInfo, error) {
	if !validID.MatchString(id) {
		return nil, fmt.Errorf("invalid object id: %w", ErrNotFound)
	}

	raw, err := os.ReadFile(s.sidecarPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var info ObjectInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("corrupt metadata for %s: %w", id, err)
	}
	return &info, nil
}

// Open returns a reader over an object's content together with its info
func (s *Store) Open(id string) (io.ReadCloser, *ObjectInfo, error) {
	info, err := s.Info(id)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(info.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to open blob: %w", err)
	}
	return f, info, nil
}

// Delete removes an object's content and its sidecar
func (s *Store) Delete(id string) error {
	info, err := s.Info(id)
	if err != nil {
		return err
	}

	if err := os.Remove(info.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	if err := os.Remove(s.sidecarPath(id)); err != nil {
		return fmt.Errorf("failed to delete metadata: %w", err)
	}
	return nil
}

func (s *Store) writeSidecar(info *ObjectInfo) error {
	raw, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := os.WriteFile(s.sidecarPath(info.ID), raw, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

func (s *Store) sidecarPath(id string) string {
	return filepath.Join(s.root, "metadata", id+".json")
}

func randomID() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("failed to generate object id: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}
