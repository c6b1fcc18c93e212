package services

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"cloudsave/models"
	"cloudsave/provider"
	"cloudsave/tokens"
)

// SyncService turns a set of local save files into a deduplicated set of
// remote objects under one game folder. Uploads run concurrently; the
// refresh-and-retry-once policy applies to the batch as a whole.
type SyncService struct {
	registry *provider.Registry
	tokens   *tokens.Store
	logger   *slog.Logger

	mu     sync.Mutex
	status models.SyncStatus
}

// NewSyncService creates a new sync orchestrator
func NewSyncService(registry *provider.Registry, store *tokens.Store, logger *slog.Logger) *SyncService {
	return &SyncService{
		registry: registry,
		tokens:   store,
		logger:   logger,
		status:   models.SyncStatus{State: models.SyncIdle},
	}
}

// Status returns the last/current sync status
func (s *SyncService) Status() models.SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SyncGameSaves uploads the given files to a collision-free set of names
// under the game's target folder. An empty accessToken falls back to the
// stored credential. On an authentication failure the token store is asked
// for exactly one refresh and the whole batch is retried once; a second
// failure is terminal.
func (s *SyncService) SyncGameSaves(ctx context.Context, rawProvider, accessToken, gameID, gameTitle string, files []models.LocalFile) (*models.UploadBatch, error) {
	adapter, err := s.registry.Resolve(rawProvider)
	if err != nil {
		return nil, err
	}
	if gameID == "" || gameTitle == "" {
		return nil, ErrMissingGameInfo
	}
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	if accessToken == "" {
		cred := s.tokens.Get(adapter.Name())
		if cred == nil {
			return nil, ErrNotAuthenticated
		}
		accessToken = cred.AccessToken
	}

	s.setSyncing(adapter.Name())

	target := resolveTargetFolder(gameTitle, gameID)

	results, err := s.uploadBatch(ctx, adapter, accessToken, target, files)
	if provider.IsAuthFailure(err) {
		s.logger.Info("batch upload hit auth failure, refreshing token",
			"provider", adapter.Name(), "game_id", gameID)

		fresh, rerr := s.tokens.Refresh(ctx, adapter.Name())
		if rerr != nil {
			s.setError(adapter.Name(), rerr)
			return nil, rerr
		}
		results, err = s.uploadBatch(ctx, adapter, fresh.AccessToken, target, files)
	}
	if err != nil {
		s.setError(adapter.Name(), err)
		return nil, err
	}

	var totalSize int64
	for _, f := range files {
		totalSize += int64(len(f.Data))
	}

	batch := &models.UploadBatch{
		GameID:       gameID,
		GameTitle:    gameTitle,
		TargetFolder: target,
		Results:      results,
		TotalSize:    totalSize,
		CompletedAt:  time.Now(),
	}

	s.setIdle(adapter.Name(), batch)
	s.logger.Info("game saves synced",
		"provider", adapter.Name(), "game_id", gameID,
		"files", len(results), "total_size", totalSize)

	return batch, nil
}

// uploadBatch resolves collision-free names sequentially, then uploads all
// files concurrently. Name resolution re-lists the target folder for every
// file and additionally holds an in-memory reservation set, so two files
// with the same name cannot race to the same suffix within one batch.
func (s *SyncService) uploadBatch(ctx context.Context, adapter provider.Provider, accessToken, target string, files []models.LocalFile) ([]models.RemoteObject, error) {
	reserved := make(map[string]bool, len(files))
	assigned := make([]string, len(files))

	for i, file := range files {
		existing := s.listExisting(ctx, adapter, accessToken, target)
		name := uniqueName(file.Name, func(candidate string) bool {
			if reserved[candidate] {
				return true
			}
			_, taken := existing[candidate]
			return taken
		})
		reserved[name] = true
		assigned[i] = name
	}

	results := make([]models.RemoteObject, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			obj, err := adapter.Upload(gctx, accessToken, file.Data, target+"/"+assigned[i])
			if err != nil {
				return err
			}
			results[i] = obj
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// listExisting returns the names already taken in the target folder.
// A listing failure is treated as "folder does not exist yet": the upload
// proceeds against an empty name set rather than aborting the batch.
func (s *SyncService) listExisting(ctx context.Context, adapter provider.Provider, accessToken, target string) map[string]struct{} {
	children, err := adapter.List(ctx, accessToken, target)
	if err != nil {
		s.logger.Debug("listing target folder failed, assuming empty",
			"provider", adapter.Name(), "folder", target, "error", err)
		return nil
	}

	names := make(map[string]struct{}, len(children))
	for _, child := range children {
		names[child.Name] = struct{}{}
	}
	return names
}

// resolveTargetFolder derives the remote folder for a game. A title
// containing a path separator is an explicit folder path and is used
// verbatim; otherwise the folder is named "{title}_{id}".
func resolveTargetFolder(gameTitle, gameID string) string {
	if strings.ContainsRune(gameTitle, '/') {
		return strings.Trim(path.Clean(gameTitle), "/")
	}
	return fmt.Sprintf("%s_%s", gameTitle, gameID)
}

// uniqueName appends _1, _2, ... before the extension until the name is
// free
func uniqueName(name string, taken func(string) bool) string {
	if !taken(name) {
		return name
	}

	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if !taken(candidate) {
			return candidate
		}
	}
}

func (s *SyncService) setSyncing(p models.CloudProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = models.SyncStatus{
		Provider: p,
		State:    models.SyncSyncing,
		LastSync: s.status.LastSync,
	}
}

func (s *SyncService) setIdle(p models.CloudProvider, batch *models.UploadBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = models.SyncStatus{
		Provider:   p,
		State:      models.SyncIdle,
		LastSync:   batch.CompletedAt,
		TotalFiles: len(batch.Results),
		TotalSize:  batch.TotalSize,
	}
}

func (s *SyncService) setError(p models.CloudProvider, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = models.SyncStatus{
		Provider: p,
		State:    models.SyncError,
		LastSync: s.status.LastSync,
		Error:    err.Error(),
	}
}
