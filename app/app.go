package app

import (
	"log/slog"

	"cloudsave/blobstore"
	"cloudsave/provider"
	"cloudsave/services"
	"cloudsave/sharedsaves"
	"cloudsave/tokens"
	"cloudsave/validator"
)

// App holds all application dependencies
// This struct is the central point for dependency injection
type App struct {
	Providers *provider.Registry
	Tokens    *tokens.Store
	Auth      *services.AuthService
	Sync      *services.SyncService
	Blobs     *blobstore.Store
	Shared    *sharedsaves.Store
	Validator *validator.Validator
	Logger    *slog.Logger
}

// New creates a new App instance with all dependencies
func New(registry *provider.Registry, tokenStore *tokens.Store, auth *services.AuthService, sync *services.SyncService, blobs *blobstore.Store, shared *sharedsaves.Store, logger *slog.Logger) *App {
	return &App{
		Providers: registry,
		Tokens:    tokenStore,
		Auth:      auth,
		Sync:      sync,
		Blobs:     blobs,
		Shared:    shared,
		Validator: validator.New(),
		Logger:    logger,
	}
}
