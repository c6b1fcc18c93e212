package setup

import (
	"log/slog"
	"path/filepath"

	"cloudsave/app"
	"cloudsave/blobstore"
	"cloudsave/config"
	"cloudsave/database"
	"cloudsave/provider"
	"cloudsave/services"
	"cloudsave/sharedsaves"
	"cloudsave/tokens"
)

// InitDatabase initializes the SQLite database and runs migrations
func InitDatabase(dbPath string, logger *slog.Logger) (*database.DB, error) {
	db, err := database.New(dbPath)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("database initialized", "path", dbPath)
	return db, nil
}

// BuildRegistry constructs adapters for every provider with OAuth
// credentials configured
func BuildRegistry(cfg *config.Config, logger *slog.Logger) *provider.Registry {
	var adapters []provider.Provider

	if cfg.GoogleClientID != "" {
		adapters = append(adapters, provider.NewDrive(provider.DriveConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		}))
		logger.Info("provider configured", "provider", "google_drive")
	}

	if cfg.MicrosoftClientID != "" {
		adapters = append(adapters, provider.NewGraph(provider.GraphConfig{
			ClientID:     cfg.MicrosoftClientID,
			ClientSecret: cfg.MicrosoftClientSecret,
			RedirectURL:  cfg.MicrosoftRedirectURL,
		}))
		logger.Info("provider configured", "provider", "onedrive")
	}

	if cfg.DropboxClientID != "" {
		adapters = append(adapters, provider.NewDropbox(provider.DropboxConfig{
			ClientID:     cfg.DropboxClientID,
			ClientSecret: cfg.DropboxClientSecret,
			RedirectURL:  cfg.DropboxRedirectURL,
		}))
		logger.Info("provider configured", "provider", "dropbox")
	}

	return provider.NewRegistry(adapters...)
}

// InitApp initializes the application with all dependencies
func InitApp(db *database.DB, logger *slog.Logger) (*app.App, error) {
	registry := BuildRegistry(config.AppConfig, logger)

	repo := database.NewCredentialRepository(db)
	tokenStore := tokens.NewStore(repo, registry, logger)
	if err := tokenStore.Load(); err != nil {
		return nil, err
	}
	logger.Info("token store loaded")

	blobs, err := blobstore.New(config.AppConfig.StorageDir)
	if err != nil {
		return nil, err
	}
	logger.Info("blob store initialized", "dir", config.AppConfig.StorageDir)

	shared, err := sharedsaves.New(filepath.Join(config.AppConfig.StorageDir, "shared-saves"))
	if err != nil {
		return nil, err
	}
	logger.Info("shared-save store initialized")

	auth := services.NewAuthService(registry, tokenStore, logger)
	sync := services.NewSyncService(registry, tokenStore, logger)

	return app.New(registry, tokenStore, auth, sync, blobs, shared, logger), nil
}

// Shutdown performs graceful shutdown of all services
func Shutdown(db *database.DB, logger *slog.Logger) {
	logger.Info("shutting down services...")

	if db != nil {
		db.Close()
		logger.Info("database closed")
	}
}
