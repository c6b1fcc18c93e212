package services

import "errors"

// Common service-level errors
var (
	// ErrNotAuthenticated means no credential is stored for the provider
	ErrNotAuthenticated = errors.New("provider not authenticated")

	// ErrNoFiles means a sync was requested with an empty file set
	ErrNoFiles = errors.New("no files provided")

	// ErrMissingGameInfo means a sync was requested without a game id or title
	ErrMissingGameInfo = errors.New("game id and name required")
)
