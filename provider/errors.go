package provider

import (
	"errors"
	"fmt"
	"net/http"

	"cloudsave/models"
)

// Sentinel errors shared across adapters. Vendor-specific failures are
// wrapped into the typed errors below at the adapter boundary; vendor
// error shapes never leak upward.
var (
	// ErrUnsupportedProvider means the provider string is unknown. Fatal,
	// never retried.
	ErrUnsupportedProvider = errors.New("unsupported cloud provider")

	// ErrMissingCode means a callback arrived without an authorization code
	ErrMissingCode = errors.New("authorization code required")

	// ErrNotFound means an object id or path no longer resolves
	ErrNotFound = errors.New("object not found")

	// ErrUnauthorized marks transfer failures caused by a rejected access
	// token. The orchestrator keys its refresh-and-retry policy off it.
	ErrUnauthorized = errors.New("access token rejected")
)

// AuthExchangeError is a failed authorization-code exchange
type AuthExchangeError struct {
	Provider models.CloudProvider
	cause    error
}

func (e *AuthExchangeError) Error() string {
	return fmt.Sprintf("failed to authenticate with %s", e.Provider.DisplayName())
}

func (e *AuthExchangeError) Unwrap() error { return e.cause }

// TokenRefreshError is a failed refresh-token grant. Terminal for the
// credential: the caller must re-run the authorization flow.
type TokenRefreshError struct {
	Provider models.CloudProvider
	cause    error
}

func (e *TokenRefreshError) Error() string {
	return fmt.Sprintf("failed to refresh %s token", e.Provider.DisplayName())
}

func (e *TokenRefreshError) Unwrap() error { return e.cause }

// NewTokenRefreshError wraps a refresh failure detected outside an adapter,
// such as a credential with no refresh token
func NewTokenRefreshError(p models.CloudProvider, cause error) *TokenRefreshError {
	return &TokenRefreshError{Provider: p, cause: cause}
}

// TransferError is any failed storage operation (upload, download, list,
// delete, create-folder)
type TransferError struct {
	Provider models.CloudProvider
	Op       string
	Status   int
	cause    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s %s failed", e.Provider.DisplayName(), e.Op)
}

func (e *TransferError) Unwrap() error { return e.cause }

// transferErr builds a TransferError from an HTTP status, attaching the
// NotFound and Unauthorized sentinels where the status warrants them
func transferErr(p models.CloudProvider, op string, status int, cause error) error {
	switch status {
	case http.StatusNotFound:
		cause = ErrNotFound
	case http.StatusUnauthorized:
		cause = ErrUnauthorized
	}
	return &TransferError{Provider: p, Op: op, Status: status, cause: cause}
}

// IsAuthFailure reports whether err was caused by a rejected or expired
// access token
func IsAuthFailure(err error) bool {
	if errors.Is(err, ErrUnauthorized) {
		return true
	}
	var te *TransferError
	return errors.As(err, &te) && te.Status == http.StatusUnauthorized
}

// IsNotFound reports whether err means the object no longer exists
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
