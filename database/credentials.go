package database

import (
	"database/sql"
	"fmt"
	"time"

	"cloudsave/models"
)

// CredentialRepository persists one credential record per provider.
// The on-disk shape is {provider, access_token, refresh_token,
// expires_at (epoch millis), token_type}.
type CredentialRepository struct {
	db *DB
}

func NewCredentialRepository(db *DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Save upserts a provider's credential
func (r *CredentialRepository) Save(cred *models.Credential) error {
	var expiresAt int64
	if !cred.ExpiresAt.IsZero() {
		expiresAt = cred.ExpiresAt.UnixMilli()
	}

	_, err := r.db.Exec(
		`INSERT INTO cloud_credentials (provider, access_token, refresh_token, expires_at, token_type, updated_at)
		 VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(provider) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			token_type = excluded.token_type,
			updated_at = CURRENT_TIMESTAMP`,
		string(cred.Provider), cred.AccessToken, cred.RefreshToken, expiresAt, cred.TokenKind,
	)
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// Get returns a provider's credential, or nil when none is stored
func (r *CredentialRepository) Get(p models.CloudProvider) (*models.Credential, error) {
	row := r.db.QueryRow(
		`SELECT provider, access_token, refresh_token, expires_at, token_type
		 FROM cloud_credentials WHERE provider = ?`,
		string(p),
	)
	return scanCredential(row)
}

// GetAll returns every stored credential
func (r *CredentialRepository) GetAll() ([]*models.Credential, error) {
	rows, err := r.db.Query(
		`SELECT provider, access_token, refresh_token, expires_at, token_type
		 FROM cloud_credentials`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query credentials: %w", err)
	}
	defer rows.Close()

	var creds []*models.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}

// Delete removes a provider's credential
func (r *CredentialRepository) Delete(p models.CloudProvider) error {
	_, err := r.db.Exec(`DELETE FROM cloud_credentials WHERE provider = ?`, string(p))
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*models.Credential, error) {
	var (
		providerName string
		cred         models.Credential
		refreshToken sql.NullString
		expiresAt    sql.NullInt64
		tokenType    sql.NullString
	)
	err := row.Scan(&providerName, &cred.AccessToken, &refreshToken, &expiresAt, &tokenType)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan credential: %w", err)
	}

	cred.Provider = models.CloudProvider(providerName)
	cred.RefreshToken = refreshToken.String
	cred.TokenKind = tokenType.String
	if expiresAt.Int64 > 0 {
		cred.ExpiresAt = time.UnixMilli(expiresAt.Int64)
	}
	return &cred, nil
}
