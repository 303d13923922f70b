package database

import (
	"database/sql"
	"fmt"

	"github.com/reviewpilot/syndicate/app/channel"
)

var _ CredentialRepository = (*CredentialRepo)(nil)

// CredentialRepo persists per-channel credentials so refreshed tokens
// survive a restart
type CredentialRepo struct {
	db *DB
}

func NewCredentialRepo(db *DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

func (r *CredentialRepo) SaveCredential(cred channel.Credential) error {
	_, err := r.db.Exec(`
		INSERT INTO channel_credentials (channel, access_token, refresh_token, expires_at,
			identifier, password, did, account_id, location_id, author_urn, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (channel) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			identifier = excluded.identifier,
			password = excluded.password,
			did = excluded.did,
			account_id = excluded.account_id,
			location_id = excluded.location_id,
			author_urn = excluded.author_urn,
			updated_at = CURRENT_TIMESTAMP
	`, cred.Channel, cred.AccessToken, cred.RefreshToken, cred.ExpiresAt,
		cred.Identifier, cred.Password, cred.DID, cred.AccountID, cred.LocationID, cred.AuthorURN)

	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}

	return nil
}

func (r *CredentialRepo) GetCredential(channelID string) (*channel.Credential, error) {
	var cred channel.Credential
	err := r.db.QueryRow(`
		SELECT channel, access_token, refresh_token, expires_at, identifier,
		       password, did, account_id, location_id, author_urn
		FROM channel_credentials
		WHERE channel = ?
	`, channelID).Scan(
		&cred.Channel, &cred.AccessToken, &cred.RefreshToken, &cred.ExpiresAt,
		&cred.Identifier, &cred.Password, &cred.DID, &cred.AccountID,
		&cred.LocationID, &cred.AuthorURN,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	return &cred, nil
}

func (r *CredentialRepo) ListCredentials() ([]channel.Credential, error) {
	rows, err := r.db.Query(`
		SELECT channel, access_token, refresh_token, expires_at, identifier,
		       password, did, account_id, location_id, author_urn
		FROM channel_credentials
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var creds []channel.Credential
	for rows.Next() {
		var cred channel.Credential
		err := rows.Scan(
			&cred.Channel, &cred.AccessToken, &cred.RefreshToken, &cred.ExpiresAt,
			&cred.Identifier, &cred.Password, &cred.DID, &cred.AccountID,
			&cred.LocationID, &cred.AuthorURN,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credential row: %w", err)
		}
		creds = append(creds, cred)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating credential rows: %w", err)
	}

	return creds, nil
}
