package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mmynk/ledgerbank/internal/models"
)

// CreateCredential inserts a new gateway login into the database.
func (t *sqliteTx) CreateCredential(ctx context.Context, cred *models.Credential) error {
	query := `
		INSERT INTO credentials (username, password_hash, role, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := t.q.ExecContext(ctx, query,
		cred.Username,
		cred.PasswordHash,
		cred.Role,
		cred.CreatedAt,
	)
	if isConstraint(err) {
		return models.NewError(models.KindDuplicateUsername, "credential for %q already exists", cred.Username).
			With("username", cred.Username)
	}
	if err != nil {
		return fmt.Errorf("failed to create credential: %w", err)
	}

	return nil
}

// GetCredential retrieves a login by username.
func (t *sqliteTx) GetCredential(ctx context.Context, username string) (*models.Credential, error) {
	query := `
		SELECT username, password_hash, role, created_at
		FROM credentials
		WHERE username = ?
	`

	cred := &models.Credential{}
	err := t.q.QueryRowContext(ctx, query, username).Scan(
		&cred.Username,
		&cred.PasswordHash,
		&cred.Role,
		&cred.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Credential not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	return cred, nil
}
