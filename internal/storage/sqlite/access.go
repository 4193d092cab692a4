package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mmynk/ledgerbank/internal/models"
)

const accessSelect = `
	SELECT aa.client_username, aa.role, aa.granted_at,
	       a.id, a.name, a.balance, a.created_at
	FROM account_access aa
	JOIN accounts a ON a.id = aa.account_id
`

// CreateAccess grants a client a role on an account.
func (t *sqliteTx) CreateAccess(ctx context.Context, access *models.AccountAccess) error {
	if err := t.writable(); err != nil {
		return err
	}

	existing, err := t.GetAccess(ctx, access.ClientUsername, access.Account.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return duplicateAccess(access)
	}

	if access.GrantedAt.IsZero() {
		access.GrantedAt = time.Now()
	}

	query := `
		INSERT INTO account_access (client_username, account_id, role, granted_at)
		VALUES (?, ?, ?, ?)
	`

	_, err = t.q.ExecContext(ctx, query,
		access.ClientUsername,
		access.Account.ID,
		string(access.Role),
		access.GrantedAt.UnixMilli(),
	)
	if isConstraint(err) {
		return duplicateAccess(access)
	}
	if err != nil {
		return fmt.Errorf("failed to create account access: %w", err)
	}

	return nil
}

// GetAccess retrieves the role of a client on an account.
func (t *sqliteTx) GetAccess(ctx context.Context, username string, accountID int64) (*models.AccountAccess, error) {
	query := accessSelect + ` WHERE aa.client_username = ? AND aa.account_id = ?`

	access, err := scanAccess(t.q.QueryRowContext(ctx, query, username, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // No access
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account access: %w", err)
	}

	return access, nil
}

// ListAccessByClient returns all accounts a client can reach, by account ID.
func (t *sqliteTx) ListAccessByClient(ctx context.Context, username string) ([]*models.AccountAccess, error) {
	query := accessSelect + ` WHERE aa.client_username = ? ORDER BY a.id`
	return t.queryAccess(ctx, query, username)
}

// ListAccessByAccount returns all clients with a role on an account.
func (t *sqliteTx) ListAccessByAccount(ctx context.Context, accountID int64) ([]*models.AccountAccess, error) {
	query := accessSelect + ` WHERE aa.account_id = ? ORDER BY aa.granted_at, aa.client_username`
	return t.queryAccess(ctx, query, accountID)
}

func (t *sqliteTx) queryAccess(ctx context.Context, query string, args ...any) ([]*models.AccountAccess, error) {
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list account access: %w", err)
	}
	defer rows.Close()

	var result []*models.AccountAccess
	for rows.Next() {
		access, err := scanAccess(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account access: %w", err)
		}
		result = append(result, access)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account access: %w", err)
	}

	return result, nil
}

func scanAccess(row scanner) (*models.AccountAccess, error) {
	var (
		access     models.AccountAccess
		role       string
		grantedAt  int64
		balance    int64
		accCreated int64
	)
	if err := row.Scan(
		&access.ClientUsername,
		&role,
		&grantedAt,
		&access.Account.ID,
		&access.Account.Name,
		&balance,
		&accCreated,
	); err != nil {
		return nil, err
	}

	access.Role = models.Role(role)
	access.GrantedAt = time.UnixMilli(grantedAt)
	access.Account.Balance = models.NewAmountFromMinor(balance)
	access.Account.CreatedAt = time.UnixMilli(accCreated)
	return &access, nil
}

func duplicateAccess(access *models.AccountAccess) error {
	return models.NewError(models.KindDuplicateAccess, "client %q already has access to account %d",
		access.ClientUsername, access.Account.ID).
		With("username", access.ClientUsername).With("account", access.Account.ID)
}
