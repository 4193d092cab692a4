package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmynk/ledgerbank/internal/models"
)

const accountColumns = `id, name, balance, created_at`

// CreateAccount inserts a new account and assigns its ID.
func (t *sqliteTx) CreateAccount(ctx context.Context, account *models.Account) error {
	if err := t.writable(); err != nil {
		return err
	}

	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO accounts (name, balance, created_at)
		VALUES (?, ?, ?)
	`

	res, err := t.q.ExecContext(ctx, query,
		account.Name,
		account.Balance.MinorUnits(),
		account.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read account id: %w", err)
	}
	account.ID = id

	return nil
}

// GetAccount retrieves an account by ID.
func (t *sqliteTx) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = ?`

	account, err := scanAccount(t.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Account not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// LockAccounts reads the given accounts for update. The enclosing
// transaction already holds SQLite's write lock, so no row locking is needed.
func (t *sqliteTx) LockAccounts(ctx context.Context, ids ...int64) (map[int64]*models.Account, error) {
	if err := t.writable(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return make(map[int64]*models.Account), nil
	}

	// Build the IN clause with placeholders
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id IN (?` +
		strings.Repeat(", ?", len(ids)-1) + `) ORDER BY id`

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to lock accounts: %w", err)
	}
	defer rows.Close()

	accounts := make(map[int64]*models.Account, len(ids))
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts[account.ID] = account
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// SaveBalance writes back the balance of an account.
func (t *sqliteTx) SaveBalance(ctx context.Context, account *models.Account) error {
	if err := t.writable(); err != nil {
		return err
	}

	res, err := t.q.ExecContext(ctx, `UPDATE accounts SET balance = ? WHERE id = ?`,
		account.Balance.MinorUnits(), account.ID)
	if err != nil {
		return fmt.Errorf("failed to save balance: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save balance: %w", err)
	}
	if n == 0 {
		return models.NewError(models.KindNotFound, "account %d not found", account.ID).With("account", account.ID)
	}

	return nil
}

// DeleteAccount removes an account; its access rows cascade.
func (t *sqliteTx) DeleteAccount(ctx context.Context, id int64) error {
	if err := t.writable(); err != nil {
		return err
	}

	if _, err := t.q.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	return nil
}

func scanAccount(row scanner) (*models.Account, error) {
	var (
		account   models.Account
		balance   int64
		createdAt int64
	)
	if err := row.Scan(&account.ID, &account.Name, &balance, &createdAt); err != nil {
		return nil, err
	}
	account.Balance = models.NewAmountFromMinor(balance)
	account.CreatedAt = time.UnixMilli(createdAt)
	return &account, nil
}
