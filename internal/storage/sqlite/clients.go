package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mmynk/ledgerbank/internal/models"
)

const clientColumns = `id, username, birth_date, created_at`

// CreateClient inserts a new client and assigns its ID.
func (t *sqliteTx) CreateClient(ctx context.Context, client *models.Client) error {
	if err := t.writable(); err != nil {
		return err
	}

	existing, err := t.GetClient(ctx, client.Username)
	if err != nil {
		return err
	}
	if existing != nil {
		return duplicateUsername(client.Username)
	}

	if client.CreatedAt.IsZero() {
		client.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO clients (username, birth_date, created_at)
		VALUES (?, ?, ?)
	`

	res, err := t.q.ExecContext(ctx, query,
		client.Username,
		client.BirthDate.Format(models.DateLayout),
		client.CreatedAt.UnixMilli(),
	)
	if isConstraint(err) {
		return duplicateUsername(client.Username)
	}
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read client id: %w", err)
	}
	client.ID = id

	return nil
}

// GetClient retrieves a client by username.
func (t *sqliteTx) GetClient(ctx context.Context, username string) (*models.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE username = ?`

	client, err := scanClient(t.q.QueryRowContext(ctx, query, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Client not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	return client, nil
}

// ListClients returns every client ordered by ID.
func (t *sqliteTx) ListClients(ctx context.Context) ([]*models.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients ORDER BY id`
	return t.queryClients(ctx, query)
}

// ListClientsBornFrom returns clients born on or after from.
func (t *sqliteTx) ListClientsBornFrom(ctx context.Context, from time.Time) ([]*models.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE birth_date >= ? ORDER BY id`
	return t.queryClients(ctx, query, from.Format(models.DateLayout))
}

// ListClientsWithBalance returns clients with access to an account holding
// at least min.
func (t *sqliteTx) ListClientsWithBalance(ctx context.Context, min models.Amount) ([]*models.Client, error) {
	query := `
		SELECT ` + clientColumns + `
		FROM clients c
		WHERE EXISTS (
			SELECT 1
			FROM account_access aa
			JOIN accounts a ON a.id = aa.account_id
			WHERE aa.client_username = c.username AND a.balance >= ?
		)
		ORDER BY c.id
	`
	return t.queryClients(ctx, query, min.MinorUnits())
}

// DeleteClient removes a client. Access rows go with it through the foreign
// key cascade; the credential is removed explicitly.
func (t *sqliteTx) DeleteClient(ctx context.Context, username string) error {
	if err := t.writable(); err != nil {
		return err
	}

	if _, err := t.q.ExecContext(ctx, `DELETE FROM clients WHERE username = ?`, username); err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	if _, err := t.q.ExecContext(ctx, `DELETE FROM credentials WHERE username = ?`, username); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	return nil
}

func (t *sqliteTx) queryClients(ctx context.Context, query string, args ...any) ([]*models.Client, error) {
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var clients []*models.Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, client)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clients: %w", err)
	}

	return clients, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanClient(row scanner) (*models.Client, error) {
	var (
		client    models.Client
		birthDate string
		createdAt int64
	)
	if err := row.Scan(&client.ID, &client.Username, &birthDate, &createdAt); err != nil {
		return nil, err
	}

	bd, err := time.Parse(models.DateLayout, birthDate)
	if err != nil {
		return nil, fmt.Errorf("invalid stored birth date %q: %w", birthDate, err)
	}
	client.BirthDate = bd
	client.CreatedAt = time.UnixMilli(createdAt)

	return &client, nil
}

func duplicateUsername(username string) error {
	return models.NewError(models.KindDuplicateUsername, "username %q is already taken", username).
		With("username", username)
}
