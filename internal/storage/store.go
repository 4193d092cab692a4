// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mmynk/ledgerbank/internal/models"
)

// TxFunc is the body of a unit of work. Returning an error rolls back every
// mutation made through tx.
type TxFunc func(ctx context.Context, tx Tx) error

// Store defines the repository of clients, accounts and access records.
// This abstraction allows swapping storage backends (SQLite, MySQL, memory)
// without changing the core.
type Store interface {
	// Update runs fn in a read-write unit of work. Either every mutation made
	// through tx becomes visible or none does.
	Update(ctx context.Context, fn TxFunc) error

	// View runs fn against a read-committed view. Mutating methods of tx may
	// fail or be rejected inside View.
	View(ctx context.Context, fn TxFunc) error

	// Credentials returns the gateway credential repository.
	Credentials() CredentialStore

	// Close releases any resources held by the store.
	Close() error
}

// Tx is the set of repository operations available inside a unit of work.
//
// Lookups that find nothing return (nil, nil); the core decides whether
// absence is an error.
type Tx interface {
	// CreateClient inserts a client and fills in ID and CreatedAt.
	// Returns a DuplicateUsername error if the username is taken.
	CreateClient(ctx context.Context, client *models.Client) error

	// GetClient retrieves a client by username.
	GetClient(ctx context.Context, username string) (*models.Client, error)

	// ListClients returns every client.
	ListClients(ctx context.Context) ([]*models.Client, error)

	// ListClientsBornFrom returns clients whose birth date is on or after from.
	ListClientsBornFrom(ctx context.Context, from time.Time) ([]*models.Client, error)

	// ListClientsWithBalance returns clients that have access (any role) to
	// at least one account whose balance is >= min.
	ListClientsWithBalance(ctx context.Context, min models.Amount) ([]*models.Client, error)

	// DeleteClient removes the client, its access rows and its credential.
	DeleteClient(ctx context.Context, username string) error

	// CreateAccount inserts an account and fills in ID and CreatedAt.
	CreateAccount(ctx context.Context, account *models.Account) error

	// GetAccount retrieves a committed-state snapshot of an account.
	GetAccount(ctx context.Context, id int64) (*models.Account, error)

	// LockAccounts locks the given accounts for update, in ascending id
	// order, until the unit of work ends. Missing ids are omitted from the
	// result.
	LockAccounts(ctx context.Context, ids ...int64) (map[int64]*models.Account, error)

	// SaveBalance persists the balance of an account locked by LockAccounts.
	SaveBalance(ctx context.Context, account *models.Account) error

	// DeleteAccount removes an account and all access rows pointing at it.
	DeleteAccount(ctx context.Context, id int64) error

	// CreateAccess inserts an access row and fills in GrantedAt.
	// Returns a DuplicateAccess error if the pair already has a role.
	CreateAccess(ctx context.Context, access *models.AccountAccess) error

	// GetAccess retrieves the access row of a client on an account.
	GetAccess(ctx context.Context, username string, accountID int64) (*models.AccountAccess, error)

	// ListAccessByClient returns the client's access rows with account
	// snapshots, ordered by account id.
	ListAccessByClient(ctx context.Context, username string) ([]*models.AccountAccess, error)

	// ListAccessByAccount returns every access row on an account.
	ListAccessByAccount(ctx context.Context, accountID int64) ([]*models.AccountAccess, error)
}

// CredentialStore persists gateway logins.
type CredentialStore interface {
	CreateCredential(ctx context.Context, cred *models.Credential) error
	GetCredential(ctx context.Context, username string) (*models.Credential, error)
}

// ErrReadOnly is returned by mutating Tx methods inside View.
var ErrReadOnly = errors.New("storage: mutation inside a read-only unit of work")
