// Package mysql implements storage.Store on MySQL through GORM.
//
// Balance updates use pessimistic row locks (SELECT ... FOR UPDATE) taken in
// ascending account id order, so transfers on disjoint accounts proceed in
// parallel.
package mysql

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mmynk/ledgerbank/internal/models"
	"github.com/mmynk/ledgerbank/internal/storage"
	"github.com/mmynk/ledgerbank/pkg/mysql"
)

var _ storage.Store = (*Store)(nil)

// Store is a storage.Store backed by a GORM MySQL client.
type Store struct {
	client *mysql.Client
}

// New wraps client and migrates the schema.
func New(client *mysql.Client) (*Store, error) {
	if err := client.DB().AutoMigrate(&sqlClient{}, &sqlAccount{}, &sqlAccess{}, &sqlCredential{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Store{client: client}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// Update runs fn inside a database transaction.
func (s *Store) Update(ctx context.Context, fn storage.TxFunc) error {
	return s.client.DB().WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(ctx, &gormTx{db: db})
	})
}

// View runs fn against the connection pool without a transaction.
func (s *Store) View(ctx context.Context, fn storage.TxFunc) error {
	return fn(ctx, &gormTx{db: s.client.DB().WithContext(ctx), readOnly: true})
}

// Credentials returns the credential repository.
func (s *Store) Credentials() storage.CredentialStore {
	return &gormTx{db: s.client.DB()}
}

type gormTx struct {
	db       *gorm.DB
	readOnly bool
}

var _ storage.Tx = (*gormTx)(nil)

func (t *gormTx) writable() error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	return nil
}

func (t *gormTx) with(ctx context.Context) *gorm.DB {
	return t.db.WithContext(ctx)
}

func (t *gormTx) CreateClient(ctx context.Context, client *models.Client) error {
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
	row := fromClient(client)
	err = t.with(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return duplicateUsername(client.Username)
	}
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	client.ID = row.ID
	return nil
}

func (t *gormTx) GetClient(ctx context.Context, username string) (*models.Client, error) {
	var row sqlClient
	err := t.with(ctx).Where("username = ?", username).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return row.toModel()
}

func (t *gormTx) ListClients(ctx context.Context) ([]*models.Client, error) {
	return t.findClients(t.with(ctx))
}

func (t *gormTx) ListClientsBornFrom(ctx context.Context, from time.Time) ([]*models.Client, error) {
	return t.findClients(t.with(ctx).Where("birth_date >= ?", from.Format(models.DateLayout)))
}

func (t *gormTx) ListClientsWithBalance(ctx context.Context, min models.Amount) ([]*models.Client, error) {
	return t.findClients(t.with(ctx).Where(`EXISTS (
		SELECT 1 FROM account_access aa
		JOIN accounts a ON a.id = aa.account_id
		WHERE aa.client_username = clients.username AND a.balance >= ?)`, min.MinorUnits()))
}

func (t *gormTx) findClients(q *gorm.DB) ([]*models.Client, error) {
	var rows []sqlClient
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	out := make([]*models.Client, 0, len(rows))
	for i := range rows {
		c, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (t *gormTx) DeleteClient(ctx context.Context, username string) error {
	if err := t.writable(); err != nil {
		return err
	}
	db := t.with(ctx)
	if err := db.Where("client_username = ?", username).Delete(&sqlAccess{}).Error; err != nil {
		return fmt.Errorf("failed to delete client access: %w", err)
	}
	if err := db.Where("username = ?", username).Delete(&sqlCredential{}).Error; err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	if err := db.Where("username = ?", username).Delete(&sqlClient{}).Error; err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	return nil
}

func (t *gormTx) CreateAccount(ctx context.Context, account *models.Account) error {
	if err := t.writable(); err != nil {
		return err
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}
	row := fromAccount(account)
	if err := t.with(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	account.ID = row.ID
	return nil
}

func (t *gormTx) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	var row sqlAccount
	err := t.with(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return row.toModel(), nil
}

// LockAccounts takes row locks in ascending id order.
func (t *gormTx) LockAccounts(ctx context.Context, ids ...int64) (map[int64]*models.Account, error) {
	if err := t.writable(); err != nil {
		return nil, err
	}
	out := make(map[int64]*models.Account, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var rows []sqlAccount
	if err := t.with(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", sorted).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to lock accounts: %w", err)
	}
	for i := range rows {
		out[rows[i].ID] = rows[i].toModel()
	}
	return out, nil
}

func (t *gormTx) SaveBalance(ctx context.Context, account *models.Account) error {
	if err := t.writable(); err != nil {
		return err
	}
	res := t.with(ctx).Model(&sqlAccount{}).Where("id = ?", account.ID).
		Update("balance", account.Balance.MinorUnits())
	if res.Error != nil {
		return fmt.Errorf("failed to save balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// MySQL reports zero rows when the value is unchanged
		acc, err := t.GetAccount(ctx, account.ID)
		if err != nil {
			return err
		}
		if acc == nil {
			return models.NewError(models.KindNotFound, "account %d not found", account.ID).With("account", account.ID)
		}
	}
	return nil
}

func (t *gormTx) DeleteAccount(ctx context.Context, id int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	db := t.with(ctx)
	if err := db.Where("account_id = ?", id).Delete(&sqlAccess{}).Error; err != nil {
		return fmt.Errorf("failed to delete account access: %w", err)
	}
	if err := db.Where("id = ?", id).Delete(&sqlAccount{}).Error; err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}

func (t *gormTx) CreateAccess(ctx context.Context, access *models.AccountAccess) error {
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
	row := fromAccess(access)
	err = t.with(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return duplicateAccess(access)
	}
	if err != nil {
		return fmt.Errorf("failed to create account access: %w", err)
	}
	return nil
}

func (t *gormTx) GetAccess(ctx context.Context, username string, accountID int64) (*models.AccountAccess, error) {
	rows, err := t.findAccess(t.with(ctx).Where("aa.client_username = ? AND aa.account_id = ?", username, accountID))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (t *gormTx) ListAccessByClient(ctx context.Context, username string) ([]*models.AccountAccess, error) {
	return t.findAccess(t.with(ctx).Where("aa.client_username = ?", username).Order("a.id"))
}

func (t *gormTx) ListAccessByAccount(ctx context.Context, accountID int64) ([]*models.AccountAccess, error) {
	return t.findAccess(t.with(ctx).Where("aa.account_id = ?", accountID).Order("aa.granted_at, aa.client_username"))
}

func (t *gormTx) findAccess(q *gorm.DB) ([]*models.AccountAccess, error) {
	var rows []accessJoin
	err := q.Table("account_access aa").
		Select("aa.client_username, aa.role, aa.granted_at, a.id AS account_id, a.name AS account_name, a.balance AS account_balance, a.created_at AS account_created_at").
		Joins("JOIN accounts a ON a.id = aa.account_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list account access: %w", err)
	}
	out := make([]*models.AccountAccess, len(rows))
	for i := range rows {
		out[i] = rows[i].toModel()
	}
	return out, nil
}

func (t *gormTx) CreateCredential(ctx context.Context, cred *models.Credential) error {
	row := fromCredential(cred)
	err := t.with(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return models.NewError(models.KindDuplicateUsername, "credential for %q already exists", cred.Username).
			With("username", cred.Username)
	}
	if err != nil {
		return fmt.Errorf("failed to create credential: %w", err)
	}
	return nil
}

func (t *gormTx) GetCredential(ctx context.Context, username string) (*models.Credential, error) {
	var row sqlCredential
	err := t.with(ctx).Where("username = ?", username).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return row.toModel(), nil
}

func duplicateUsername(username string) error {
	return models.NewError(models.KindDuplicateUsername, "username %q is already taken", username).
		With("username", username)
}

func duplicateAccess(access *models.AccountAccess) error {
	return models.NewError(models.KindDuplicateAccess, "client %q already has access to account %d",
		access.ClientUsername, access.Account.ID).
		With("username", access.ClientUsername).With("account", access.Account.ID)
}
