// Package memory provides an in-process implementation of storage.Store.
//
// Committed state is an immutable snapshot: the catalog (clients, access
// rows, credentials) plus the balances of every account. Commits publish a
// new snapshot in one atomic swap, so readers never block and never see part
// of a unit of work.
//
// A unit of work that mutates the catalog takes the single catalog writer
// lock and edits a private copy. Balance changes are staged under
// per-account locks, so units of work touching disjoint accounts only meet
// for the short swap at commit.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mmynk/ledgerbank/internal/models"
	"github.com/mmynk/ledgerbank/internal/storage"
)

// ErrLockOrder is returned when a unit of work would acquire a lock out of
// order: the catalog after account locks, or an account below one it holds.
var ErrLockOrder = errors.New("memory: lock acquired out of order")

var _ storage.Store = (*Store)(nil)

// Store is a concurrency-safe in-memory storage.Store.
type Store struct {
	snapshot      atomic.Pointer[state]
	publish       sync.Mutex // serializes snapshot swaps
	catalogWriter sync.Mutex

	mu      sync.Mutex // guards entries
	entries map[int64]*accountEntry

	clientSeq  atomic.Int64
	accountSeq atomic.Int64
}

type accessRow struct {
	role      models.Role
	grantedAt time.Time
}

type catalog struct {
	clients   map[string]models.Client
	accounts  map[int64]struct{}
	access    map[string]map[int64]accessRow // username -> account -> row
	byAccount map[int64]map[string]struct{}
	creds     map[string]models.Credential
}

// state is one committed version of the store. It is never modified once
// published.
type state struct {
	cat      *catalog
	balances map[int64]models.Account
}

func newCatalog() *catalog {
	return &catalog{
		clients:   make(map[string]models.Client),
		accounts:  make(map[int64]struct{}),
		access:    make(map[string]map[int64]accessRow),
		byAccount: make(map[int64]map[string]struct{}),
		creds:     make(map[string]models.Credential),
	}
}

func (c *catalog) clone() *catalog {
	out := newCatalog()
	for k, v := range c.clients {
		out.clients[k] = v
	}
	for k := range c.accounts {
		out.accounts[k] = struct{}{}
	}
	for u, rows := range c.access {
		m := make(map[int64]accessRow, len(rows))
		for id, r := range rows {
			m[id] = r
		}
		out.access[u] = m
	}
	for id, users := range c.byAccount {
		m := make(map[string]struct{}, len(users))
		for u := range users {
			m[u] = struct{}{}
		}
		out.byAccount[id] = m
	}
	for k, v := range c.creds {
		out.creds[k] = v
	}
	return out
}

// accountEntry is the lock of one account, held by the unit of work that
// locked or created it.
type accountEntry struct {
	owner sync.Mutex
}

// New creates an empty Store.
func New() *Store {
	s := &Store{entries: make(map[int64]*accountEntry)}
	s.snapshot.Store(&state{cat: newCatalog(), balances: make(map[int64]models.Account)})
	return s
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Update runs fn in a read-write unit of work. Mutations become visible to
// others only when fn returns nil.
func (s *Store) Update(ctx context.Context, fn storage.TxFunc) error {
	tx := &memTx{s: s, locked: make(map[int64]*lockedAccount)}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	tx.commit()
	return nil
}

// View runs fn against the committed state.
func (s *Store) View(ctx context.Context, fn storage.TxFunc) error {
	tx := &memTx{s: s, readOnly: true, snap: s.snapshot.Load()}
	return fn(ctx, tx)
}

// Credentials returns the credential repository of the store.
func (s *Store) Credentials() storage.CredentialStore {
	return credentials{s: s}
}

func (s *Store) entry(id int64) *accountEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[id]
}

type lockedAccount struct {
	entry   *accountEntry
	pending models.Account
	dirty   bool
	deleted bool
}

type memTx struct {
	s        *Store
	readOnly bool
	snap     *state // fixed for read-only units of work

	cat     *catalog // private copy, set once the catalog writer lock is held
	locked  map[int64]*lockedAccount
	maxLock int64
	created []int64
}

var _ storage.Tx = (*memTx)(nil)

// committed returns the snapshot this unit of work reads committed data from.
func (t *memTx) committed() *state {
	if t.snap != nil {
		return t.snap
	}
	return t.s.snapshot.Load()
}

func (t *memTx) view() *catalog {
	return t.read().cat
}

// reader is a consistent pair of catalog and committed balances.
type reader struct {
	cat      *catalog
	balances map[int64]models.Account
}

// read loads the catalog this unit of work sees together with the committed
// balances from the same snapshot.
func (t *memTx) read() reader {
	st := t.committed()
	r := reader{cat: st.cat, balances: st.balances}
	if t.cat != nil {
		r.cat = t.cat
	}
	return r
}

// writeCatalog takes the catalog writer lock on first use.
func (t *memTx) writeCatalog() error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	if t.cat != nil {
		return nil
	}
	if len(t.locked) > 0 {
		if !t.s.catalogWriter.TryLock() {
			return ErrLockOrder
		}
	} else {
		t.s.catalogWriter.Lock()
	}
	t.cat = t.s.snapshot.Load().cat.clone()
	return nil
}

// commit publishes the private catalog and the staged balances as one new
// snapshot.
func (t *memTx) commit() {
	var changed bool
	for _, la := range t.locked {
		if la.deleted || la.dirty {
			changed = true
			break
		}
	}

	if t.cat != nil || changed {
		t.s.publish.Lock()
		cur := t.s.snapshot.Load()
		next := &state{cat: cur.cat, balances: cur.balances}
		if t.cat != nil {
			next.cat = t.cat
		}
		if changed {
			next.balances = make(map[int64]models.Account, len(cur.balances)+len(t.created))
			for id, acc := range cur.balances {
				next.balances[id] = acc
			}
			for id, la := range t.locked {
				switch {
				case la.deleted:
					delete(next.balances, id)
				case la.dirty:
					next.balances[id] = la.pending
				}
			}
		}
		t.s.snapshot.Store(next)
		t.s.publish.Unlock()
	}

	for id, la := range t.locked {
		if la.deleted {
			t.s.mu.Lock()
			delete(t.s.entries, id)
			t.s.mu.Unlock()
		}
	}
	t.release()
}

func (t *memTx) rollback() {
	if len(t.created) > 0 {
		t.s.mu.Lock()
		for _, id := range t.created {
			delete(t.s.entries, id)
		}
		t.s.mu.Unlock()
	}
	t.release()
}

func (t *memTx) release() {
	for _, la := range t.locked {
		la.entry.owner.Unlock()
	}
	t.locked = nil
	if t.cat != nil {
		t.cat = nil
		t.s.catalogWriter.Unlock()
	}
}

// CreateClient adds a client to the private catalog.
func (t *memTx) CreateClient(ctx context.Context, client *models.Client) error {
	if err := t.writeCatalog(); err != nil {
		return err
	}
	if _, ok := t.cat.clients[client.Username]; ok {
		return models.NewError(models.KindDuplicateUsername, "username %q is already taken", client.Username).
			With("username", client.Username)
	}
	if client.CreatedAt.IsZero() {
		client.CreatedAt = time.Now()
	}
	client.ID = t.s.clientSeq.Add(1)
	t.cat.clients[client.Username] = *client
	return nil
}

func (t *memTx) GetClient(ctx context.Context, username string) (*models.Client, error) {
	c, ok := t.view().clients[username]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (t *memTx) ListClients(ctx context.Context) ([]*models.Client, error) {
	return t.filterClients(t.view(), func(models.Client) bool { return true }), nil
}

func (t *memTx) ListClientsBornFrom(ctx context.Context, from time.Time) ([]*models.Client, error) {
	return t.filterClients(t.view(), func(c models.Client) bool { return !c.BirthDate.Before(from) }), nil
}

func (t *memTx) ListClientsWithBalance(ctx context.Context, min models.Amount) ([]*models.Client, error) {
	r := t.read()
	return t.filterClients(r.cat, func(c models.Client) bool {
		for id := range r.cat.access[c.Username] {
			if acc := t.account(r, id); acc != nil && acc.Balance.Cmp(min) >= 0 {
				return true
			}
		}
		return false
	}), nil
}

func (t *memTx) filterClients(cat *catalog, keep func(models.Client) bool) []*models.Client {
	var out []*models.Client
	for _, c := range cat.clients {
		if keep(c) {
			c := c
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DeleteClient drops the client, its access rows and its credential.
func (t *memTx) DeleteClient(ctx context.Context, username string) error {
	if err := t.writeCatalog(); err != nil {
		return err
	}
	for id := range t.cat.access[username] {
		delete(t.cat.byAccount[id], username)
	}
	delete(t.cat.access, username)
	delete(t.cat.clients, username)
	delete(t.cat.creds, username)
	return nil
}

// CreateAccount registers a new account, locked by this unit of work.
func (t *memTx) CreateAccount(ctx context.Context, account *models.Account) error {
	if err := t.writeCatalog(); err != nil {
		return err
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}
	account.ID = t.s.accountSeq.Add(1)

	e := &accountEntry{}
	e.owner.Lock()
	t.s.mu.Lock()
	t.s.entries[account.ID] = e
	t.s.mu.Unlock()

	t.locked[account.ID] = &lockedAccount{entry: e, pending: *account, dirty: true}
	t.created = append(t.created, account.ID)
	if account.ID > t.maxLock {
		t.maxLock = account.ID
	}
	t.cat.accounts[account.ID] = struct{}{}
	t.cat.byAccount[account.ID] = make(map[string]struct{})
	return nil
}

func (t *memTx) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	return t.account(t.read(), id), nil
}

// account returns this unit of work's view of an account, or nil.
func (t *memTx) account(r reader, id int64) *models.Account {
	if la, ok := t.locked[id]; ok {
		if la.deleted {
			return nil
		}
		acc := la.pending
		return &acc
	}
	if _, ok := r.cat.accounts[id]; !ok {
		return nil
	}
	acc, ok := r.balances[id]
	if !ok {
		return nil
	}
	return &acc
}

// LockAccounts takes the account locks in ascending id order. Ids below one
// already held by this unit of work are only tried, never waited for.
func (t *memTx) LockAccounts(ctx context.Context, ids ...int64) (map[int64]*models.Account, error) {
	if t.readOnly {
		return nil, storage.ErrReadOnly
	}

	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	out := make(map[int64]*models.Account, len(sorted))
	for _, id := range sorted {
		if la, ok := t.locked[id]; ok {
			if !la.deleted {
				acc := la.pending
				out[id] = &acc
			}
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if _, ok := t.view().accounts[id]; !ok {
			continue
		}
		e := t.s.entry(id)
		if e == nil {
			continue
		}
		if id < t.maxLock {
			if !e.owner.TryLock() {
				return nil, fmt.Errorf("account %d: %w", id, ErrLockOrder)
			}
		} else {
			e.owner.Lock()
		}

		// The account may have been deleted while we waited.
		committed, ok := t.s.snapshot.Load().balances[id]
		if !ok || t.s.entry(id) != e {
			e.owner.Unlock()
			continue
		}

		la := &lockedAccount{entry: e, pending: committed}
		t.locked[id] = la
		if id > t.maxLock {
			t.maxLock = id
		}
		acc := la.pending
		out[id] = &acc
	}
	return out, nil
}

func (t *memTx) SaveBalance(ctx context.Context, account *models.Account) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	la, ok := t.locked[account.ID]
	if !ok || la.deleted {
		return fmt.Errorf("account %d is not locked by this unit of work", account.ID)
	}
	la.pending.Balance = account.Balance
	la.dirty = true
	return nil
}

// DeleteAccount removes the account and its access rows.
func (t *memTx) DeleteAccount(ctx context.Context, id int64) error {
	if err := t.writeCatalog(); err != nil {
		return err
	}
	if _, err := t.LockAccounts(ctx, id); err != nil {
		return err
	}
	if la, ok := t.locked[id]; ok {
		la.deleted = true
	}
	for u := range t.cat.byAccount[id] {
		delete(t.cat.access[u], id)
	}
	delete(t.cat.byAccount, id)
	delete(t.cat.accounts, id)
	return nil
}

// CreateAccess grants a role. An account may have only one OWNER.
func (t *memTx) CreateAccess(ctx context.Context, access *models.AccountAccess) error {
	if err := t.writeCatalog(); err != nil {
		return err
	}
	id := access.Account.ID
	if _, ok := t.cat.accounts[id]; !ok {
		return models.NewError(models.KindNotFound, "account %d not found", id).With("account", id)
	}
	if _, ok := t.cat.clients[access.ClientUsername]; !ok {
		return models.NewError(models.KindNotFound, "client %q not found", access.ClientUsername).
			With("username", access.ClientUsername)
	}

	dup := func() error {
		return models.NewError(models.KindDuplicateAccess, "client %q already has access to account %d",
			access.ClientUsername, id).
			With("username", access.ClientUsername).With("account", id)
	}
	if _, ok := t.cat.access[access.ClientUsername][id]; ok {
		return dup()
	}
	if access.Role == models.RoleOwner {
		for u := range t.cat.byAccount[id] {
			if t.cat.access[u][id].role == models.RoleOwner {
				return dup()
			}
		}
	}

	if access.GrantedAt.IsZero() {
		access.GrantedAt = time.Now()
	}
	rows := t.cat.access[access.ClientUsername]
	if rows == nil {
		rows = make(map[int64]accessRow)
		t.cat.access[access.ClientUsername] = rows
	}
	rows[id] = accessRow{role: access.Role, grantedAt: access.GrantedAt}
	t.cat.byAccount[id][access.ClientUsername] = struct{}{}
	return nil
}

func (t *memTx) GetAccess(ctx context.Context, username string, accountID int64) (*models.AccountAccess, error) {
	r := t.read()
	row, ok := r.cat.access[username][accountID]
	if !ok {
		return nil, nil
	}
	return t.buildAccess(r, username, accountID, row), nil
}

func (t *memTx) ListAccessByClient(ctx context.Context, username string) ([]*models.AccountAccess, error) {
	r := t.read()
	var out []*models.AccountAccess
	for id, row := range r.cat.access[username] {
		if a := t.buildAccess(r, username, id, row); a != nil {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account.ID < out[j].Account.ID })
	return out, nil
}

func (t *memTx) ListAccessByAccount(ctx context.Context, accountID int64) ([]*models.AccountAccess, error) {
	r := t.read()
	var out []*models.AccountAccess
	for u := range r.cat.byAccount[accountID] {
		if a := t.buildAccess(r, u, accountID, r.cat.access[u][accountID]); a != nil {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].GrantedAt.Equal(out[j].GrantedAt) {
			return out[i].GrantedAt.Before(out[j].GrantedAt)
		}
		return out[i].ClientUsername < out[j].ClientUsername
	})
	return out, nil
}

func (t *memTx) buildAccess(r reader, username string, id int64, row accessRow) *models.AccountAccess {
	acc := t.account(r, id)
	if acc == nil {
		return nil
	}
	return &models.AccountAccess{
		ClientUsername: username,
		Account:        *acc,
		Role:           row.role,
		GrantedAt:      row.grantedAt,
	}
}

// credentials implements storage.CredentialStore on the catalog.
type credentials struct {
	s *Store
}

func (c credentials) CreateCredential(ctx context.Context, cred *models.Credential) error {
	return c.s.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
		t := tx.(*memTx)
		if err := t.writeCatalog(); err != nil {
			return err
		}
		if _, ok := t.cat.creds[cred.Username]; ok {
			return models.NewError(models.KindDuplicateUsername, "credential for %q already exists", cred.Username).
				With("username", cred.Username)
		}
		t.cat.creds[cred.Username] = *cred
		return nil
	})
}

func (c credentials) GetCredential(ctx context.Context, username string) (*models.Credential, error) {
	cred, ok := c.s.snapshot.Load().cat.creds[username]
	if !ok {
		return nil, nil
	}
	return &cred, nil
}
