package bank

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmynk/ledgerbank/internal/events"
	"github.com/mmynk/ledgerbank/internal/models"
	"github.com/mmynk/ledgerbank/internal/storage"
)

// ClientSession runs account operations on behalf of one client. Every
// operation checks the client's access on the accounts it touches.
type ClientSession struct {
	svc    *Service
	client models.Client
}

// Client returns the acting client.
func (c *ClientSession) Client() models.Client { return c.client }

// Username returns the acting client's username.
func (c *ClientSession) Username() string { return c.client.Username }

// CreateAccount opens an account with zero balance, owned by the client.
func (c *ClientSession) CreateAccount(ctx context.Context, name string) (access *models.AccountAccess, err error) {
	defer func(start time.Time) {
		c.svc.observe("create_account", start, err, "username", c.client.Username, "name", name)
	}(time.Now())

	if strings.TrimSpace(name) == "" {
		return nil, models.NewError(models.KindDomainInvariantViolation, "account name must not be blank").
			With("username", c.client.Username)
	}

	err = c.svc.update(ctx, func(ctx context.Context, u *unitOfWork) error {
		if err := c.ensureClient(ctx, u.tx); err != nil {
			return err
		}
		account := &models.Account{Name: name}
		if err := u.tx.CreateAccount(ctx, account); err != nil {
			return err
		}
		access = &models.AccountAccess{
			ClientUsername: c.client.Username,
			Account:        *account,
			Role:           models.RoleOwner,
		}
		if err := u.tx.CreateAccess(ctx, access); err != nil {
			return err
		}

		e := events.New(events.AccountCreated)
		e.Username = c.client.Username
		e.AccountID = account.ID
		u.emit(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return access, nil
}

// FindAccount returns an account the client owns or manages. Accounts
// without access are reported as not found.
func (c *ClientSession) FindAccount(ctx context.Context, id int64) (account *models.Account, err error) {
	err = c.svc.view(ctx, func(ctx context.Context, tx storage.Tx) error {
		access, err := tx.GetAccess(ctx, c.client.Username, id)
		if err != nil {
			return err
		}
		if access == nil {
			return notFound(id)
		}
		acc := access.Account
		account = &acc
		return nil
	})
	return account, err
}

// Deposit credits amount to an account the client owns or manages.
func (c *ClientSession) Deposit(ctx context.Context, accountID int64, amount models.Amount) (err error) {
	defer func(start time.Time) {
		c.svc.observe("deposit", start, err, "username", c.client.Username, "account", accountID, "amount", amount)
	}(time.Now())

	if err := requirePositive(amount); err != nil {
		return err
	}

	err = c.svc.update(ctx, func(ctx context.Context, u *unitOfWork) error {
		if _, err := c.authorize(ctx, u.tx, accountID, false); err != nil {
			return err
		}
		locked, err := u.tx.LockAccounts(ctx, accountID)
		if err != nil {
			return err
		}
		account, ok := locked[accountID]
		if !ok {
			return notFound(accountID)
		}
		if err := account.Credit(amount); err != nil {
			return err
		}
		if err := u.tx.SaveBalance(ctx, account); err != nil {
			return err
		}

		e := events.New(events.MoneyDeposited)
		e.Username = c.client.Username
		e.AccountID = accountID
		e.Amount = &amount
		u.emit(e)
		return nil
	})
	if err == nil {
		c.svc.metrics.MoneyMoved("deposit", amount)
	}
	return err
}

// Transfer moves amount from source to destination and returns the source
// account after the debit. Only access to source is required. Both balances
// change together or not at all.
func (c *ClientSession) Transfer(ctx context.Context, sourceID, destinationID int64, amount models.Amount) (source *models.Account, err error) {
	defer func(start time.Time) {
		c.svc.observe("transfer", start, err, "username", c.client.Username,
			"source", sourceID, "destination", destinationID, "amount", amount)
	}(time.Now())

	if err := requirePositive(amount); err != nil {
		return nil, err
	}
	if sourceID == destinationID {
		return nil, models.NewError(models.KindDomainInvariantViolation, "cannot transfer from account %d to itself", sourceID).
			With("account", sourceID)
	}

	err = c.svc.update(ctx, func(ctx context.Context, u *unitOfWork) error {
		if _, err := c.authorize(ctx, u.tx, sourceID, false); err != nil {
			return err
		}
		locked, err := u.tx.LockAccounts(ctx, sourceID, destinationID)
		if err != nil {
			return err
		}
		src, ok := locked[sourceID]
		if !ok {
			return notFound(sourceID)
		}
		dst, ok := locked[destinationID]
		if !ok {
			return notFound(destinationID)
		}

		if err := src.Debit(amount, c.svc.overdraft); err != nil {
			return err
		}
		if err := dst.Credit(amount); err != nil {
			return err
		}
		if err := u.tx.SaveBalance(ctx, src); err != nil {
			return err
		}
		if err := u.tx.SaveBalance(ctx, dst); err != nil {
			return err
		}

		e := events.New(events.MoneyTransferred)
		e.Username = c.client.Username
		e.AccountID = sourceID
		e.DestinationID = destinationID
		e.Amount = &amount
		u.emit(e)

		source = src
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.svc.metrics.MoneyMoved("transfer", amount)
	return source, nil
}

// AddAccountManager lets another client manage an account the caller owns.
func (c *ClientSession) AddAccountManager(ctx context.Context, accountID int64, managerUsername string) (access *models.AccountAccess, err error) {
	defer func(start time.Time) {
		c.svc.observe("add_account_manager", start, err, "username", c.client.Username,
			"account", accountID, "manager", managerUsername)
	}(time.Now())

	err = c.svc.update(ctx, func(ctx context.Context, u *unitOfWork) error {
		own, err := c.authorize(ctx, u.tx, accountID, true)
		if err != nil {
			return err
		}
		manager, err := u.tx.GetClient(ctx, managerUsername)
		if err != nil {
			return err
		}
		if manager == nil {
			return models.NewError(models.KindNotFound, "client %q not found", managerUsername).
				With("username", managerUsername)
		}

		access = &models.AccountAccess{
			ClientUsername: managerUsername,
			Account:        own.Account,
			Role:           models.RoleManager,
		}
		if err := u.tx.CreateAccess(ctx, access); err != nil {
			return err
		}

		e := events.New(events.ManagerAdded)
		e.Username = c.client.Username
		e.AccountID = accountID
		e.Manager = managerUsername
		u.emit(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return access, nil
}

// Accesses lists the client's roles with account snapshots, by account id.
func (c *ClientSession) Accesses(ctx context.Context) (accesses []*models.AccountAccess, err error) {
	err = c.svc.view(ctx, func(ctx context.Context, tx storage.Tx) error {
		accesses, err = tx.ListAccessByClient(ctx, c.client.Username)
		return err
	})
	return accesses, err
}

// AccountsReport renders the client's accounts as text: a header line, then
// one tab-separated line per account.
func (c *ClientSession) AccountsReport(ctx context.Context) (string, error) {
	accesses, err := c.Accesses(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Accounts of client: %s\n", c.client.Username)
	for _, a := range accesses {
		fmt.Fprintf(&b, "%d\t%s\t%s\t%s\n", a.Account.ID, a.Role, a.Account.Name, a.Account.Balance)
	}
	return b.String(), nil
}

// authorize returns the client's access on an account. Any role will do
// unless ownerOnly is set.
func (c *ClientSession) authorize(ctx context.Context, tx storage.Tx, accountID int64, ownerOnly bool) (*models.AccountAccess, error) {
	access, err := tx.GetAccess(ctx, c.client.Username, accountID)
	if err != nil {
		return nil, err
	}
	if access == nil {
		return nil, models.NewError(models.KindNotAuthorized, "client %q has no access to account %d",
			c.client.Username, accountID).With("username", c.client.Username).With("account", accountID)
	}
	if ownerOnly && !access.IsOwner() {
		return nil, models.NewError(models.KindNotAuthorized, "client %q is not the owner of account %d",
			c.client.Username, accountID).With("username", c.client.Username).With("account", accountID)
	}
	return access, nil
}

// ensureClient fails if the client was deleted after the session started.
func (c *ClientSession) ensureClient(ctx context.Context, tx storage.Tx) error {
	client, err := tx.GetClient(ctx, c.client.Username)
	if err != nil {
		return err
	}
	if client == nil {
		return models.NewError(models.KindNotFound, "client %q not found", c.client.Username).
			With("username", c.client.Username)
	}
	return nil
}

func requirePositive(amount models.Amount) error {
	if !amount.IsPositive() {
		return models.NewError(models.KindDomainInvariantViolation, "amount %s must be positive", amount).
			With("amount", amount.String())
	}
	return nil
}

func notFound(id int64) error {
	return models.NewError(models.KindNotFound, "account %d not found", id).With("account", id)
}
