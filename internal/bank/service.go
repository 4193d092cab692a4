// Package bank is the ledger core: client lifecycle, account access and
// money movements, each running in one unit of work over a storage.Store.
package bank

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mmynk/ledgerbank/internal/events"
	"github.com/mmynk/ledgerbank/internal/metrics"
	"github.com/mmynk/ledgerbank/internal/models"
	"github.com/mmynk/ledgerbank/internal/storage"
)

// MaxClientAge bounds how far in the past a birth date may lie.
const MaxClientAge = 150

// DeletePolicy decides what happens to the accounts a deleted client owns.
type DeletePolicy int

const (
	// RejectDelete refuses to delete a client owning an account with a
	// nonzero balance. Empty owned accounts are removed.
	RejectDelete DeletePolicy = iota
	// CascadeDelete removes owned accounts whatever their balance.
	CascadeDelete
)

// ParseDeletePolicy maps the config values "reject" and "cascade".
func ParseDeletePolicy(s string) (DeletePolicy, error) {
	switch strings.ToLower(s) {
	case "", "reject":
		return RejectDelete, nil
	case "cascade":
		return CascadeDelete, nil
	default:
		return RejectDelete, fmt.Errorf("unknown delete policy %q", s)
	}
}

func (p DeletePolicy) String() string {
	if p == CascadeDelete {
		return "cascade"
	}
	return "reject"
}

// Options configures a Service. The zero value is usable.
type Options struct {
	Overdraft    models.OverdraftPolicy
	DeletePolicy DeletePolicy
	Publisher    events.Publisher
	Metrics      *metrics.Metrics

	// Now returns the current time; defaults to time.Now.
	Now func() time.Time
}

// Service manages clients and answers cross-client queries.
type Service struct {
	store        storage.Store
	overdraft    models.OverdraftPolicy
	deletePolicy DeletePolicy
	publisher    events.Publisher
	metrics      *metrics.Metrics
	now          func() time.Time
}

// NewService creates a Service over store.
func NewService(store storage.Store, opts Options) *Service {
	s := &Service{
		store:        store,
		overdraft:    opts.Overdraft,
		deletePolicy: opts.DeletePolicy,
		publisher:    opts.Publisher,
		metrics:      opts.Metrics,
		now:          opts.Now,
	}
	if s.publisher == nil {
		s.publisher = events.Nop{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// observe records metrics and logs the outcome of an operation.
func (s *Service) observe(op string, start time.Time, err error, attrs ...any) {
	s.metrics.Observe(op, start, err)
	switch {
	case err == nil:
		slog.Debug(op+" succeeded", attrs...)
	case models.KindOf(err) != "":
		slog.Info(op+" rejected", append(attrs, "error", err)...)
	default:
		slog.Error(op+" failed", append(attrs, "error", err)...)
	}
}

// CreateClient registers a new client. Usernames are unique; the birth date
// must not lie in the future nor more than MaxClientAge years back.
func (s *Service) CreateClient(ctx context.Context, username string, birthDate time.Time) (client *models.Client, err error) {
	defer func(start time.Time) { s.observe("create_client", start, err, "username", username) }(time.Now())

	if strings.TrimSpace(username) == "" {
		return nil, models.NewError(models.KindDomainInvariantViolation, "username must not be blank")
	}

	birthDate = models.Date(birthDate)
	today := models.Date(s.now())
	if birthDate.After(today) {
		return nil, models.NewError(models.KindInvalidBirthDate, "birth date %s lies in the future",
			birthDate.Format(models.DateLayout)).With("username", username)
	}
	if birthDate.Before(today.AddDate(-MaxClientAge, 0, 0)) {
		return nil, models.NewError(models.KindInvalidBirthDate, "birth date %s is more than %d years ago",
			birthDate.Format(models.DateLayout), MaxClientAge).With("username", username)
	}

	client = &models.Client{Username: username, BirthDate: birthDate}
	err = s.update(ctx, func(ctx context.Context, u *unitOfWork) error {
		if err := u.tx.CreateClient(ctx, client); err != nil {
			return err
		}
		e := events.New(events.ClientCreated)
		e.Username = username
		u.emit(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// FindClient looks a client up by username. A missing client is reported
// through ok, not as an error.
func (s *Service) FindClient(ctx context.Context, username string) (client *models.Client, ok bool, err error) {
	err = s.view(ctx, func(ctx context.Context, tx storage.Tx) error {
		client, err = tx.GetClient(ctx, username)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return client, client != nil, nil
}

// DeleteClient removes a client with its access rows and credential. Accounts
// it owns are deleted too; under RejectDelete the call fails instead if any
// of them holds money.
func (s *Service) DeleteClient(ctx context.Context, username string) (err error) {
	defer func(start time.Time) { s.observe("delete_client", start, err, "username", username) }(time.Now())

	return s.update(ctx, func(ctx context.Context, u *unitOfWork) error {
		client, err := u.tx.GetClient(ctx, username)
		if err != nil {
			return err
		}
		if client == nil {
			return models.NewError(models.KindNotFound, "client %q not found", username).With("username", username)
		}

		accesses, err := u.tx.ListAccessByClient(ctx, username)
		if err != nil {
			return err
		}
		var owned []int64
		for _, a := range accesses {
			if a.IsOwner() {
				owned = append(owned, a.Account.ID)
			}
		}

		if err := u.tx.DeleteClient(ctx, username); err != nil {
			return err
		}

		if len(owned) > 0 {
			locked, err := u.tx.LockAccounts(ctx, owned...)
			if err != nil {
				return err
			}
			for _, id := range owned {
				acc, ok := locked[id]
				if !ok {
					continue
				}
				if s.deletePolicy == RejectDelete && !acc.Balance.IsZero() {
					return models.NewError(models.KindDomainInvariantViolation,
						"client %q owns account %d with balance %s", username, id, acc.Balance).
						With("username", username).With("account", id)
				}
				if err := u.tx.DeleteAccount(ctx, id); err != nil {
					return err
				}
			}
		}

		e := events.New(events.ClientDeleted)
		e.Username = username
		u.emit(e)
		return nil
	})
}

// FindAllClients returns every client.
func (s *Service) FindAllClients(ctx context.Context) (clients []*models.Client, err error) {
	err = s.view(ctx, func(ctx context.Context, tx storage.Tx) error {
		clients, err = tx.ListClients(ctx)
		return err
	})
	return clients, err
}

// FindYoungClients returns clients born on or after from.
func (s *Service) FindYoungClients(ctx context.Context, from time.Time) (clients []*models.Client, err error) {
	err = s.view(ctx, func(ctx context.Context, tx storage.Tx) error {
		clients, err = tx.ListClientsBornFrom(ctx, models.Date(from))
		return err
	})
	return clients, err
}

// FindRichClients returns clients with access to at least one account whose
// balance is min or more.
func (s *Service) FindRichClients(ctx context.Context, min models.Amount) (clients []*models.Client, err error) {
	err = s.view(ctx, func(ctx context.Context, tx storage.Tx) error {
		clients, err = tx.ListClientsWithBalance(ctx, min)
		return err
	})
	return clients, err
}

// Atomically runs fn in one unit of work. Core operations called with the
// ctx passed to fn join it, so they commit or roll back together.
func (s *Service) Atomically(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func(start time.Time) { s.observe("atomically", start, err) }(time.Now())

	return s.update(ctx, func(ctx context.Context, u *unitOfWork) error {
		return fn(ctx)
	})
}

// ClientSession resolves username to the client acting in a session.
func (s *Service) ClientSession(ctx context.Context, username string) (*ClientSession, error) {
	client, ok, err := s.FindClient(ctx, username)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewError(models.KindNotFound, "no client for user %q", username).With("username", username)
	}
	return &ClientSession{svc: s, client: *client}, nil
}
