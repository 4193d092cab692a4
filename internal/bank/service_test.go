package bank

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/ledgerbank/internal/events"
	"github.com/mmynk/ledgerbank/internal/metrics"
	"github.com/mmynk/ledgerbank/internal/models"
	"github.com/mmynk/ledgerbank/internal/storage"
	"github.com/mmynk/ledgerbank/internal/storage/memory"
	"github.com/mmynk/ledgerbank/internal/storage/sqlite"
)

var today = time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	store    storage.Store
	recorder *events.Recorder
}

// forEachStore runs fn once per storage backend.
func forEachStore(t *testing.T, opts Options, fn func(t *testing.T, f *fixture)) {
	backends := map[string]func(t *testing.T) storage.Store{
		"memory": func(t *testing.T) storage.Store { return memory.New() },
		"sqlite": func(t *testing.T) storage.Store {
			store, err := sqlite.New(filepath.Join(t.TempDir(), "bank.db"))
			require.NoError(t, err)
			t.Cleanup(func() { store.Close() })
			return store
		},
	}
	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			rec := &events.Recorder{}
			o := opts
			o.Publisher = rec
			o.Now = func() time.Time { return today }
			fn(t, &fixture{svc: NewService(store, o), store: store, recorder: rec})
		})
	}
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := models.ParseDate(s)
	require.NoError(t, err)
	return d
}

func amount(s string) models.Amount { return models.MustParseAmount(s) }

func (f *fixture) session(t *testing.T, username string) *ClientSession {
	t.Helper()
	ctx := context.Background()
	if _, ok, err := f.svc.FindClient(ctx, username); err == nil && !ok {
		_, err := f.svc.CreateClient(ctx, username, date(t, "1990-01-01"))
		require.NoError(t, err)
	}
	s, err := f.svc.ClientSession(ctx, username)
	require.NoError(t, err)
	return s
}

func (f *fixture) account(t *testing.T, s *ClientSession, name, balance string) int64 {
	t.Helper()
	ctx := context.Background()
	access, err := s.CreateAccount(ctx, name)
	require.NoError(t, err)
	if b := amount(balance); b.IsPositive() {
		require.NoError(t, s.Deposit(ctx, access.Account.ID, b))
	}
	return access.Account.ID
}

func (f *fixture) balance(t *testing.T, id int64) models.Amount {
	t.Helper()
	var acc *models.Account
	require.NoError(t, f.store.View(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		var err error
		acc, err = tx.GetAccount(ctx, id)
		return err
	}))
	require.NotNil(t, acc, "account %d", id)
	return acc.Balance
}

func TestTransferConservesMoney(t *testing.T) {
	forEachStore(t, Options{}, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		alice := f.session(t, "alice")
		bob := f.session(t, "bob")
		a := f.account(t, alice, "Checking", "100.00")
		b := f.account(t, bob, "Savings", "20.05")

		transfers := []struct {
			from   *ClientSession
			src    int64
			dst    int64
			amount string
		}{
			{alice, a, b, "33.33"},
			{bob, b, a, "0.01"},
			{alice, a, b, "66.68"},
			{bob, b, a, "120.05"},
		}
		for _, tr := range transfers {
			before := f.balance(t, tr.src).Add(f.balance(t, tr.dst))
			src, err := tr.from.Transfer(ctx, tr.src, tr.dst, amount(tr.amount))
			require.NoError(t, err)
			require.True(t, src.Balance.Equal(f.balance(t, tr.src)))
			after := f.balance(t, tr.src).Add(f.balance(t, tr.dst))
			require.True(t, before.Equal(after), "before %s after %s", before, after)
		}
		require.Equal(t, "120.05", f.balance(t, a).String())
		require.Equal(t, "0.00", f.balance(t, b).String())
	})
}

func TestTransferInsufficientFundsChangesNothing(t *testing.T) {
	forEachStore(t, Options{}, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		alice := f.session(t, "alice")
		a := f.account(t, alice, "Checking", "50")
		b := f.account(t, alice, "Savings", "5")

		_, err := alice.Transfer(ctx, a, b, amount("50.01"))
		require.ErrorIs(t, err, models.ErrInsufficientFunds)
		require.Equal(t, "50.00", f.balance(t, a).String())
		require.Equal(t, "5.00", f.balance(t, b).String())
		require.NotContains(t, f.recorder.Types(), events.MoneyTransferred)
	})
}

func TestTransferWithOverdraftAllowed(t *testing.T) {
	forEachStore(t, Options{Overdraft: models.AllowOverdraft}, func(t *testing.T, f *fixture) {
		alice := f.session(t, "alice")
		a := f.account(t, alice, "Checking", "0")
		b := f.account(t, alice, "Savings", "0")

		src, err := alice.Transfer(context.Background(), a, b, amount("10"))
		require.NoError(t, err)
		require.Equal(t, "-10.00", src.Balance.String())
		require.Equal(t, "10.00", f.balance(t, b).String())
	})
}

func TestTransferValidation(t *testing.T) {
	forEachStore(t, Options{}, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		alice := f.session(t, "alice")
		bob := f.session(t, "bob")
		a := f.account(t, alice, "Checking", "10")
		b := f.account(t, bob, "Savings", "0")

		_, err := alice.Transfer(ctx, a, a, amount("1"))
		require.ErrorIs(t, err, models.ErrDomainInvariantViolation)

		_, err = alice.Transfer(ctx, a, b, amount("0"))
		require.ErrorIs(t, err, models.ErrDomainInvariantViolation)

		_, err = alice.Transfer(ctx, a, b, amount("-1"))
		require.ErrorIs(t, err, models.ErrDomainInvariantViolation)

		_, err = alice.Transfer(ctx, a, 9999, amount("1"))
		require.ErrorIs(t, err, models.ErrNotFound)
		require.Equal(t, "10.00", f.balance(t, a).String())

		// Paying into an account without access to it is allowed.
		_, err = alice.Transfer(ctx, a, b, amount("2.50"))
		require.NoError(t, err)
		require.Equal(t, "2.50", f.balance(t, b).String())
	})
}

func TestAuthorization(t *testing.T) {
	forEachStore(t, Options{}, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		alice := f.session(t, "alice")
		mallory := f.session(t, "mallory")
		f.session(t, "carol")
		a := f.account(t, alice, "Checking", "100")
		m := f.account(t, mallory, "Loot", "0")

		err := mallory.Deposit(ctx, a, amount("1"))
		require.ErrorIs(t, err, models.ErrNotAuthorized)

		_, err = mallory.Transfer(ctx, a, m, amount("1"))
		require.ErrorIs(t, err, models.ErrNotAuthorized)

		_, err = mallory.AddAccountManager(ctx, a, "mallory")
		require.ErrorIs(t, err, models.ErrNotAuthorized)

		_, err = mallory.FindAccount(ctx, a)
		require.ErrorIs(t, err, models.ErrNotFound)

		// Nonexistent accounts look the same as foreign ones.
		err = mallory.Deposit(ctx, 9999, amount("1"))
		require.ErrorIs(t, err, models.ErrNotAuthorized)

		require.Equal(t, "100.00", f.balance(t, a).String())
		require.Equal(t, "0.00", f.balance(t, m).String())
	})
}

func TestDepositValidation(t *testing.T) {
	forEachStore(t, Options{}, func(t *testing.T, f *fixture) {
		alice := f.session(t, "alice")
		a := f.account(t, alice, "Checking", "0")

		require.ErrorIs(t, alice.Deposit(context.Background(), a, amount("0")), models.ErrDomainInvariantViolation)
		require.ErrorIs(t, alice.Deposit(context.Background(), a, amount("-5")), models.ErrDomainInvariantViolation)
		require.Equal(t, "0.00", f.balance(t, a).String())
	})
}

func TestDuplicateUsername(t *testing.T) {
	forEachStore(t, Options{}, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		first, err := f.svc.CreateClient(ctx, "alice", date(t, "1980-05-05"))
		require.NoError(t, err)

		_, err = f.svc.CreateClient(ctx, "alice", date(t, "2001-01-01"))
		require.ErrorIs(t, err, models.ErrDuplicateUsername)

		got, ok, err := f.svc.FindClient(ctx, "alice")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, first.ID, got.ID)
		require.True(t, got.BirthDate.Equal(date(t, "1980-05-05")))
	})
}

func TestCreateClientValidation(t *testing.T) {
	forEachStore(t, Options{}, func(t *testing.T, f *fixture) {
		ctx := context.Background()

		_, err := f.svc.CreateClient(ctx, "  ", date(t, "1990-01-01"))
		require.ErrorIs(t, err, models.ErrDomainInvariantViolation)

		_, err = f.svc.CreateClient(ctx, "future", date(t, "2024-06-02"))
		require.ErrorIs(t, err, models.ErrInvalidBirthDate)

		_, err = f.svc.CreateClient(ctx, "ancient", date(t, "1874-05-31"))
		require.ErrorIs(t, err, models.ErrInvalidBirthDate)

		_, err = f.svc.CreateClient(ctx, "newborn", date(t, "2024-06-01"))
		require.NoError(t, err)

		_, err = f.svc.CreateClient(ctx, "eldest", date(t, "1874-06-01"))
		require.NoError(t, err)

		_, ok, err := f.svc.FindClient(ctx, "future")
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestFindRichClientsIsRepeatable(t *testing.T) {
	forEachStore(t, Options{}, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		alice := f.session(t, "alice")
		bob := f.session(t, "bob")
		f.session(t, "carol")
		f.account(t, alice, "Small", "10")
		f.account(t, alice, "Smaller", "95")
		big := f.account(t, bob, "Big", "250")
		_, err := bob.AddAccountManager(ctx, big, "carol")
		require.NoError(t, err)

		first, err := f.svc.FindRichClients(ctx, amount("100"))
		require.NoError(t, err)
		second, err := f.svc.FindRichClients(ctx, amount("100"))
		require.NoError(t, err)
		require.Equal(t, usernames(first), usernames(second))

		// Balances are not summed across accounts; managers count.
		require.ElementsMatch(t, []string{"bob", "carol"}, usernames(first))
	})
}

func TestFindClients(t *testing.T) {
	forEachStore(t, Options{}, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		for name, born := range map[string]string{"ann": "1960-02-29", "ben": "1999-12-31", "cid": "2000-01-01"} {
			_, err := f.svc.CreateClient(ctx, name, date(t, born))
			require.NoError(t, err)
		}

		all, err := f.svc.FindAllClients(ctx)
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"ann", "ben", "cid"}, usernames(all))

		young, err := f.svc.FindYoungClients(ctx, date(t, "1999-12-31"))
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"ben", "cid"}, usernames(young))

		none, err := f.svc.FindYoungClients(ctx, date(t, "2010-01-01"))
		require.NoError(t, err)
		require.Empty(t, none)
	})
}

func TestEndToEndScenario(t *testing.T) {
	forEachStore(t, Options{}, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		a := f.session(t, "clientA")

		access, err := a.CreateAccount(ctx, "Acc1")
		require.NoError(t, err)
		require.True(t, access.IsOwner())
		require.Equal(t, "0.00", access.Account.Balance.String())
		acc1 := access.Account.ID

		require.NoError(t, a.Deposit(ctx, acc1, amount("100")))
		require.Equal(t, "100.00", f.balance(t, acc1).String())

		b := f.session(t, "clientB")
		granted, err := a.AddAccountManager(ctx, acc1, "clientB")
		require.NoError(t, err)
		require.Equal(t, models.RoleManager, granted.Role)
		require.Equal(t, "clientB", granted.ClientUsername)

		require.NoError(t, b.Deposit(ctx, acc1, amount("50")))
		require.Equal(t, "150.00", f.balance(t, acc1).String())

		f.session(t, "clientC")
		_, err = b.AddAccountManager(ctx, acc1, "clientC")
		require.ErrorIs(t, err, models.ErrNotAuthorized)

		_, err = a.AddAccountManager(ctx, acc1, "clientB")
		require.ErrorIs(t, err, models.ErrDuplicateAccess)

		_, err = a.AddAccountManager(ctx, acc1, "clientA")
		require.ErrorIs(t, err, models.ErrDuplicateAccess)

		_, err = a.AddAccountManager(ctx, acc1, "ghost")
		require.ErrorIs(t, err, models.ErrNotFound)

		found, err := b.FindAccount(ctx, acc1)
		require.NoError(t, err)
		require.Equal(t, "Acc1", found.Name)

		require.Equal(t, []events.Type{
			events.ClientCreated,
			events.AccountCreated,
			events.MoneyDeposited,
			events.ClientCreated,
			events.ManagerAdded,
			events.MoneyDeposited,
			events.ClientCreated,
		}, f.recorder.Types())
	})
}

func TestRollbackScenario(t *testing.T) {
	forEachStore(t, Options{}, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		boom := errors.New("failure after first client")

		err := f.svc.Atomically(ctx, func(ctx context.Context) error {
			if _, err := f.svc.CreateClient(ctx, "hans1", date(t, "1970-01-01")); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		for _, name := range []string{"hans1", "jana1"} {
			_, ok, err := f.svc.FindClient(ctx, name)
			require.NoError(t, err)
			require.False(t, ok, name)
		}
		require.Empty(t, f.recorder.Types())

		err = f.svc.Atomically(ctx, func(ctx context.Context) error {
			if _, err := f.svc.CreateClient(ctx, "hans2", date(t, "1970-01-01")); err != nil {
				return err
			}
			_, err := f.svc.CreateClient(ctx, "jana2", date(t, "1971-01-01"))
			return err
		})
		require.NoError(t, err)

		all, err := f.svc.FindAllClients(ctx)
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"hans2", "jana2"}, usernames(all))
		require.Equal(t, []events.Type{events.ClientCreated, events.ClientCreated}, f.recorder.Types())
	})
}

func TestRollbackUndoesMoneyMovement(t *testing.T) {
	forEachStore(t, Options{}, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		alice := f.session(t, "alice")
		a := f.account(t, alice, "Checking", "40")
		b := f.account(t, alice, "Savings", "0")

		err := f.svc.Atomically(ctx, func(ctx context.Context) error {
			if _, err := alice.Transfer(ctx, a, b, amount("30")); err != nil {
				return err
			}
			_, err := alice.Transfer(ctx, a, b, amount("30"))
			return err
		})
		require.ErrorIs(t, err, models.ErrInsufficientFunds)
		require.Equal(t, "40.00", f.balance(t, a).String())
		require.Equal(t, "0.00", f.balance(t, b).String())
	})
}

func TestDeleteClient(t *testing.T) {
	forEachStore(t, Options{}, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		alice := f.session(t, "alice")
		bob := f.session(t, "bob")
		empty := f.account(t, alice, "Empty", "0")
		full := f.account(t, alice, "Full", "12")
		shared := f.account(t, bob, "Shared", "7")
		_, err := bob.AddAccountManager(ctx, shared, "alice")
		require.NoError(t, err)

		err = f.svc.DeleteClient(ctx, "alice")
		require.ErrorIs(t, err, models.ErrDomainInvariantViolation)
		_, ok, err := f.svc.FindClient(ctx, "alice")
		require.NoError(t, err)
		require.True(t, ok, "rejected delete must roll back")
		require.Equal(t, "12.00", f.balance(t, full).String())

		_, err = alice.Transfer(ctx, full, shared, amount("12"))
		require.NoError(t, err)
		require.NoError(t, f.svc.DeleteClient(ctx, "alice"))

		_, ok, err = f.svc.FindClient(ctx, "alice")
		require.NoError(t, err)
		require.False(t, ok)

		require.NoError(t, f.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
			for _, id := range []int64{empty, full} {
				acc, err := tx.GetAccount(ctx, id)
				require.NoError(t, err)
				require.Nil(t, acc, "owned account %d should be gone", id)
			}
			rows, err := tx.ListAccessByAccount(ctx, shared)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			require.Equal(t, "bob", rows[0].ClientUsername)
			return nil
		}))
		require.Equal(t, "19.00", f.balance(t, shared).String())

		require.ErrorIs(t, f.svc.DeleteClient(ctx, "alice"), models.ErrNotFound)
	})
}

func TestDeleteClientCascade(t *testing.T) {
	forEachStore(t, Options{DeletePolicy: CascadeDelete}, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		alice := f.session(t, "alice")
		full := f.account(t, alice, "Full", "99.99")

		require.NoError(t, f.svc.DeleteClient(ctx, "alice"))
		require.NoError(t, f.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
			acc, err := tx.GetAccount(ctx, full)
			require.NoError(t, err)
			require.Nil(t, acc)
			return nil
		}))
		require.Contains(t, f.recorder.Types(), events.ClientDeleted)
	})
}

func TestDeletedClientSessionCannotOpenAccounts(t *testing.T) {
	forEachStore(t, Options{}, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		alice := f.session(t, "alice")
		require.NoError(t, f.svc.DeleteClient(ctx, "alice"))

		_, err := alice.CreateAccount(ctx, "Late")
		require.ErrorIs(t, err, models.ErrNotFound)

		_, err = f.svc.ClientSession(ctx, "alice")
		require.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestCreateAccountRequiresName(t *testing.T) {
	forEachStore(t, Options{}, func(t *testing.T, f *fixture) {
		alice := f.session(t, "alice")
		_, err := alice.CreateAccount(context.Background(), " \t")
		require.ErrorIs(t, err, models.ErrDomainInvariantViolation)
	})
}

func TestAccountsReport(t *testing.T) {
	forEachStore(t, Options{}, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		alice := f.session(t, "alice")
		bob := f.session(t, "bob")

		report, err := alice.AccountsReport(ctx)
		require.NoError(t, err)
		require.Equal(t, "Accounts of client: alice\n", report)

		savings := f.account(t, alice, "Savings", "100")
		household := f.account(t, bob, "Household", "0")
		_, err = bob.AddAccountManager(ctx, household, "alice")
		require.NoError(t, err)

		report, err = alice.AccountsReport(ctx)
		require.NoError(t, err)
		require.Equal(t, "Accounts of client: alice\n"+
			itoa(savings)+"\tOWNER\tSavings\t100.00\n"+
			itoa(household)+"\tMANAGER\tHousehold\t0.00\n", report)

		accesses, err := alice.Accesses(ctx)
		require.NoError(t, err)
		require.Len(t, accesses, 2)
	})
}

func TestConcurrentTransfers(t *testing.T) {
	forEachStore(t, Options{}, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		alice := f.session(t, "alice")
		ids := []int64{
			f.account(t, alice, "A", "100"),
			f.account(t, alice, "B", "100"),
			f.account(t, alice, "C", "100"),
			f.account(t, alice, "D", "100"),
		}

		const rounds = 20
		var wg sync.WaitGroup
		errs := make(chan error, len(ids)*rounds)
		for i := range ids {
			src, dst := ids[i], ids[(i+1)%len(ids)]
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < rounds; j++ {
					_, err := alice.Transfer(ctx, src, dst, amount("1.25"))
					if err != nil && !errors.Is(err, models.ErrInsufficientFunds) {
						errs <- err
					}
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("transfer failed: %v", err)
		}

		total := models.ZeroAmount
		for _, id := range ids {
			total = total.Add(f.balance(t, id))
		}
		require.Equal(t, "400.00", total.String())
	})
}

func TestMetricsObserveOperations(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	forEachStore(t, Options{Metrics: m}, func(t *testing.T, f *fixture) {
		alice := f.session(t, "alice")
		a := f.account(t, alice, "Checking", "5")
		_, err := alice.Transfer(context.Background(), a, a, amount("1"))
		require.Error(t, err)
	})

	// create_client, create_account and deposit succeeded; transfer was rejected.
	count, err := testutil.GatherAndCount(reg, "ledger_operations_total")
	require.NoError(t, err)
	require.Equal(t, 4, count)

	count, err = testutil.GatherAndCount(reg, "ledger_money_moved_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestParseDeletePolicy(t *testing.T) {
	p, err := ParseDeletePolicy("CASCADE")
	require.NoError(t, err)
	require.Equal(t, CascadeDelete, p)
	require.Equal(t, "cascade", p.String())

	p, err = ParseDeletePolicy("")
	require.NoError(t, err)
	require.Equal(t, RejectDelete, p)

	_, err = ParseDeletePolicy("transfer")
	require.Error(t, err)
}

func usernames(clients []*models.Client) []string {
	out := make([]string, len(clients))
	for i, c := range clients {
		out[i] = c.Username
	}
	return out
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestBalanceCannotLeaveRepresentableRange(t *testing.T) {
	const max = "92233720368547758.07"

	forEachStore(t, Options{}, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		alice := f.session(t, "alice")
		full := f.account(t, alice, "Full", "0")
		spare := f.account(t, alice, "Spare", "1")

		require.NoError(t, alice.Deposit(ctx, full, amount(max)))
		require.Equal(t, max, f.balance(t, full).String())

		err := alice.Deposit(ctx, full, amount("0.01"))
		require.ErrorIs(t, err, models.ErrDomainInvariantViolation)
		require.Equal(t, max, f.balance(t, full).String())

		_, err = alice.Transfer(ctx, spare, full, amount("0.01"))
		require.ErrorIs(t, err, models.ErrDomainInvariantViolation)
		require.Equal(t, max, f.balance(t, full).String())
		require.Equal(t, "1.00", f.balance(t, spare).String())

		account, err := alice.FindAccount(ctx, full)
		require.NoError(t, err)
		require.Equal(t, max, account.Balance.String())
	})
}

func TestReadersNeverSeeHalfAppliedTransfers(t *testing.T) {
	forEachStore(t, Options{}, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		alice := f.session(t, "alice")
		a := f.account(t, alice, "A", "60")
		b := f.account(t, alice, "B", "40")

		done := make(chan struct{})
		writerErr := make(chan error, 1)
		go func() {
			defer close(done)
			for i := 0; i < 200; i++ {
				src, dst := a, b
				if i%2 == 1 {
					src, dst = b, a
				}
				if _, err := alice.Transfer(ctx, src, dst, amount("1")); err != nil {
					writerErr <- err
					return
				}
			}
		}()

		reads := 0
		for running := true; running; reads++ {
			select {
			case <-done:
				running = false
			default:
			}
			accesses, err := alice.Accesses(ctx)
			require.NoError(t, err)
			require.Len(t, accesses, 2)
			total := accesses[0].Account.Balance.Add(accesses[1].Account.Balance)
			require.Equal(t, "100.00", total.String(), "read %d saw a partial transfer", reads)

			rich, err := f.svc.FindRichClients(ctx, amount("61"))
			require.NoError(t, err)
			require.Empty(t, rich)
		}

		select {
		case err := <-writerErr:
			t.Fatalf("transfer failed: %v", err)
		default:
		}
		require.Equal(t, "60.00", f.balance(t, a).String())
		require.Equal(t, "40.00", f.balance(t, b).String())
	})
}

func TestSwallowedNestedErrorRollsBackUnitOfWork(t *testing.T) {
	forEachStore(t, Options{}, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		alice := f.session(t, "alice")
		a := f.account(t, alice, "A", "10")
		b := f.account(t, alice, "B", "0")
		published := len(f.recorder.Types())

		err := f.svc.Atomically(ctx, func(ctx context.Context) error {
			if err := alice.Deposit(ctx, a, amount("5")); err != nil {
				return err
			}
			// dropped on purpose: the unit of work must still fail
			_, _ = alice.Transfer(ctx, a, b, amount("100"))
			return nil
		})
		require.ErrorIs(t, err, models.ErrInsufficientFunds)

		require.Equal(t, "10.00", f.balance(t, a).String())
		require.Equal(t, "0.00", f.balance(t, b).String())
		require.Len(t, f.recorder.Types(), published)
	})
}
