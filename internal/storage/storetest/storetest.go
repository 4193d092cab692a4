// Package storetest holds behaviour checks shared by every storage.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mmynk/ledgerbank/internal/models"
	"github.com/mmynk/ledgerbank/internal/storage"
)

var errAbort = errors.New("abort")

// Run exercises store against the storage.Store contract. newStore must
// return an empty store; it is called once per subtest.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	ctx := context.Background()

	t.Run("clients", func(t *testing.T) {
		store := newStore(t)

		alice := &models.Client{Username: "alice", BirthDate: date("1990-04-01")}
		require.NoError(t, store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
			return tx.CreateClient(ctx, alice)
		}))
		require.NotZero(t, alice.ID)
		require.False(t, alice.CreatedAt.IsZero())

		err := store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
			return tx.CreateClient(ctx, &models.Client{Username: "alice", BirthDate: date("2000-01-01")})
		})
		require.ErrorIs(t, err, models.ErrDuplicateUsername)

		require.NoError(t, store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
			got, err := tx.GetClient(ctx, "alice")
			require.NoError(t, err)
			require.NotNil(t, got)
			require.Equal(t, alice.ID, got.ID)
			require.True(t, got.BirthDate.Equal(date("1990-04-01")))

			missing, err := tx.GetClient(ctx, "nobody")
			require.NoError(t, err)
			require.Nil(t, missing)
			return nil
		}))
	})

	t.Run("client queries", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
			for _, c := range []*models.Client{
				{Username: "old", BirthDate: date("1950-06-15")},
				{Username: "edge", BirthDate: date("2000-01-01")},
				{Username: "young", BirthDate: date("2010-09-30")},
			} {
				if err := tx.CreateClient(ctx, c); err != nil {
					return err
				}
			}
			acc := &models.Account{Name: "Main", Balance: models.MustParseAmount("500")}
			if err := tx.CreateAccount(ctx, acc); err != nil {
				return err
			}
			if err := tx.CreateAccess(ctx, &models.AccountAccess{ClientUsername: "old", Account: *acc, Role: models.RoleOwner}); err != nil {
				return err
			}
			return tx.CreateAccess(ctx, &models.AccountAccess{ClientUsername: "young", Account: *acc, Role: models.RoleManager})
		}))

		require.NoError(t, store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
			all, err := tx.ListClients(ctx)
			require.NoError(t, err)
			require.Equal(t, []string{"old", "edge", "young"}, usernames(all))

			born, err := tx.ListClientsBornFrom(ctx, date("2000-01-01"))
			require.NoError(t, err)
			require.Equal(t, []string{"edge", "young"}, usernames(born))

			rich, err := tx.ListClientsWithBalance(ctx, models.MustParseAmount("500"))
			require.NoError(t, err)
			require.Equal(t, []string{"old", "young"}, usernames(rich))

			rich, err = tx.ListClientsWithBalance(ctx, models.MustParseAmount("500.01"))
			require.NoError(t, err)
			require.Empty(t, rich)
			return nil
		}))
	})

	t.Run("accounts and access", func(t *testing.T) {
		store := newStore(t)

		var first, second models.Account
		require.NoError(t, store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
			require.NoError(t, tx.CreateClient(ctx, &models.Client{Username: "bob", BirthDate: date("1985-02-02")}))
			require.NoError(t, tx.CreateClient(ctx, &models.Client{Username: "carol", BirthDate: date("1987-03-03")}))

			first = models.Account{Name: "Checking"}
			second = models.Account{Name: "Savings"}
			require.NoError(t, tx.CreateAccount(ctx, &first))
			require.NoError(t, tx.CreateAccount(ctx, &second))
			require.Greater(t, second.ID, first.ID)

			require.NoError(t, tx.CreateAccess(ctx, &models.AccountAccess{ClientUsername: "bob", Account: second, Role: models.RoleOwner}))
			require.NoError(t, tx.CreateAccess(ctx, &models.AccountAccess{ClientUsername: "bob", Account: first, Role: models.RoleOwner}))
			require.NoError(t, tx.CreateAccess(ctx, &models.AccountAccess{ClientUsername: "carol", Account: first, Role: models.RoleManager}))

			err := tx.CreateAccess(ctx, &models.AccountAccess{ClientUsername: "carol", Account: first, Role: models.RoleOwner})
			require.ErrorIs(t, err, models.ErrDuplicateAccess)
			return nil
		}))

		require.NoError(t, store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
			locked, err := tx.LockAccounts(ctx, second.ID, first.ID, 9999)
			require.NoError(t, err)
			require.Len(t, locked, 2)

			require.NoError(t, locked[first.ID].Credit(models.MustParseAmount("12.34")))
			return tx.SaveBalance(ctx, locked[first.ID])
		}))

		require.NoError(t, store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
			acc, err := tx.GetAccount(ctx, first.ID)
			require.NoError(t, err)
			require.Equal(t, "12.34", acc.Balance.String())

			missing, err := tx.GetAccount(ctx, 9999)
			require.NoError(t, err)
			require.Nil(t, missing)

			bobs, err := tx.ListAccessByClient(ctx, "bob")
			require.NoError(t, err)
			require.Len(t, bobs, 2)
			require.Equal(t, first.ID, bobs[0].Account.ID)
			require.Equal(t, second.ID, bobs[1].Account.ID)
			require.True(t, bobs[0].IsOwner())
			require.Equal(t, "12.34", bobs[0].Account.Balance.String())

			onFirst, err := tx.ListAccessByAccount(ctx, first.ID)
			require.NoError(t, err)
			require.Len(t, onFirst, 2)

			access, err := tx.GetAccess(ctx, "carol", first.ID)
			require.NoError(t, err)
			require.Equal(t, models.RoleManager, access.Role)

			none, err := tx.GetAccess(ctx, "carol", second.ID)
			require.NoError(t, err)
			require.Nil(t, none)
			return nil
		}))

		require.NoError(t, store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
			return tx.DeleteAccount(ctx, second.ID)
		}))
		require.NoError(t, store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
			bobs, err := tx.ListAccessByClient(ctx, "bob")
			require.NoError(t, err)
			require.Len(t, bobs, 1)
			return nil
		}))
	})

	t.Run("delete client removes access and credential", func(t *testing.T) {
		store := newStore(t)

		var acc models.Account
		require.NoError(t, store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
			require.NoError(t, tx.CreateClient(ctx, &models.Client{Username: "dave", BirthDate: date("1970-07-07")}))
			acc = models.Account{Name: "Joint"}
			require.NoError(t, tx.CreateAccount(ctx, &acc))
			return tx.CreateAccess(ctx, &models.AccountAccess{ClientUsername: "dave", Account: acc, Role: models.RoleOwner})
		}))
		require.NoError(t, store.Credentials().CreateCredential(ctx, &models.Credential{
			Username: "dave", PasswordHash: "hash", Role: models.PrincipalClient, CreatedAt: time.Now().Unix(),
		}))

		require.NoError(t, store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
			return tx.DeleteClient(ctx, "dave")
		}))

		require.NoError(t, store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
			c, err := tx.GetClient(ctx, "dave")
			require.NoError(t, err)
			require.Nil(t, c)

			rows, err := tx.ListAccessByAccount(ctx, acc.ID)
			require.NoError(t, err)
			require.Empty(t, rows)
			return nil
		}))

		cred, err := store.Credentials().GetCredential(ctx, "dave")
		require.NoError(t, err)
		require.Nil(t, cred)
	})

	t.Run("failed update rolls back", func(t *testing.T) {
		store := newStore(t)

		var acc models.Account
		require.NoError(t, store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
			acc = models.Account{Name: "Stable", Balance: models.MustParseAmount("10")}
			return tx.CreateAccount(ctx, &acc)
		}))

		err := store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
			require.NoError(t, tx.CreateClient(ctx, &models.Client{Username: "ghost", BirthDate: date("1999-09-09")}))
			locked, err := tx.LockAccounts(ctx, acc.ID)
			require.NoError(t, err)
			require.NoError(t, locked[acc.ID].Credit(models.MustParseAmount("90")))
			require.NoError(t, tx.SaveBalance(ctx, locked[acc.ID]))
			return errAbort
		})
		require.ErrorIs(t, err, errAbort)

		require.NoError(t, store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
			c, err := tx.GetClient(ctx, "ghost")
			require.NoError(t, err)
			require.Nil(t, c)

			got, err := tx.GetAccount(ctx, acc.ID)
			require.NoError(t, err)
			require.Equal(t, "10.00", got.Balance.String())
			return nil
		}))
	})

	t.Run("view rejects mutations", func(t *testing.T) {
		store := newStore(t)

		err := store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
			return tx.CreateClient(ctx, &models.Client{Username: "sneaky", BirthDate: date("1999-01-01")})
		})
		require.ErrorIs(t, err, storage.ErrReadOnly)
	})

	t.Run("credentials", func(t *testing.T) {
		store := newStore(t)
		creds := store.Credentials()

		require.NoError(t, creds.CreateCredential(ctx, &models.Credential{
			Username: "banker", PasswordHash: "hash", Role: models.PrincipalBanker, CreatedAt: 1,
		}))
		err := creds.CreateCredential(ctx, &models.Credential{Username: "banker", PasswordHash: "other", Role: models.PrincipalBanker})
		require.ErrorIs(t, err, models.ErrDuplicateUsername)

		got, err := creds.GetCredential(ctx, "banker")
		require.NoError(t, err)
		require.Equal(t, "hash", got.PasswordHash)
		require.Equal(t, models.PrincipalBanker, got.Role)

		missing, err := creds.GetCredential(ctx, "nobody")
		require.NoError(t, err)
		require.Nil(t, missing)
	})
}

func date(s string) time.Time {
	d, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func usernames(clients []*models.Client) []string {
	out := make([]string, len(clients))
	for i, c := range clients {
		out[i] = c.Username
	}
	return out
}
