package mysql

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mmynk/ledgerbank/internal/models"
)

func TestClientRowRoundTrip(t *testing.T) {
	bd, err := models.ParseDate("1988-11-23")
	require.NoError(t, err)
	created := time.UnixMilli(1_700_000_000_123)

	row := fromClient(&models.Client{ID: 4, Username: "hans1", BirthDate: bd, CreatedAt: created})
	require.Equal(t, "1988-11-23", row.BirthDate)
	require.Equal(t, int64(1_700_000_000_123), row.CreatedAt)

	back, err := row.toModel()
	require.NoError(t, err)
	require.Equal(t, "hans1", back.Username)
	require.True(t, back.BirthDate.Equal(bd))
	require.True(t, back.CreatedAt.Equal(created))

	_, err = (&sqlClient{BirthDate: "23/11/1988"}).toModel()
	require.Error(t, err)
}

func TestAccountRowStoresMinorUnits(t *testing.T) {
	row := fromAccount(&models.Account{Name: "Savings", Balance: models.MustParseAmount("1050.75")})
	require.Equal(t, int64(105075), row.Balance)
	require.Equal(t, "1050.75", row.toModel().Balance.String())
}

func TestAccessRowOwnerColumn(t *testing.T) {
	acc := models.Account{ID: 9}

	owner := fromAccess(&models.AccountAccess{ClientUsername: "a", Account: acc, Role: models.RoleOwner})
	require.NotNil(t, owner.OwnerOf)
	require.Equal(t, int64(9), *owner.OwnerOf)

	manager := fromAccess(&models.AccountAccess{ClientUsername: "b", Account: acc, Role: models.RoleManager})
	require.Nil(t, manager.OwnerOf)
	require.Equal(t, "MANAGER", manager.Role)
}

func TestAccessJoinToModel(t *testing.T) {
	got := (&accessJoin{
		ClientUsername: "jana",
		Role:           "OWNER",
		AccountID:      3,
		AccountName:    "Main",
		AccountBalance: -250,
	}).toModel()
	require.True(t, got.IsOwner())
	require.Equal(t, int64(3), got.Account.ID)
	require.Equal(t, "-2.50", got.Account.Balance.String())
}
