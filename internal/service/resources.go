package service

import (
	"github.com/mmynk/ledgerbank/internal/models"
)

// ClientResource is the wire form of a client.
type ClientResource struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	BirthDate string `json:"birthDate"` // YYYY-MM-DD
}

// AccountResource is the wire form of an account.
type AccountResource struct {
	AccountNo int64         `json:"accountNo"`
	Name      string        `json:"name"`
	Balance   models.Amount `json:"balance"`
}

// AccountAccessResource is the wire form of a client's role on an account.
type AccountAccessResource struct {
	ClientUsername string        `json:"clientUsername"`
	IsOwner        bool          `json:"isOwner"`
	AccountNo      int64         `json:"accountNo"`
	AccountName    string        `json:"accountName"`
	AccountBalance models.Amount `json:"accountBalance"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func toClientResource(c *models.Client) ClientResource {
	return ClientResource{
		ID:        c.ID,
		Username:  c.Username,
		BirthDate: c.BirthDate.Format(models.DateLayout),
	}
}

func toClientResources(clients []*models.Client) []ClientResource {
	out := make([]ClientResource, len(clients))
	for i, c := range clients {
		out[i] = toClientResource(c)
	}
	return out
}

func toAccountResource(a *models.Account) AccountResource {
	return AccountResource{
		AccountNo: a.ID,
		Name:      a.Name,
		Balance:   a.Balance,
	}
}

func toAccountAccessResource(a *models.AccountAccess) AccountAccessResource {
	return AccountAccessResource{
		ClientUsername: a.ClientUsername,
		IsOwner:        a.IsOwner(),
		AccountNo:      a.Account.ID,
		AccountName:    a.Account.Name,
		AccountBalance: a.Account.Balance,
	}
}
