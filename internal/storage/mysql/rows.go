package mysql

import (
	"fmt"
	"time"

	"github.com/mmynk/ledgerbank/internal/models"
)

// sqlClient maps the clients table.
type sqlClient struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Username  string `gorm:"type:varchar(191);not null;uniqueIndex"`
	BirthDate string `gorm:"type:char(10);not null;index"` // YYYY-MM-DD
	CreatedAt int64  `gorm:"not null"`                     // unix millis
}

func (*sqlClient) TableName() string { return "clients" }

// sqlAccount maps the accounts table. Balance is in minor units.
type sqlAccount struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"type:varchar(255);not null"`
	Balance   int64  `gorm:"not null;default:0;index"`
	CreatedAt int64  `gorm:"not null"`
}

func (*sqlAccount) TableName() string { return "accounts" }

// sqlAccess maps account_access. OwnerOf carries the account id only on the
// OWNER row, so its unique index allows one owner per account while NULLs
// leave managers unconstrained.
type sqlAccess struct {
	ClientUsername string `gorm:"type:varchar(191);primaryKey"`
	AccountID      int64  `gorm:"primaryKey;index"`
	Role           string `gorm:"type:varchar(16);not null"`
	OwnerOf        *int64 `gorm:"uniqueIndex"`
	GrantedAt      int64  `gorm:"not null"`
}

func (*sqlAccess) TableName() string { return "account_access" }

// sqlCredential maps the credentials table.
type sqlCredential struct {
	Username     string `gorm:"type:varchar(191);primaryKey"`
	PasswordHash string `gorm:"type:varchar(255);not null"`
	Role         string `gorm:"type:varchar(16);not null"`
	CreatedAt    int64  `gorm:"not null"`
}

func (*sqlCredential) TableName() string { return "credentials" }

// accessJoin is the scan target of the access/account join.
type accessJoin struct {
	ClientUsername   string
	Role             string
	GrantedAt        int64
	AccountID        int64
	AccountName      string
	AccountBalance   int64
	AccountCreatedAt int64
}

func fromClient(c *models.Client) sqlClient {
	return sqlClient{
		ID:        c.ID,
		Username:  c.Username,
		BirthDate: c.BirthDate.Format(models.DateLayout),
		CreatedAt: c.CreatedAt.UnixMilli(),
	}
}

func (r *sqlClient) toModel() (*models.Client, error) {
	bd, err := time.Parse(models.DateLayout, r.BirthDate)
	if err != nil {
		return nil, fmt.Errorf("invalid stored birth date %q: %w", r.BirthDate, err)
	}
	return &models.Client{
		ID:        r.ID,
		Username:  r.Username,
		BirthDate: bd,
		CreatedAt: time.UnixMilli(r.CreatedAt),
	}, nil
}

func fromAccount(a *models.Account) sqlAccount {
	return sqlAccount{
		ID:        a.ID,
		Name:      a.Name,
		Balance:   a.Balance.MinorUnits(),
		CreatedAt: a.CreatedAt.UnixMilli(),
	}
}

func (r *sqlAccount) toModel() *models.Account {
	return &models.Account{
		ID:        r.ID,
		Name:      r.Name,
		Balance:   models.NewAmountFromMinor(r.Balance),
		CreatedAt: time.UnixMilli(r.CreatedAt),
	}
}

func fromAccess(a *models.AccountAccess) sqlAccess {
	row := sqlAccess{
		ClientUsername: a.ClientUsername,
		AccountID:      a.Account.ID,
		Role:           string(a.Role),
		GrantedAt:      a.GrantedAt.UnixMilli(),
	}
	if a.Role == models.RoleOwner {
		id := a.Account.ID
		row.OwnerOf = &id
	}
	return row
}

func (r *accessJoin) toModel() *models.AccountAccess {
	return &models.AccountAccess{
		ClientUsername: r.ClientUsername,
		Role:           models.Role(r.Role),
		GrantedAt:      time.UnixMilli(r.GrantedAt),
		Account: models.Account{
			ID:        r.AccountID,
			Name:      r.AccountName,
			Balance:   models.NewAmountFromMinor(r.AccountBalance),
			CreatedAt: time.UnixMilli(r.AccountCreatedAt),
		},
	}
}

func fromCredential(c *models.Credential) sqlCredential {
	return sqlCredential{
		Username:     c.Username,
		PasswordHash: c.PasswordHash,
		Role:         c.Role,
		CreatedAt:    c.CreatedAt,
	}
}

func (r *sqlCredential) toModel() *models.Credential {
	return &models.Credential{
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		Role:         r.Role,
		CreatedAt:    r.CreatedAt,
	}
}
