package models

import "time"

// Role is what a client may do on an account.
type Role string

const (
	RoleOwner   Role = "OWNER"
	RoleManager Role = "MANAGER"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleManager
}

// AccountAccess grants a client a role on an account. Each account has
// exactly one OWNER row and any number of MANAGER rows; a (client, account)
// pair appears at most once.
type AccountAccess struct {
	ClientUsername string
	Account        Account
	Role           Role
	GrantedAt      time.Time
}

// IsOwner reports whether the access carries the OWNER role.
func (a AccountAccess) IsOwner() bool {
	return a.Role == RoleOwner
}
