package models

// Principal roles carried in credentials and tokens.
const (
	PrincipalBanker = "banker"
	PrincipalClient = "client"
)

// Credential is a login for the REST gateway.
//
// Bankers exist only as credentials. A client credential belongs to the
// Client with the same username and is removed together with it.
type Credential struct {
	// Username is the login name; for clients it equals Client.Username.
	Username string

	// PasswordHash is the bcrypt hash of the password.
	PasswordHash string

	// Role is PrincipalBanker or PrincipalClient.
	Role string

	// CreatedAt is the Unix timestamp when the credential was registered.
	CreatedAt int64
}
