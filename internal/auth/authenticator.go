package auth

import (
	"context"

	"github.com/mmynk/ledgerbank/internal/models"
)

// Authenticator defines the interface for authentication implementations.
// This abstraction allows swapping between different auth methods (password, passkeys, OAuth, etc.)
// without changing the gateway code.
type Authenticator interface {
	// Register stores a new login for username with the given principal role
	// (models.PrincipalBanker or models.PrincipalClient).
	// Returns the created credential or an error if registration fails.
	Register(ctx context.Context, username, credential, role string) (*models.Credential, error)

	// Authenticate verifies the credential and returns the stored login if successful.
	Authenticate(ctx context.Context, username, credential string) (*models.Credential, error)

	// ValidateCredential checks if the credential meets the implementation's requirements.
	ValidateCredential(credential string) error
}
