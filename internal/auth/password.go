package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mmynk/ledgerbank/internal/models"
	"github.com/mmynk/ledgerbank/internal/storage"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrUsernameRegistered = errors.New("username already registered")
	ErrUnknownRole        = errors.New("unknown principal role")
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// PasswordAuthenticator implements password-based authentication using bcrypt.
type PasswordAuthenticator struct {
	storage storage.CredentialStore
	cost    int
}

// NewPasswordAuthenticator creates a new password-based authenticator.
func NewPasswordAuthenticator(storage storage.CredentialStore) *PasswordAuthenticator {
	return &PasswordAuthenticator{
		storage: storage,
		cost:    bcrypt.DefaultCost,
	}
}

// WithCost sets the bcrypt cost used for new hashes.
func (a *PasswordAuthenticator) WithCost(cost int) *PasswordAuthenticator {
	a.cost = cost
	return a
}

// ValidateCredential checks if the password meets minimum requirements.
func (a *PasswordAuthenticator) ValidateCredential(credential string) error {
	if len(credential) < MinPasswordLength {
		return ErrWeakPassword
	}
	return nil
}

// Register stores a login with a hashed password.
func (a *PasswordAuthenticator) Register(ctx context.Context, username, credential, role string) (*models.Credential, error) {
	if role != models.PrincipalBanker && role != models.PrincipalClient {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	if err := a.ValidateCredential(credential); err != nil {
		return nil, err
	}

	existing, err := a.storage.GetCredential(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to look up credential: %w", err)
	}
	if existing != nil {
		return nil, ErrUsernameRegistered
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(credential), a.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	cred := &models.Credential{
		Username:     username,
		PasswordHash: string(hashedPassword),
		Role:         role,
		CreatedAt:    time.Now().Unix(),
	}
	if err := a.storage.CreateCredential(ctx, cred); err != nil {
		if errors.Is(err, models.ErrDuplicateUsername) {
			return nil, ErrUsernameRegistered
		}
		return nil, fmt.Errorf("failed to create credential: %w", err)
	}

	return cred, nil
}

// Authenticate verifies the username and password, returning the login if valid.
func (a *PasswordAuthenticator) Authenticate(ctx context.Context, username, credential string) (*models.Credential, error) {
	cred, err := a.storage.GetCredential(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to look up credential: %w", err)
	}
	if cred == nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(credential)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return cred, nil
}

// EnsureBanker registers the banker login unless username already has one.
func EnsureBanker(ctx context.Context, a Authenticator, username, password string) error {
	_, err := a.Register(ctx, username, password, models.PrincipalBanker)
	switch {
	case errors.Is(err, ErrUsernameRegistered):
		slog.Debug("Banker credential already present", "username", username)
		return nil
	case err != nil:
		return fmt.Errorf("failed to bootstrap banker %q: %w", username, err)
	}
	slog.Info("Banker credential created", "username", username)
	return nil
}
