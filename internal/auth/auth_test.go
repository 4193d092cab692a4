package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmynk/ledgerbank/internal/models"
	"github.com/mmynk/ledgerbank/internal/storage/memory"
)

func newAuthenticator() *PasswordAuthenticator {
	return NewPasswordAuthenticator(memory.New().Credentials()).WithCost(bcrypt.MinCost)
}

func TestRegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	a := newAuthenticator()

	cred, err := a.Register(ctx, "alice", "correct horse", models.PrincipalClient)
	require.NoError(t, err)
	require.Equal(t, "alice", cred.Username)
	require.Equal(t, models.PrincipalClient, cred.Role)
	require.NotEqual(t, "correct horse", cred.PasswordHash)

	got, err := a.Authenticate(ctx, "alice", "correct horse")
	require.NoError(t, err)
	require.Equal(t, models.PrincipalClient, got.Role)

	_, err = a.Authenticate(ctx, "alice", "wrong password")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = a.Authenticate(ctx, "bob", "correct horse")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterRejects(t *testing.T) {
	ctx := context.Background()
	a := newAuthenticator()
	_, err := a.Register(ctx, "alice", "password1", models.PrincipalClient)
	require.NoError(t, err)

	tests := []struct {
		name     string
		username string
		password string
		role     string
		want     error
	}{
		{"short password", "bob", "short", models.PrincipalClient, ErrWeakPassword},
		{"taken username", "alice", "password2", models.PrincipalClient, ErrUsernameRegistered},
		{"unknown role", "carol", "password3", "admin", ErrUnknownRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Register(ctx, tt.username, tt.password, tt.role)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEnsureBankerIsIdempotent(t *testing.T) {
	ctx := context.Background()
	a := newAuthenticator()

	require.NoError(t, EnsureBanker(ctx, a, "banker", "banker-secret"))
	require.NoError(t, EnsureBanker(ctx, a, "banker", "other-secret"))

	// the first password stays in effect
	cred, err := a.Authenticate(ctx, "banker", "banker-secret")
	require.NoError(t, err)
	require.Equal(t, models.PrincipalBanker, cred.Role)

	require.Error(t, EnsureBanker(ctx, a, "banker2", "short"))
}

func TestJWTRoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)
	token, err := m.Generate(&models.Credential{Username: "alice", Role: models.PrincipalClient})
	require.NoError(t, err)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.Username)
	require.Equal(t, models.PrincipalClient, claims.Role)
	require.Equal(t, "alice", claims.Subject)
	require.Equal(t, Issuer, claims.Issuer)
}

func TestJWTRejects(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)
	cred := &models.Credential{Username: "alice", Role: models.PrincipalClient}

	t.Run("expired", func(t *testing.T) {
		issued := time.Now().Add(-2 * time.Hour)
		old := NewJWTManager("test-secret", time.Hour)
		old.now = func() time.Time { return issued }
		token, err := old.Generate(cred)
		require.NoError(t, err)

		_, err = m.Validate(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("other secret", func(t *testing.T) {
		token, err := NewJWTManager("other-secret", time.Hour).Generate(cred)
		require.NoError(t, err)

		_, err = m.Validate(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unsigned", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Username: "alice"}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = m.Validate(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("other issuer", func(t *testing.T) {
		claims := &Claims{
			Username: "alice",
			Role:     models.PrincipalClient,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "elsewhere",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		require.NoError(t, err)

		_, err = m.Validate(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.Validate("not.a.token")
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}
