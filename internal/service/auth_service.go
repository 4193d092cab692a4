package service

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mmynk/ledgerbank/internal/auth"
	"github.com/mmynk/ledgerbank/internal/bank"
	"github.com/mmynk/ledgerbank/internal/models"
)

// AuthService serves registration and login.
type AuthService struct {
	authenticator auth.Authenticator
	jwtManager    *auth.JWTManager
	bank          *bank.Service
	logger        *slog.Logger
}

// NewAuthService creates a new authentication service.
func NewAuthService(authenticator auth.Authenticator, jwtManager *auth.JWTManager, svc *bank.Service, logger *slog.Logger) *AuthService {
	return &AuthService{
		authenticator: authenticator,
		jwtManager:    jwtManager,
		bank:          svc,
		logger:        logger,
	}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	Token    string `json:"token"`
}

// Register creates a client login. The client must already exist; bankers
// are provisioned from configuration only.
func (s *AuthService) Register(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	s.logger.Info("Register request", "username", req.Username)

	if req.Username == "" {
		return echo.NewHTTPError(http.StatusBadRequest, auth.ErrInvalidCredentials.Error())
	}

	ctx := c.Request().Context()
	if _, ok, err := s.bank.FindClient(ctx, req.Username); err != nil {
		return err
	} else if !ok {
		return models.NewError(models.KindNotFound, "no client with username %q", req.Username).
			With("username", req.Username)
	}

	cred, err := s.authenticator.Register(ctx, req.Username, req.Password, models.PrincipalClient)
	if err != nil {
		s.logger.Warn("Registration failed", "username", req.Username, "error", err)
		return err
	}

	token, err := s.jwtManager.Generate(cred)
	if err != nil {
		s.logger.Error("Failed to generate token", "username", cred.Username, "error", err)
		return err
	}

	s.logger.Info("Client registered successfully", "username", cred.Username)
	return c.JSON(http.StatusCreated, tokenResponse{Username: cred.Username, Role: cred.Role, Token: token})
}

// Login authenticates a user and returns a JWT token.
func (s *AuthService) Login(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	s.logger.Info("Login request", "username", req.Username)

	if req.Username == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, auth.ErrInvalidCredentials.Error())
	}

	cred, err := s.authenticator.Authenticate(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		s.logger.Warn("Login failed", "username", req.Username, "error", err)
		return err
	}

	token, err := s.jwtManager.Generate(cred)
	if err != nil {
		s.logger.Error("Failed to generate token", "username", cred.Username, "error", err)
		return err
	}

	s.logger.Info("User logged in successfully", "username", cred.Username, "role", cred.Role)
	return c.JSON(http.StatusOK, tokenResponse{Username: cred.Username, Role: cred.Role, Token: token})
}
