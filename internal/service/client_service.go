package service

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mmynk/ledgerbank/internal/bank"
	"github.com/mmynk/ledgerbank/internal/middleware"
	"github.com/mmynk/ledgerbank/internal/models"
)

// maxAccountNameBytes bounds the plain text body of POST /client/account.
const maxAccountNameBytes = 1 << 10

// ClientService serves the client routes under /client. Every handler acts
// as the Client whose username is in the bearer token.
type ClientService struct {
	bank   *bank.Service
	logger *slog.Logger
}

// NewClientService creates the client handlers.
func NewClientService(svc *bank.Service, logger *slog.Logger) *ClientService {
	return &ClientService{
		bank:   svc,
		logger: logger,
	}
}

type depositRequest struct {
	AccountID int64         `json:"accountId"`
	Amount    models.Amount `json:"amount"`
}

type transferRequest struct {
	SourceAccountID      int64         `json:"sourceAccountId"`
	DestinationAccountID int64         `json:"destinationAccountId"`
	Amount               models.Amount `json:"amount"`
}

type addManagerRequest struct {
	AccountID int64  `json:"accountId"`
	Username  string `json:"username"`
}

func (s *ClientService) session(c echo.Context) (*bank.ClientSession, error) {
	ctx := c.Request().Context()
	return s.bank.ClientSession(ctx, middleware.GetUsername(ctx))
}

// CreateAccount opens an account named by the request body.
func (s *ClientService) CreateAccount(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxAccountNameBytes))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read account name").SetInternal(err)
	}
	name := string(body)

	session, err := s.session(c)
	if err != nil {
		return err
	}
	s.logger.Info("CreateAccount request", "username", session.Username(), "name", name)

	access, err := session.CreateAccount(c.Request().Context(), name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toAccountAccessResource(access))
}

// Deposit credits an account the client has access to.
func (s *ClientService) Deposit(c echo.Context) error {
	var req depositRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	session, err := s.session(c)
	if err != nil {
		return err
	}
	s.logger.Info("Deposit request", "username", session.Username(),
		"account", req.AccountID, "amount", req.Amount.String())

	if err := session.Deposit(c.Request().Context(), req.AccountID, req.Amount); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Transfer moves money from an accessible account and returns the source
// account after the move.
func (s *ClientService) Transfer(c echo.Context) error {
	var req transferRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	session, err := s.session(c)
	if err != nil {
		return err
	}
	s.logger.Info("Transfer request", "username", session.Username(),
		"source", req.SourceAccountID, "destination", req.DestinationAccountID, "amount", req.Amount.String())

	source, err := session.Transfer(c.Request().Context(), req.SourceAccountID, req.DestinationAccountID, req.Amount)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toAccountResource(source))
}

// AddManager grants another client the MANAGER role on an owned account.
func (s *ClientService) AddManager(c echo.Context) error {
	var req addManagerRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	session, err := s.session(c)
	if err != nil {
		return err
	}
	s.logger.Info("AddManager request", "username", session.Username(),
		"account", req.AccountID, "manager", req.Username)

	access, err := session.AddAccountManager(c.Request().Context(), req.AccountID, req.Username)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toAccountAccessResource(access))
}

// AccountsReport renders the client's accounts as plain text.
func (s *ClientService) AccountsReport(c echo.Context) error {
	session, err := s.session(c)
	if err != nil {
		return err
	}
	report, err := session.AccountsReport(c.Request().Context())
	if err != nil {
		return err
	}
	return c.String(http.StatusOK, report)
}
