package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mmynk/ledgerbank/internal/bank"
	"github.com/mmynk/ledgerbank/internal/models"
)

// BankService serves the banker routes under /bank.
type BankService struct {
	bank   *bank.Service
	logger *slog.Logger
	now    func() time.Time
}

// NewBankService creates the banker handlers.
func NewBankService(svc *bank.Service, logger *slog.Logger) *BankService {
	return &BankService{
		bank:   svc,
		logger: logger,
		now:    time.Now,
	}
}

type createClientRequest struct {
	ID        *int64 `json:"id"`
	Username  string `json:"username"`
	BirthDate string `json:"birthDate"`
}

// CreateClient registers a client. The request must not carry an id.
func (s *BankService) CreateClient(c echo.Context) error {
	var req createClientRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	s.logger.Info("CreateClient request", "username", req.Username)

	if req.ID != nil {
		return models.NewError(models.KindDomainInvariantViolation,
			"client %q to be created must not have an id, but has %d", req.Username, *req.ID).
			With("username", req.Username)
	}
	birthDate, err := models.ParseDate(req.BirthDate)
	if err != nil {
		return err
	}

	client, err := s.bank.CreateClient(c.Request().Context(), req.Username, birthDate)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toClientResource(client))
}

// DeleteClient removes the client named in the path.
func (s *BankService) DeleteClient(c echo.Context) error {
	username := c.Param("username")
	s.logger.Info("DeleteClient request", "username", username)

	if err := s.bank.DeleteClient(c.Request().Context(), username); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// FindClients lists all clients, or those born on or after fromBirth, or
// those with an account holding at least minBalance. The two filters are
// mutually exclusive.
func (s *BankService) FindClients(c echo.Context) error {
	ctx := c.Request().Context()
	fromBirth := c.QueryParam("fromBirth")
	minBalance := c.QueryParam("minBalance")

	var (
		clients []*models.Client
		err     error
	)
	switch {
	case fromBirth != "" && minBalance != "":
		return models.NewError(models.KindDomainInvariantViolation,
			"must not provide both parameters: fromBirth and minBalance")
	case fromBirth != "":
		from, perr := models.ParseDate(fromBirth)
		if perr != nil {
			return perr
		}
		clients, err = s.bank.FindYoungClients(ctx, from)
	case minBalance != "":
		min, perr := models.ParseAmount(minBalance)
		if perr != nil {
			return perr
		}
		clients, err = s.bank.FindRichClients(ctx, min)
	default:
		clients, err = s.bank.FindAllClients(ctx)
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toClientResources(clients))
}

// CreatePair creates two random clients in one unit of work, failing after
// the first one for every third request so the rollback can be observed.
func (s *BankService) CreatePair(c echo.Context) error {
	now := s.now()
	number := now.UnixMilli() % 100

	var clients []*models.Client
	err := s.bank.Atomically(c.Request().Context(), func(ctx context.Context) error {
		first, err := s.bank.CreateClient(ctx, fmt.Sprintf("hans%d", number), randomBirthDate(now))
		if err != nil {
			return err
		}
		s.logger.Info("Client created", "username", first.Username)
		if number%3 == 0 {
			return echo.NewHTTPError(http.StatusInternalServerError,
				fmt.Sprintf("failure after creating %s, should have been rolled back", first.Username))
		}

		second, err := s.bank.CreateClient(ctx, fmt.Sprintf("jana%d", number), randomBirthDate(now))
		if err != nil {
			return err
		}
		s.logger.Info("Client created", "username", second.Username)

		clients, err = s.bank.FindAllClients(ctx)
		return err
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toClientResources(clients))
}

// randomBirthDate picks a day between 100 and 18 years before now.
func randomBirthDate(now time.Time) time.Time {
	today := models.Date(now)
	oldest := today.AddDate(-100, 0, 0)
	youngest := today.AddDate(-18, 0, 0)
	days := int(youngest.Sub(oldest).Hours() / 24)
	return oldest.AddDate(0, 0, rand.Intn(days))
}
