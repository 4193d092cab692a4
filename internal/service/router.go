// Package service exposes the ledger over REST with echo.
package service

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/mmynk/ledgerbank/internal/auth"
	"github.com/mmynk/ledgerbank/internal/bank"
	"github.com/mmynk/ledgerbank/internal/middleware"
	"github.com/mmynk/ledgerbank/internal/models"
)

const welcome = "Welcome to the ledger bank REST service.\n" +
	"Bankers manage clients under /bank, clients manage their accounts under /client.\n"

// RouterConfig wires the handlers.
type RouterConfig struct {
	Bank          *bank.Service
	Authenticator auth.Authenticator
	JWTManager    *auth.JWTManager

	// Metrics is served at GET /metrics when set.
	Metrics http.Handler

	Logger *slog.Logger
}

// NewRouter builds the echo instance with every route and middleware.
func NewRouter(cfg RouterConfig) *echo.Echo {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = HTTPErrorHandler

	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger())

	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, welcome)
	})
	if cfg.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(cfg.Metrics))
	}

	authSvc := NewAuthService(cfg.Authenticator, cfg.JWTManager, cfg.Bank, logger)
	e.POST("/auth/register", authSvc.Register)
	e.POST("/auth/login", authSvc.Login)

	bankSvc := NewBankService(cfg.Bank, logger)
	bankGroup := e.Group("/bank",
		middleware.RequireAuth(cfg.JWTManager),
		middleware.RequireRole(models.PrincipalBanker))
	bankGroup.POST("/client", bankSvc.CreateClient)
	bankGroup.DELETE("/client/:username", bankSvc.DeleteClient)
	bankGroup.GET("/client", bankSvc.FindClients)
	bankGroup.POST("/pair", bankSvc.CreatePair)

	clientSvc := NewClientService(cfg.Bank, logger)
	clientGroup := e.Group("/client",
		middleware.RequireAuth(cfg.JWTManager),
		middleware.RequireRole(models.PrincipalClient))
	clientGroup.POST("/account", clientSvc.CreateAccount)
	clientGroup.GET("/account", clientSvc.AccountsReport)
	clientGroup.POST("/deposit", clientSvc.Deposit)
	clientGroup.POST("/transfer", clientSvc.Transfer)
	clientGroup.POST("/manager", clientSvc.AddManager)

	return e
}
