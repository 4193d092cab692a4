package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/ledgerbank/internal/auth"
	"github.com/mmynk/ledgerbank/internal/bank"
	"github.com/mmynk/ledgerbank/internal/config"
	"github.com/mmynk/ledgerbank/internal/events"
	"github.com/mmynk/ledgerbank/internal/metrics"
	"github.com/mmynk/ledgerbank/internal/service"
	"github.com/mmynk/ledgerbank/internal/storage"
	"github.com/mmynk/ledgerbank/internal/storage/memory"
	mysqlstore "github.com/mmynk/ledgerbank/internal/storage/mysql"
	"github.com/mmynk/ledgerbank/internal/storage/sqlite"
	"github.com/mmynk/ledgerbank/pkg/logging"
	"github.com/mmynk/ledgerbank/pkg/mysql"
)

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func main() {
	cfg, err := config.Load(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		logging.Setup("info")
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.LogLevel)

	if err := run(cfg); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	publisher := newPublisher(cfg)
	defer publisher.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc := bank.NewService(store, bank.Options{
		Overdraft:    cfg.OverdraftPolicy(),
		DeletePolicy: cfg.DeletePolicy(),
		Publisher:    publisher,
		Metrics:      metrics.New(registry),
	})
	slog.Info("Ledger policies", "overdraft", cfg.Ledger.Overdraft, "delete_policy", cfg.Ledger.DeletePolicy)

	authenticator := auth.NewPasswordAuthenticator(store.Credentials())
	if cfg.Auth.BankerPassword != "" {
		if err := auth.EnsureBanker(ctx, authenticator, cfg.Auth.BankerUsername, cfg.Auth.BankerPassword); err != nil {
			return err
		}
	} else {
		slog.Warn("No banker password configured, banker login must already exist", "username", cfg.Auth.BankerUsername)
	}

	e := service.NewRouter(service.RouterConfig{
		Bank:          svc,
		Authenticator: authenticator,
		JWTManager:    auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Metrics:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	server := &http.Server{
		Addr: cfg.Server.Addr,
		// h2c serves HTTP/2 without TLS next to HTTP/1.1
		Handler:           h2c.NewHandler(e, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "address", cfg.Server.Addr, "url", fmt.Sprintf("http://localhost%s", cfg.Server.Addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down", "timeout", cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		slog.Warn("Using in-memory storage, data is lost on exit")
		return memory.New(), nil
	case config.DriverMySQL:
		client, err := mysql.NewClient(cfg.MySQL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to mysql: %w", err)
		}
		store, err := mysqlstore.New(client)
		if err != nil {
			client.Close()
			return nil, err
		}
		slog.Info("Storage initialized", "driver", cfg.Storage.Driver, "host", cfg.MySQL.Host, "database", cfg.MySQL.DBName)
		return store, nil
	default:
		store, err := sqlite.New(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		slog.Info("Storage initialized", "driver", cfg.Storage.Driver, "database", cfg.Storage.SQLitePath)
		return store, nil
	}
}

func newPublisher(cfg *config.Config) events.Publisher {
	if len(cfg.Kafka.Brokers) == 0 {
		return events.Nop{}
	}
	slog.Info("Publishing events to Kafka", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	return events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
}
