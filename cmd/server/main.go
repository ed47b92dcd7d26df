/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the ticket booth server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (defaults, ticketbooth.yaml, TICKET_* env, flags)
  2. Build the zap logger
  3. Open the database (SQLite or Postgres) and migrate the schema
  4. Make sure the default admin account exists with the configured password
  5. Wire the ledger, event publisher, handler and router
  6. Start the housekeeping scheduler and the HTTP server

COMMAND-LINE FLAGS:
  --port           HTTP server port (default: 8080)
  --db-driver      sqlite3 or pgx (default: sqlite3)
  --db             SQLite path or Postgres DSN (default: tickets.db)
                   Use ":memory:" for an in-memory database
  --config         Config file path
  --log-level      debug, info, warn, error
  --log-format     json or console
  --kafka-brokers  Publish sale events to Kafka

ENVIRONMENT:
  TICKET_SESSION_SECRET is required. Every key can be set as
  TICKET_<SECTION>_<KEY>, e.g. TICKET_DATABASE_DSN.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler, flush the event publisher
  4. Close database connection

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration keys
  - store/sqlstore/sqlstore.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/warp/ticket-booth/api"
	"github.com/warp/ticket-booth/auth"
	"github.com/warp/ticket-booth/config"
	"github.com/warp/ticket-booth/events"
	"github.com/warp/ticket-booth/events/kafka"
	"github.com/warp/ticket-booth/logger"
	"github.com/warp/ticket-booth/sales"
	"github.com/warp/ticket-booth/store/sqlstore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Flags
	fs := pflag.NewFlagSet("server", pflag.ExitOnError)
	config.Flags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := config.Load(fs)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	// Initialize store
	ctx := context.Background()
	store, err := sqlstore.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()
	log.Info("database ready", zap.String("driver", store.Driver()))

	accounts := auth.NewAccounts(store, 0)
	change, err := accounts.EnsureDefaultAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password)
	if err != nil {
		return fmt.Errorf("failed to ensure admin account: %w", err)
	}
	if change != auth.AdminUnchanged {
		log.Warn("default admin account "+string(change), zap.String("username", cfg.Admin.Username))
	}

	// Event publisher
	var publisher events.Publisher = events.Nop{}
	if cfg.Kafka.Enabled() {
		kp := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kp.Close()
		publisher = kp
		log.Info("publishing sale events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	ledger := sales.NewLedger(store, sales.Options{
		EnforceQuotaOnCorrection: cfg.Correction.EnforceQuota,
		RetainZeroTotals:         cfg.Correction.RetainZeroTotals,
		Logger:                   log,
		Publisher:                publisher,
	})

	// Initialize handler
	pending := sales.NewPendingBook()
	handler := api.NewHandler(api.Deps{
		Ledger:    ledger,
		Roster:    store,
		Accounts:  accounts,
		Tokens:    auth.NewTokens(cfg.Session.Secret, cfg.Session.TTL),
		Pending:   pending,
		Metrics:   api.NewMetrics(pending.Len),
		Logger:    log,
		TicketCap: cfg.Tickets.Total,
		Ping:      store.Ping,
	})

	scheduler := api.NewScheduler(handler, log)
	scheduler.Start()
	defer scheduler.Stop()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serveErr := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}
