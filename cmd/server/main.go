/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the vacation ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load configuration (file, .env, LEDGER_* env)
  2. Build the zap logger
  3. Open the SQLite store (migrations run on open)
  4. Pick the maintenance lock: Redis when enabled, in-process otherwise
  5. Wire vacation.Service, vacation.Runner and the scheduler
  6. Configure HTTP router and start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to a YAML config file (default: ./config.yaml if present)
  -port    Overrides server.port
  -db      Overrides db.path. Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for an in-flight check)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database and Redis connections

EXAMPLES:
  ./server -config=./config.yaml
  LEDGER_REDIS_ENABLED=true LEDGER_REDIS_ADDR=redis:6379 ./server
  ./server -db=":memory:" -port=3000

SEE ALSO:
  - config/config.go: Configuration keys and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/warp/leave-ledger/api"
	"github.com/warp/leave-ledger/config"
	"github.com/warp/leave-ledger/holiday"
	"github.com/warp/leave-ledger/lock"
	"github.com/warp/leave-ledger/logging"
	"github.com/warp/leave-ledger/store/sqlite"
	"github.com/warp/leave-ledger/vacation"
	"go.uber.org/zap"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "Path to YAML config file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	if err := run(*configPath, *port, *dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "leave-ledger: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, port int, dbPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	// Initialize store
	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("database ready", zap.String("path", cfg.Database.Path))

	// Maintenance lock
	var locker vacation.Locker = lock.NewLocal()
	if cfg.Redis.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rdb, err := lock.Connect(ctx, cfg.Redis)
		cancel()
		if err != nil {
			return err
		}
		defer rdb.Close()
		locker = lock.NewRedis(rdb, cfg.Redis.LockTTL, lockOwner(), logger)
		logger.Info("redis lock enabled", zap.String("addr", cfg.Redis.Addr))
	}

	// Ledger
	credit, err := cfg.Ledger.Credit()
	if err != nil {
		return err
	}
	calendar := holiday.Default()
	svc := vacation.NewService(store, calendar,
		vacation.WithLogger(logger.Named("vacation.service")),
		vacation.WithMaxRetries(cfg.Ledger.MaxRetries))
	runner := vacation.NewRunner(store, vacation.Policy{MonthlyCredit: credit},
		vacation.WithLocker(locker),
		vacation.WithWorkers(cfg.Ledger.Workers),
		vacation.WithRunnerRetries(cfg.Ledger.MaxRetries),
		vacation.WithRunnerLogger(logger.Named("vacation.runner")))

	scheduler := api.NewScheduler(runner, logger)
	scheduler.Enabled = cfg.Scheduler.Enabled
	scheduler.CheckInterval = cfg.Scheduler.Interval
	scheduler.TransitionMonth = time.Month(cfg.Ledger.TransitionMonth)
	scheduler.ExpirationMonth = time.Month(cfg.Ledger.ExpirationMonth)
	scheduler.Start()

	// HTTP
	handler := api.NewHandler(svc, runner, calendar, logger)
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimit:      cfg.Server.RateLimit,
		RateBurst:      cfg.Server.RateBurst,
		Demo:           cfg.Server.Demo,
		Ping:           store.Ping,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down", zap.Stringer("signal", sig))
	case err := <-errc:
		scheduler.Stop()
		return fmt.Errorf("server failed: %w", err)
	}

	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// lockOwner identifies this process in the Redis lock value.
func lockOwner() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}
