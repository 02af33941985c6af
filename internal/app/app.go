package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/sundayezeilo/shortlink/internal/config"
	"github.com/sundayezeilo/shortlink/internal/server"
	"github.com/sundayezeilo/shortlink/internal/shortener"
	"github.com/sundayezeilo/shortlink/internal/sweeper"
)

// App holds the application dependencies and configuration.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Backend *Backend
	Sweeper *sweeper.Sweeper // nil when cleanup is disabled
	Server  *server.Server
	Handler *shortener.Handler
}

// New initializes and returns a new App instance with all dependencies wired up.
func New(ctx context.Context) (*App, error) {
	LoadEnv()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := NewLogger(os.Stdout, cfg.App.LogLevel).With("service", cfg.App.ServiceName)

	logger.Info("starting application",
		"env", cfg.App.Environment,
		"version", cfg.App.ServiceVersion,
		"store", cfg.Store.Driver,
	)

	backend, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	svc := shortener.NewService(backend.Store, &shortener.ServiceConfig{
		DefaultTTLHours: cfg.Shortener.DefaultTTLHours,
	})
	handler := shortener.NewHandler(shortener.HandlerConfig{
		Service: svc,
		Logger:  logger,
		BaseURL: cfg.Server.BaseURL,
	})

	var sw *sweeper.Sweeper
	if cfg.Shortener.CleanupEnabled {
		sw, err = sweeper.New(backend.Store, sweeper.Config{
			Schedule: cfg.Shortener.CleanupSchedule,
			Timeout:  cfg.Shortener.CleanupTimeout,
		}, logger)
		if err != nil {
			backend.Close()
			return nil, fmt.Errorf("failed to create sweeper: %w", err)
		}
	} else {
		logger.Warn("expired mapping cleanup disabled")
	}

	srv := server.New(cfg, logger, handler)

	logger.Info("application initialized",
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
		"default_ttl_hours", cfg.Shortener.DefaultTTLHours,
	)

	return &App{
		Config:  cfg,
		Logger:  logger,
		Backend: backend,
		Sweeper: sw,
		Server:  srv,
		Handler: handler,
	}, nil
}

// Start runs the HTTP server and the sweeper until a shutdown signal
// arrives or either of them fails.
func (a *App) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Server.Start(gctx)
	})

	if a.Sweeper != nil {
		a.Sweeper.Start()
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
			defer cancel()
			if err := a.Sweeper.Stop(stopCtx); err != nil {
				return fmt.Errorf("sweeper stop: %w", err)
			}
			a.Logger.Info("sweeper stopped")
			return nil
		})
	}

	return g.Wait()
}

// Shutdown releases the store's resources.
func (a *App) Shutdown() {
	a.Logger.Info("shutting down application")

	if a.Backend != nil && a.Backend.Close != nil {
		a.Backend.Close()
		a.Logger.Info("store connection closed", "store", a.Config.Store.Driver)
	}
}

// LoadEnv loads .env only in non-production environments.
func LoadEnv() {
	env := os.Getenv("APP_ENV")
	if env == "" || env == "development" || env == "test" {
		if err := godotenv.Load(); err != nil {
			log.Println("no .env file found.")
		}
	}
}

// NewLogger creates a JSON logger writing to w at the given level.
func NewLogger(w io.Writer, level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel}))
}
