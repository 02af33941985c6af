// Package cli implements linkctl, the operator command line for the
// mapping store.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sundayezeilo/shortlink/internal/app"
	"github.com/sundayezeilo/shortlink/internal/config"
	"github.com/sundayezeilo/shortlink/internal/shortener"
)

// Deps are the hooks the commands use to reach configuration and storage.
type Deps struct {
	LoadConfig func() (*config.Config, error)
	OpenStore  func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app.Backend, error)
	Clock      func() time.Time
	LogOutput  io.Writer
}

// DefaultDeps loads .env and configuration from the environment and opens
// the configured backend.
func DefaultDeps() Deps {
	return Deps{
		LoadConfig: func() (*config.Config, error) {
			app.LoadEnv()
			return config.Load()
		},
		OpenStore: app.OpenStore,
		LogOutput: os.Stderr,
	}
}

// env is built once per invocation by the root command's pre-run hook.
type env struct {
	cfg     *config.Config
	logger  *slog.Logger
	backend *app.Backend
	service shortener.Service
}

// run adapts fn into a RunE that releases the store once fn returns,
// whether or not it succeeded.
func (e *env) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer func() {
			if e.backend != nil && e.backend.Close != nil {
				e.backend.Close()
			}
		}()
		return fn(cmd, args)
	}
}

// NewRootCommand returns the linkctl command tree.
func NewRootCommand(deps Deps) *cobra.Command {
	if deps.LogOutput == nil {
		deps.LogOutput = io.Discard
	}

	e := &env{}

	root := &cobra.Command{
		Use:           "linkctl",
		Short:         "Manage short link mappings",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := deps.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			e.cfg = cfg
			e.logger = app.NewLogger(deps.LogOutput, cfg.App.LogLevel).With("service", cfg.App.ServiceName)

			backend, err := deps.OpenStore(cmd.Context(), cfg, e.logger)
			if err != nil {
				return err
			}
			e.backend = backend
			e.service = shortener.NewService(backend.Store, &shortener.ServiceConfig{
				DefaultTTLHours: cfg.Shortener.DefaultTTLHours,
				Clock:           deps.Clock,
			})
			return nil
		},
	}

	root.AddCommand(
		newMigrateCommand(e),
		newCreateCommand(e),
		newStatsCommand(e),
		newDeleteCommand(e),
		newSweepCommand(e, deps.Clock),
	)
	return root
}

// Execute runs linkctl with the process arguments.
func Execute(ctx context.Context) error {
	return NewRootCommand(DefaultDeps()).ExecuteContext(ctx)
}
