package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/shortener"
	"github.com/sundayezeilo/shortlink/internal/sweeper"
)

const timeLayout = time.RFC3339

func newMigrateCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the store schema",
		Long: `Connects to the configured store and brings its schema up to date.
Postgres applies the embedded SQL migrations; SQLite runs the GORM auto-migration.
Redis and the in-memory store have no schema.`,
		Args: cobra.NoArgs,
		RunE: e.run(func(cmd *cobra.Command, args []string) error {
			// opening the store has already applied the schema
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (store=%s)\n", e.cfg.Store.Driver)
			return nil
		}),
	}
}

func newCreateCommand(e *env) *cobra.Command {
	var (
		rawURL   string
		ttlHours int
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a short link",
		Long: `Creates a mapping for the given URL and prints its short code.

Example:
  linkctl create --url="https://example.com/a/long/path" --ttl-hours=24`,
		Args: cobra.NoArgs,
		RunE: e.run(func(cmd *cobra.Command, args []string) error {
			req := shortener.CreateRequest{OriginalURL: rawURL}
			if cmd.Flags().Changed("ttl-hours") {
				req.TTLHours = &ttlHours
			}

			created, err := e.service.Create(cmd.Context(), req)
			if err != nil {
				return describe(err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Code:      %s\n", created.ShortCode)
			fmt.Fprintf(out, "Short URL: %s/%s\n", e.cfg.Server.BaseURL, created.ShortCode)
			fmt.Fprintf(out, "Original:  %s\n", created.OriginalURL)
			fmt.Fprintf(out, "Expires:   %s\n", formatTime(created.ExpiresAt))
			return nil
		}),
	}

	cmd.Flags().StringVar(&rawURL, "url", "", "URL to shorten (http or https)")
	cmd.Flags().IntVar(&ttlHours, "ttl-hours", 0, "hours until the link expires; 0 never expires (default from config)")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func newStatsCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <code>",
		Short: "Show access statistics for a short code",
		Args:  cobra.ExactArgs(1),
		RunE: e.run(func(cmd *cobra.Command, args []string) error {
			stats, err := e.service.Stats(cmd.Context(), args[0])
			if err != nil {
				return describe(err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Code:          %s\n", stats.ShortCode)
			fmt.Fprintf(out, "Original:      %s\n", stats.OriginalURL)
			fmt.Fprintf(out, "Access count:  %d\n", stats.AccessCount)
			fmt.Fprintf(out, "Last accessed: %s\n", formatTime(stats.LastAccessedAt))
			fmt.Fprintf(out, "Expires:       %s\n", formatTime(stats.ExpiresAt))
			fmt.Fprintf(out, "Expired:       %t\n", stats.IsExpired)
			return nil
		}),
	}
}

func newDeleteCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <code>",
		Short: "Permanently delete a short link",
		Args:  cobra.ExactArgs(1),
		RunE: e.run(func(cmd *cobra.Command, args []string) error {
			if err := e.service.Delete(cmd.Context(), args[0]); err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		}),
	}
}

func newSweepCommand(e *env, clock func() time.Time) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired mappings now",
		Args:  cobra.NoArgs,
		RunE: e.run(func(cmd *cobra.Command, args []string) error {
			sw, err := sweeper.New(e.backend.Store, sweeper.Config{
				Schedule: e.cfg.Shortener.CleanupSchedule,
				Timeout:  e.cfg.Shortener.CleanupTimeout,
				Clock:    clock,
			}, e.logger)
			if err != nil {
				return err
			}

			deleted, err := sw.RunOnce(cmd.Context())
			if err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired mapping(s)\n", deleted)
			return nil
		}),
	}
}

// describe turns an engine error into a one-line operator message.
func describe(err error) error {
	switch errx.KindOf(err) {
	case errx.NotFound:
		return fmt.Errorf("short code not found")
	case errx.Gone:
		return fmt.Errorf("short link has expired")
	case errx.Invalid:
		return fmt.Errorf("invalid input: %w", err)
	case errx.Unavailable:
		return fmt.Errorf("store unavailable: %w", err)
	default:
		return err
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format(timeLayout)
}
