package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"arblog/internal/config"
	"arblog/internal/database"
	"arblog/internal/logging"
)

var (
	// Global flags
	configPath string

	cfg    *config.Config
	logger *slog.Logger
)

// NewRootCommand creates the root command for the CLI
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "arblog",
		Short: "Triangular arbitrage attempt log",
		Long: `arblog records every evaluated triangular arbitrage cycle in PostgreSQL
and lets you query, summarise, export and follow the log.

Examples:
  arblog init
  arblog append --base-token USDT --path "USDT→WBNB→CAKE→USDT" --start 1000 --end 1005.25
  arblog query --executed --order desc --limit 20
  arblog stats --hours 24
  arblog export --output attempts.csv
  arblog serve
  arblog tail --url ws://localhost:8089/api/stream`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg = loaded
			logger = logging.New(cfg.Logging, cmd.ErrOrStderr())
			slog.SetDefault(logger)
			return nil
		},
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to config file (default: ./config.yaml if present)")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newResetCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newAppendCommand())
	rootCmd.AddCommand(newQueryCommand())
	rootCmd.AddCommand(newStatsCommand())
	rootCmd.AddCommand(newExportCommand())
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newTailCommand())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openRepository connects to the configured database. The caller closes the
// returned repository's pool.
func openRepository(ctx context.Context) (*database.PostgresRepository, error) {
	pool, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return database.NewPostgresRepository(pool, logger), nil
}
