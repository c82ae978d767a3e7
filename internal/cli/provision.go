package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"arblog/internal/model"
)

// errResetNotConfirmed is returned when reset runs without --yes.
var errResetNotConfirmed = errors.New("reset drops every recorded attempt; re-run with --yes to confirm")

func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the attempt log if it does not exist",
		Long: `Create the attempt log table and its indexes if they are missing.

Existing rows are never touched, so init is safe to run at every deploy.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer repo.Pool.Close()

			if err := repo.EnsureSchema(cmd.Context()); err != nil {
				return fmt.Errorf("failed to initialise log: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Attempt log ready")
			return nil
		},
	}
}

func newResetCommand() *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop and recreate the attempt log",
		Long: `Drop the attempt log, if present, and create it empty.

All recorded attempts are lost and identifiers start again at 1.

Example:
  arblog reset --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return errResetNotConfirmed
			}

			repo, err := openRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer repo.Pool.Close()

			if err := repo.Reset(cmd.Context()); err != nil {
				return err
			}
			logger.Warn("Attempt log reset")
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Attempt log reset")
			return nil
		},
	}

	cmd.Flags().BoolVar(&confirmed, "yes", false, "Confirm that every recorded attempt may be dropped")

	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the attempt log exists and how many rows it holds",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer repo.Pool.Close()

			state, err := repo.State(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "State:    %s\n", state)
			if state != model.Ready {
				fmt.Fprintln(out, "Run 'arblog init' to create the attempt log.")
				return nil
			}

			st, err := repo.Stats(cmd.Context(), model.Filter{})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Attempts: %d\n", st.TotalAttempts)
			if st.LastAttemptAt != nil {
				fmt.Fprintf(out, "Latest:   %s\n", st.LastAttemptAt.Format(timeLayout))
			}
			return nil
		},
	}
}
