package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaiso/engagement-workflow/internal/domain"
	"github.com/shaiso/engagement-workflow/internal/repo"
)

func newHistoryCmd(app *App) *cobra.Command {
	var (
		limit      int
		status     string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded workflow runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := NewOutput(jsonOutput, app.stdout, app.stderr)
			return app.runHistory(cmd.Context(), out, repo.RunFilter{
				Status: domain.RunStatus(status),
				Limit:  limit,
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (CLEANED_UP, PARTIAL, FAILED, ...)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

func (a *App) runHistory(ctx context.Context, out *Output, filter repo.RunFilter) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if cfg.History.DatabaseURL == "" {
		return ErrHistoryDisabled
	}

	pool, err := repo.NewPool(ctx, cfg.History.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect history: %w", err)
	}
	defer pool.Close()

	runs, err := repo.NewRunRepo(pool).List(ctx, filter)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	if len(runs) == 0 && !out.jsonMode {
		out.Message("No runs recorded.")
		return nil
	}
	return out.Print(runHeaders, runRows(runs), runs)
}
