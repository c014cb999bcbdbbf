package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/resy-swiper/internal/config"
	"github.com/example/resy-swiper/internal/db"
	"github.com/example/resy-swiper/internal/history"
	"github.com/example/resy-swiper/internal/report"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded swipe runs (needs DATABASE_URL)",
	}
	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryShowCmd())
	return cmd
}

func openHistoryRepo(ctx context.Context) (*db.DB, *history.Repo, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required")
	}
	d, err := openHistory(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return d, history.NewRepo(d), nil
}

func newHistoryListCmd() *cobra.Command {
	var limit int
	c := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			d, repo, err := openHistoryRepo(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			runs, err := repo.ListRecent(ctx, limit)
			if err != nil {
				return err
			}
			return report.WriteRuns(cmd.OutOrStdout(), runs)
		},
	}
	c.Flags().IntVar(&limit, "limit", 20, "max runs to show")
	return c
}

func newHistoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show the confirmation attempts of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			d, repo, err := openHistoryRepo(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			attempts, err := repo.Attempts(ctx, args[0])
			if db.IsNotFound(err) {
				return fmt.Errorf("no recorded run %s", args[0])
			}
			if err != nil {
				return err
			}
			return report.WriteAttempts(cmd.OutOrStdout(), attempts)
		},
	}
}
