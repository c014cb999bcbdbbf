package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/resy-swiper/internal/config"
)

func newPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Log in and check the API key and session against Resy",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if err := cfg.RequireResy(true); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			client := newResyClient(cfg)
			sess, err := client.Authenticate(ctx, cfg.Email, cfg.Password)
			if err != nil {
				return fmt.Errorf("authenticate: %w", err)
			}
			if err := client.Ping(ctx, sess); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "resy: ok")
			return nil
		},
	}
}
