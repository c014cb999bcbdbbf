package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/example/resy-swiper/internal/config"
	"github.com/example/resy-swiper/internal/inventory"
	"github.com/example/resy-swiper/internal/obs"
	"github.com/example/resy-swiper/internal/probe"
	"github.com/example/resy-swiper/internal/report"
	"github.com/example/resy-swiper/internal/scheduler"
)

func newProbeCmd() *cobra.Command {
	var (
		venueID     string
		partySize   int
		date        string
		releaseTime string
		fromMS      int
		stepMS      int
		launches    int
	)

	c := &cobra.Command{
		Use:   "probe",
		Short: "Fire staggered inventory queries around release to see when slots appear",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if err := cfg.RequireResy(true); err != nil {
				return err
			}
			if _, err := time.Parse("2006-01-02", date); err != nil {
				return fmt.Errorf("invalid --date (want YYYY-MM-DD)")
			}
			release, err := scheduler.NextOccurrence(time.Now(), releaseTime)
			if err != nil {
				return err
			}
			plan := probe.Plan{
				Release:  release,
				From:     time.Duration(fromMS) * time.Millisecond,
				Step:     time.Duration(stepMS) * time.Millisecond,
				Launches: launches,
			}
			if err := plan.Validate(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log := obs.NewLoggerTo(os.Stderr, cfg.Debug)
			reg := prometheus.NewRegistry()
			metrics := obs.NewMetrics(reg)
			startMetrics(ctx, cfg, reg, log)

			client := newResyClient(cfg)
			sess, err := client.Authenticate(ctx, cfg.Email, cfg.Password)
			if err != nil {
				return fmt.Errorf("authenticate: %w", err)
			}
			log.Info(map[string]interface{}{
				"event":    "probe_scheduled",
				"release":  release.Format(time.RFC3339Nano),
				"launches": launches,
			})

			p := &probe.Prober{Querier: client, Log: log, Metrics: metrics}
			samples, err := p.Run(ctx, sess, inventory.Query{VenueID: venueID, PartySize: partySize, Date: date}, plan)
			if err != nil {
				return err
			}
			return report.WriteSamples(cmd.OutOrStdout(), samples)
		},
	}

	c.Flags().StringVar(&venueID, "venue-id", "", "resy venue id")
	c.Flags().IntVar(&partySize, "party-size", 2, "party size")
	c.Flags().StringVar(&date, "date", "", "reservation date YYYY-MM-DD")
	c.Flags().StringVar(&releaseTime, "release-time", "", "local time slots open (HH:MM[:SS])")
	c.Flags().IntVar(&fromMS, "from-ms", -2000, "first launch relative to release, in ms")
	c.Flags().IntVar(&stepMS, "step-ms", 10, "gap between launches, in ms")
	c.Flags().IntVar(&launches, "launches", 100, "number of launches")

	_ = c.MarkFlagRequired("venue-id")
	_ = c.MarkFlagRequired("date")
	_ = c.MarkFlagRequired("release-time")
	return c
}
