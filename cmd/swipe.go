package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/example/resy-swiper/internal/config"
	"github.com/example/resy-swiper/internal/db"
	"github.com/example/resy-swiper/internal/history"
	"github.com/example/resy-swiper/internal/migrate"
	"github.com/example/resy-swiper/internal/notify"
	"github.com/example/resy-swiper/internal/obs"
	"github.com/example/resy-swiper/internal/report"
	"github.com/example/resy-swiper/internal/swipe"
)

var errNotBooked = errors.New("nothing booked")

type swipeFlags struct {
	requestPath string

	venueID            string
	partySize          int
	date               string
	times              string
	releaseTime        string
	labels             string
	mode               string
	leadMS             int
	pollWindowSeconds  int
	retryWindowSeconds int

	noHistory bool
	noNotify  bool
}

func newSwipeCmd() *cobra.Command {
	var f swipeFlags

	c := &cobra.Command{
		Use:   "swipe",
		Short: "Sleep until release, poll inventory and book the preferred slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if err := cfg.RequireResy(true); err != nil {
				return err
			}

			file := config.RequestFile{}
			if f.requestPath != "" {
				if file, err = config.ReadRequest(f.requestPath); err != nil {
					return err
				}
			}
			f.apply(cmd, &file)
			req, err := file.Resolve(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log := obs.NewLoggerTo(os.Stderr, cfg.Debug)
			reg := prometheus.NewRegistry()
			metrics := obs.NewMetrics(reg)
			startMetrics(ctx, cfg, reg, log)

			client := newResyClient(cfg)
			s := &swipe.Swiper{
				Auth:        client,
				Credentials: swipe.Credentials{Email: cfg.Email, Password: cfg.Password},
				Inventory:   client,
				Booking:     client,
				Log:         log,
				Metrics:     metrics,
			}

			if cfg.DatabaseURL != "" && !f.noHistory {
				d, err := openHistory(ctx, cfg.DatabaseURL)
				if err != nil {
					log.Error(map[string]interface{}{"event": "history_disabled", "error": err})
				} else {
					defer d.Close()
					s.Recorder = history.NewRepo(d)
				}
			}
			if cfg.AMQPURL != "" && !f.noNotify {
				p, err := notify.Dial(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey, log)
				if err != nil {
					log.Error(map[string]interface{}{"event": "notify_disabled", "error": err})
				} else {
					defer p.Close()
					s.Notifier = p
				}
			}

			res, err := s.Run(ctx, req)
			if err != nil {
				return err
			}
			if err := report.WriteResult(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Booked() {
				return errNotBooked
			}
			return nil
		},
	}

	fl := c.Flags()
	fl.StringVar(&f.requestPath, "request", "", "YAML swipe request file; flags below override its fields")
	fl.StringVar(&f.venueID, "venue-id", "", "resy venue id")
	fl.IntVar(&f.partySize, "party-size", 2, "party size")
	fl.StringVar(&f.date, "date", "", "reservation date YYYY-MM-DD")
	fl.StringVar(&f.times, "times", "", "comma-separated preferred times, best first (HH:MM or HH:MM:SS)")
	fl.StringVar(&f.releaseTime, "release-time", "", "local time slots open (HH:MM[:SS]); empty starts now")
	fl.StringVar(&f.labels, "labels", "", "comma-separated seating labels to accept (substring, case-insensitive)")
	fl.StringVar(&f.mode, "mode", "sequential", "sequential (first available) or concurrent (all available)")
	fl.IntVar(&f.leadMS, "lead-ms", 0, "wake this many ms before release (default SWIPE_LEAD_MS)")
	fl.IntVar(&f.pollWindowSeconds, "poll-window-seconds", 0, "keep polling this long after release (default SWIPE_POLL_WINDOW_SECONDS)")
	fl.IntVar(&f.retryWindowSeconds, "retry-window-seconds", 0, "commit retry window per slot (default SWIPE_RETRY_WINDOW_SECONDS)")
	fl.BoolVar(&f.noHistory, "no-history", false, "do not record this run even when DATABASE_URL is set")
	fl.BoolVar(&f.noNotify, "no-notify", false, "do not publish even when AMQP_URL is set")
	return c
}

// apply copies every flag the user set onto file.
func (f *swipeFlags) apply(cmd *cobra.Command, file *config.RequestFile) {
	changed := cmd.Flags().Changed
	if changed("venue-id") {
		file.VenueID = f.venueID
	}
	if changed("party-size") || file.PartySize == 0 {
		file.PartySize = f.partySize
	}
	if changed("date") {
		file.Date = f.date
	}
	if changed("times") {
		file.Times = splitCSV(f.times)
	}
	if changed("release-time") {
		file.ReleaseTime = f.releaseTime
	}
	if changed("labels") {
		file.Labels = splitCSV(f.labels)
	}
	if changed("mode") || file.Mode == "" {
		file.Mode = f.mode
	}
	if changed("lead-ms") {
		file.LeadMS = &f.leadMS
	}
	if changed("poll-window-seconds") {
		file.PollWindowSeconds = &f.pollWindowSeconds
	}
	if changed("retry-window-seconds") {
		file.RetryWindowSeconds = &f.retryWindowSeconds
	}
}

func openHistory(ctx context.Context, databaseURL string) (*db.DB, error) {
	d, err := db.Open(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := d.Ping(ctx); err != nil {
		d.Close()
		return nil, err
	}
	if err := migrate.Up(ctx, d); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}
