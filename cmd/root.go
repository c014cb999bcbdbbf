package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/example/resy-swiper/internal/config"
	"github.com/example/resy-swiper/internal/obs"
	"github.com/example/resy-swiper/internal/resy"
	"github.com/example/resy-swiper/internal/web"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "resyswipe",
		Short:        "Wake at release time and book the first Resy slot you want",
		SilenceUsage: true,
	}

	root.AddCommand(newVersionCmd())
	root.AddCommand(newSwipeCmd())
	root.AddCommand(newProbeCmd())
	root.AddCommand(newPingCmd())
	root.AddCommand(newHistoryCmd())

	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newResyClient(cfg config.Config) *resy.Client {
	return resy.New(resy.Options{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.HTTPTimeout,
	})
}

// startMetrics serves reg on METRICS_ADDR until ctx ends. It is a no-op when
// the address is unset.
func startMetrics(ctx context.Context, cfg config.Config, reg *prometheus.Registry, log *obs.Logger) {
	if cfg.MetricsAddr == "" {
		return
	}
	ws := &web.Server{Registry: reg}
	go func() {
		if err := web.Start(ctx, cfg.MetricsAddr, ws.Routes(), log); err != nil {
			log.Error(map[string]interface{}{"event": "metrics_server_failed", "addr": cfg.MetricsAddr, "error": err})
		}
	}()
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
