package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/resy-swiper/internal/slots"
	"github.com/example/resy-swiper/internal/swipe"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"RESY_EMAIL", "RESY_PASSWORD", "RESY_API_KEY", "RESY_BASE_URL", "RESY_HTTP_TIMEOUT_MS",
		"SWIPE_LEAD_MS", "SWIPE_POLL_WINDOW_SECONDS", "SWIPE_RETRY_WINDOW_SECONDS",
		"DATABASE_URL", "AMQP_URL", "AMQP_EXCHANGE", "AMQP_ROUTING_KEY", "METRICS_ADDR", "LOG_DEBUG",
	} {
		t.Setenv(k, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "https://api.resy.com", cfg.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Lead)
	assert.Equal(t, 10*time.Second, cfg.PollWindow)
	assert.Equal(t, 2*time.Second, cfg.RetryWindow)
	assert.Equal(t, "reservations", cfg.AMQPExchange)
	assert.Equal(t, "reservation.swiped", cfg.AMQPRoutingKey)
	assert.Empty(t, cfg.DatabaseURL)
	assert.False(t, cfg.Debug)
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("RESY_API_KEY", " key ")
	t.Setenv("SWIPE_LEAD_MS", "40")
	t.Setenv("SWIPE_RETRY_WINDOW_SECONDS", "0")
	t.Setenv("LOG_DEBUG", "1")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "key", cfg.APIKey)
	assert.Equal(t, 40*time.Millisecond, cfg.Lead)
	assert.Equal(t, time.Duration(0), cfg.RetryWindow)
	assert.True(t, cfg.Debug)
}

func TestFromEnvRejectsBadNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("SWIPE_POLL_WINDOW_SECONDS", "ten")
	_, err := FromEnv()
	assert.ErrorContains(t, err, "SWIPE_POLL_WINDOW_SECONDS")

	clearEnv(t)
	t.Setenv("RESY_HTTP_TIMEOUT_MS", "0")
	_, err = FromEnv()
	assert.ErrorContains(t, err, "RESY_HTTP_TIMEOUT_MS")
}

func TestRequireResy(t *testing.T) {
	cfg := Config{APIKey: "k"}
	assert.NoError(t, cfg.RequireResy(false))

	err := cfg.RequireResy(true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RESY_EMAIL")
	assert.Contains(t, err.Error(), "RESY_PASSWORD")
}

const sampleRequest = `
venue_id: "1843946"
party_size: 2
date: "2024-05-01"
times: ["19:00", "19:30:00", "20:00"]
release_time: "09:00"
labels: [Indoor, " Patio "]
mode: Concurrent
lead_ms: 100
`

func TestLoadRequest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRequest), 0o600))
	cfg := Config{Lead: time.Second, PollWindow: 10 * time.Second, RetryWindow: 2 * time.Second}

	req, err := LoadRequest(path, cfg)
	require.NoError(t, err)

	assert.Equal(t, swipe.Request{
		VenueID:      "1843946",
		PartySize:    2,
		Date:         "2024-05-01",
		DesiredTimes: []slots.TimeKey{"19:00:00", "19:30:00", "20:00:00"},
		ReleaseTime:  "09:00",
		Labels:       []string{"Indoor", "Patio"},
		Mode:         swipe.Concurrent,
		Lead:         100 * time.Millisecond,
		PollWindow:   10 * time.Second,
		RetryWindow:  2 * time.Second,
	}, req)
}

func TestResolveCommaSeparatedTimesAndZeroWindow(t *testing.T) {
	zero := 0
	f := RequestFile{
		VenueID:            "1",
		PartySize:          4,
		Date:               "2024-05-01",
		Times:              []string{"18:00, 18:15"},
		RetryWindowSeconds: &zero,
	}

	req, err := f.Resolve(Config{RetryWindow: 2 * time.Second})
	require.NoError(t, err)

	assert.Equal(t, []slots.TimeKey{"18:00:00", "18:15:00"}, req.DesiredTimes)
	assert.Equal(t, swipe.Sequential, req.Mode)
	assert.Equal(t, time.Duration(0), req.RetryWindow)
}

func TestParseRequestRejectsUnknownFields(t *testing.T) {
	_, err := ParseRequest([]byte("venue_id: 1\nparty: 2\n"))
	assert.ErrorContains(t, err, "parse request")
}

func TestParseRequestRejectsMultipleDocuments(t *testing.T) {
	_, err := ParseRequest([]byte("venue_id: \"1\"\n---\nvenue_id: \"2\"\n"))
	assert.ErrorContains(t, err, "multiple YAML documents")
}

func TestResolveValidates(t *testing.T) {
	cases := map[string]RequestFile{
		"no venue": {PartySize: 2, Date: "2024-05-01", Times: []string{"19:00"}},
		"bad time": {VenueID: "1", PartySize: 2, Date: "2024-05-01", Times: []string{"7pm"}},
		"no times": {VenueID: "1", PartySize: 2, Date: "2024-05-01"},
		"bad mode": {VenueID: "1", PartySize: 2, Date: "2024-05-01", Times: []string{"19:00"}, Mode: "all"},
		"bad date": {VenueID: "1", PartySize: 2, Date: "tomorrow", Times: []string{"19:00"}},
		"no party": {VenueID: "1", Date: "2024-05-01", Times: []string{"19:00"}},
	}
	for name, f := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.Resolve(Config{})
			assert.Error(t, err)
		})
	}
}

func TestReadRequestMissingFile(t *testing.T) {
	_, err := ReadRequest(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "read request")
}
