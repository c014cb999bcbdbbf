package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/resy-swiper/internal/slots"
	"github.com/example/resy-swiper/internal/swipe"
)

// RequestFile is the on-disk shape of a swipe request. Pointer fields are
// optional and fall back to the environment defaults.
type RequestFile struct {
	VenueID     string   `yaml:"venue_id"`
	PartySize   int      `yaml:"party_size"`
	Date        string   `yaml:"date"`
	Times       []string `yaml:"times"`
	ReleaseTime string   `yaml:"release_time"`
	Labels      []string `yaml:"labels"`
	Mode        string   `yaml:"mode"`

	LeadMS             *int `yaml:"lead_ms"`
	PollWindowSeconds  *int `yaml:"poll_window_seconds"`
	RetryWindowSeconds *int `yaml:"retry_window_seconds"`
}

func ParseRequest(data []byte) (RequestFile, error) {
	var f RequestFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return RequestFile{}, fmt.Errorf("parse request: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return RequestFile{}, fmt.Errorf("parse request: multiple YAML documents are not supported")
		}
		return RequestFile{}, fmt.Errorf("parse request: %w", err)
	}
	return f, nil
}

func ReadRequest(path string) (RequestFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RequestFile{}, fmt.Errorf("read request: %w", err)
	}
	return ParseRequest(data)
}

// LoadRequest reads, parses, normalizes, and validates a request file.
func LoadRequest(path string, cfg Config) (swipe.Request, error) {
	f, err := ReadRequest(path)
	if err != nil {
		return swipe.Request{}, err
	}
	return f.Resolve(cfg)
}

// Resolve normalizes f into a validated swipe.Request, taking unset timing
// knobs from cfg.
func (f RequestFile) Resolve(cfg Config) (swipe.Request, error) {
	times, err := slots.ParseTimeKeys(splitTimes(f.Times))
	if err != nil {
		return swipe.Request{}, err
	}
	mode, err := swipe.ParseMode(strings.ToLower(strings.TrimSpace(f.Mode)))
	if err != nil {
		return swipe.Request{}, err
	}
	var labels []string
	for _, l := range f.Labels {
		if l = strings.TrimSpace(l); l != "" {
			labels = append(labels, l)
		}
	}

	req := swipe.Request{
		VenueID:      strings.TrimSpace(f.VenueID),
		PartySize:    f.PartySize,
		Date:         strings.TrimSpace(f.Date),
		DesiredTimes: times,
		ReleaseTime:  strings.TrimSpace(f.ReleaseTime),
		Labels:       labels,
		Mode:         mode,
		Lead:         pick(f.LeadMS, time.Millisecond, cfg.Lead),
		PollWindow:   pick(f.PollWindowSeconds, time.Second, cfg.PollWindow),
		RetryWindow:  pick(f.RetryWindowSeconds, time.Second, cfg.RetryWindow),
	}
	if err := req.Validate(); err != nil {
		return swipe.Request{}, fmt.Errorf("invalid request: %w", err)
	}
	return req, nil
}

// splitTimes accepts both a YAML list and comma separated entries.
func splitTimes(in []string) []string {
	var out []string
	for _, s := range in {
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func pick(v *int, unit, def time.Duration) time.Duration {
	if v == nil {
		return def
	}
	return time.Duration(*v) * unit
}
