package swipe

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/resy-swiper/internal/booking"
	"github.com/example/resy-swiper/internal/inventory"
	"github.com/example/resy-swiper/internal/obs"
	"github.com/example/resy-swiper/internal/resy"
	"github.com/example/resy-swiper/internal/scheduler"
	"github.com/example/resy-swiper/internal/slots"
)

type Mode string

const (
	Sequential Mode = "sequential"
	Concurrent Mode = "concurrent"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case Sequential, Concurrent:
		return Mode(s), nil
	case "":
		return Sequential, nil
	default:
		return "", fmt.Errorf("invalid mode %q (want sequential or concurrent)", s)
	}
}

// Request is one swipe: what to book and when it is released.
type Request struct {
	VenueID      string
	PartySize    int
	Date         string // YYYY-MM-DD
	DesiredTimes []slots.TimeKey
	// ReleaseTime is the local HH:MM[:SS] at which slots open. Empty means
	// start polling immediately.
	ReleaseTime string
	Labels      []string
	Mode        Mode

	Lead        time.Duration // wake this much before ReleaseTime
	PollWindow  time.Duration // keep polling this long after ReleaseTime
	RetryWindow time.Duration // commit retry window per confirmation
}

func (r Request) Validate() error {
	if r.VenueID == "" {
		return fmt.Errorf("venue_id required")
	}
	if r.PartySize < 1 {
		return fmt.Errorf("party_size must be >= 1")
	}
	if _, err := time.Parse("2006-01-02", r.Date); err != nil {
		return fmt.Errorf("invalid date %q (want YYYY-MM-DD)", r.Date)
	}
	if len(r.DesiredTimes) == 0 {
		return fmt.Errorf("desired times required")
	}
	if r.ReleaseTime != "" {
		if _, err := scheduler.ParseTimeOfDay(r.ReleaseTime); err != nil {
			return err
		}
	}
	if _, err := ParseMode(string(r.Mode)); err != nil {
		return err
	}
	if r.Lead < 0 || r.PollWindow < 0 || r.RetryWindow < 0 {
		return fmt.Errorf("lead, poll window and retry window must not be negative")
	}
	return nil
}

// Result is what survives a run. In sequential mode Reservation is set on
// success; in concurrent mode Confirmed lists every time that booked.
type Result struct {
	RunID       string
	Mode        Mode
	Reservation *Reservation
	Confirmed   []slots.TimeKey
	Available   []slots.TimeKey
	Attempts    []Attempt
	WokeAt      time.Time
	FinishedAt  time.Time
}

func (r Result) Booked() bool {
	return r.Reservation != nil || len(r.Confirmed) > 0
}

type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*resy.Session, error)
}

// Recorder and Notifier are optional sinks. Their errors are logged and never
// change the result.
type Recorder interface {
	Record(ctx context.Context, req Request, res Result) error
}

type Notifier interface {
	Notify(ctx context.Context, req Request, res Result) error
}

type Credentials struct {
	Email    string
	Password string
}

// Swiper wires the scheduler, poller, index and engine into a single run.
type Swiper struct {
	Auth        Authenticator
	Credentials Credentials
	Inventory   inventory.Querier
	Booking     booking.Service

	Clock    scheduler.Clock
	Log      *obs.Logger
	Metrics  *obs.Metrics
	Recorder Recorder
	Notifier Notifier

	// MaxPolls overrides inventory.DefaultMaxPolls when > 0.
	MaxPolls int
}

// Run authenticates, waits for the release, polls, and books. The only
// errors are an invalid request and a failed login; "nothing booked" is a
// Result with Booked() == false.
func (s *Swiper) Run(ctx context.Context, req Request) (Result, error) {
	if req.Mode == "" {
		req.Mode = Sequential
	}
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	clock := s.Clock
	if clock == nil {
		clock = scheduler.SystemClock{}
	}
	res := Result{RunID: uuid.NewString(), Mode: req.Mode}

	sess, err := s.Auth.Authenticate(ctx, s.Credentials.Email, s.Credentials.Password)
	if err != nil {
		s.Log.Error(map[string]interface{}{"event": "auth_failed", "run_id": res.RunID, "error": err})
		return Result{}, fmt.Errorf("authenticate: %w", err)
	}

	wake := clock.Now()
	release := wake
	if req.ReleaseTime != "" {
		wake, err = scheduler.WakeTime(clock.Now(), req.ReleaseTime, req.Lead)
		if err != nil {
			return Result{}, err
		}
		release = wake.Add(req.Lead)
		s.Log.Info(map[string]interface{}{
			"event":   "sleeping",
			"run_id":  res.RunID,
			"wake_at": wake.Format(time.RFC3339Nano),
			"lead_ms": req.Lead.Milliseconds(),
		})
		scheduler.SleepUntil(clock, wake)
	}
	res.WokeAt = clock.Now()
	s.Metrics.WakeSkew(res.WokeAt.Sub(wake))
	s.Log.Info(map[string]interface{}{
		"event":   "woke",
		"run_id":  res.RunID,
		"venue":   req.VenueID,
		"date":    req.Date,
		"party":   req.PartySize,
		"times":   req.DesiredTimes,
		"mode":    string(req.Mode),
		"skew_ms": res.WokeAt.Sub(wake).Milliseconds(),
	})

	poller := inventory.NewPoller(s.Inventory)
	poller.Now = clock.Now
	poller.Log = s.Log
	poller.Metrics = s.Metrics
	if s.MaxPolls > 0 {
		poller.MaxPolls = s.MaxPolls
	}
	tokens := poller.FindSlots(ctx, sess, inventory.Query{
		VenueID:   req.VenueID,
		PartySize: req.PartySize,
		Date:      req.Date,
	}, release.Add(req.PollWindow))

	idx := slots.BuildIndex(tokens, slots.LabelFilter(req.Labels...), s.Log)
	res.Available = idx.Times()

	confirmer := booking.NewConfirmer(s.Booking)
	confirmer.Now = clock.Now
	confirmer.Log = s.Log
	confirmer.Metrics = s.Metrics
	engine := &Engine{
		Confirmer:   confirmer,
		Date:        req.Date,
		PartySize:   req.PartySize,
		RetryWindow: req.RetryWindow,
		Log:         s.Log,
	}

	switch req.Mode {
	case Concurrent:
		res.Confirmed, res.Attempts = engine.BookAllAvailable(ctx, sess, req.DesiredTimes, idx)
	default:
		r, attempts, found := engine.BookFirstAvailable(ctx, sess, req.DesiredTimes, idx)
		res.Attempts = attempts
		if found {
			res.Reservation = &r
		}
	}
	res.FinishedAt = clock.Now()

	fields := map[string]interface{}{
		"event":     "run_done",
		"run_id":    res.RunID,
		"booked":    res.Booked(),
		"attempts":  len(res.Attempts),
		"available": res.Available,
		"took_ms":   res.FinishedAt.Sub(res.WokeAt).Milliseconds(),
	}
	if res.Reservation != nil {
		fields["reservation_time"] = string(res.Reservation.Time)
		fields["reservation_id"] = res.Reservation.ID
	}
	if len(res.Confirmed) > 0 {
		fields["confirmed"] = res.Confirmed
	}
	s.Log.Info(fields)

	// An interrupt after a commit must not drop the record of a charged booking.
	s.publish(context.WithoutCancel(ctx), req, res)
	return res, nil
}

func (s *Swiper) publish(ctx context.Context, req Request, res Result) {
	if s.Recorder != nil {
		if err := s.Recorder.Record(ctx, req, res); err != nil {
			s.Log.Error(map[string]interface{}{"event": "record_failed", "run_id": res.RunID, "error": err})
		}
	}
	if s.Notifier != nil && res.Booked() {
		if err := s.Notifier.Notify(ctx, req, res); err != nil {
			s.Log.Error(map[string]interface{}{"event": "notify_failed", "run_id": res.RunID, "error": err})
		}
	}
}
