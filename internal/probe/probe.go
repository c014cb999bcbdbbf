package probe

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/resy-swiper/internal/inventory"
	"github.com/example/resy-swiper/internal/obs"
	"github.com/example/resy-swiper/internal/resy"
	"github.com/example/resy-swiper/internal/scheduler"
)

// Plan is a ladder of launch instants around a release: Launches queries,
// the first at Release+From, each next one Step later.
type Plan struct {
	Release  time.Time
	From     time.Duration
	Step     time.Duration
	Launches int
}

// DefaultPlan launches 100 queries 10ms apart, starting two seconds before
// release.
func DefaultPlan(release time.Time) Plan {
	return Plan{Release: release, From: -2 * time.Second, Step: 10 * time.Millisecond, Launches: 100}
}

func (p Plan) Validate() error {
	if p.Launches < 1 {
		return fmt.Errorf("launches must be >= 1")
	}
	if p.Launches > 1 && p.Step <= 0 {
		return fmt.Errorf("step must be > 0")
	}
	if p.Release.IsZero() {
		return fmt.Errorf("release time required")
	}
	return nil
}

func (p Plan) Offsets() []time.Duration {
	out := make([]time.Duration, p.Launches)
	for i := range out {
		out[i] = p.From + time.Duration(i)*p.Step
	}
	return out
}

// Sample is what one launch saw.
type Sample struct {
	Offset     time.Duration // launch instant relative to release
	LaunchedAt time.Time
	Slots      int
	Latency    time.Duration
	Err        error
}

type Prober struct {
	Querier inventory.Querier
	Clock   scheduler.Clock
	Log     *obs.Logger
	Metrics *obs.Metrics
}

// Run fires one inventory query at every instant of plan, each from its own
// goroutine, and returns the samples in launch order. A failed query is kept
// as a sample with Err set.
func (p *Prober) Run(ctx context.Context, sess *resy.Session, q inventory.Query, plan Plan) ([]Sample, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	clock := p.Clock
	if clock == nil {
		clock = scheduler.SystemClock{}
	}

	offsets := plan.Offsets()
	samples := make([]Sample, len(offsets))
	var g errgroup.Group
	for i, off := range offsets {
		i, off := i, off
		g.Go(func() error {
			samples[i] = p.launch(ctx, clock, sess, q, plan.Release.Add(off))
			samples[i].Offset = off
			return nil
		})
	}
	_ = g.Wait()

	first, ok := FirstWithSlots(samples)
	fields := map[string]interface{}{
		"event":    "probe_done",
		"launches": len(samples),
		"venue":    q.VenueID,
	}
	if ok {
		fields["first_slots_offset_ms"] = first.Offset.Milliseconds()
	}
	p.Log.Info(fields)
	return samples, nil
}

func (p *Prober) launch(ctx context.Context, clock scheduler.Clock, sess *resy.Session, q inventory.Query, at time.Time) Sample {
	scheduler.SleepUntil(clock, at)
	if err := ctx.Err(); err != nil {
		return Sample{LaunchedAt: clock.Now(), Err: err}
	}
	start := clock.Now()
	tokens, err := p.Querier.Find(ctx, sess, q.VenueID, q.PartySize, q.Date)
	s := Sample{LaunchedAt: start, Slots: len(tokens), Latency: clock.Now().Sub(start), Err: err}
	switch {
	case err != nil:
		p.Metrics.Poll("error")
		p.Log.Error(map[string]interface{}{"event": "probe_query_failed", "at": start.Format(time.RFC3339Nano), "error": err})
	case len(tokens) == 0:
		p.Metrics.Poll("empty")
	default:
		p.Metrics.Poll("slots")
	}
	return s
}

// FirstWithSlots returns the earliest launch that saw any inventory.
func FirstWithSlots(samples []Sample) (Sample, bool) {
	var best Sample
	found := false
	for _, s := range samples {
		if s.Err != nil || s.Slots == 0 {
			continue
		}
		if !found || s.Offset < best.Offset {
			best, found = s, true
		}
	}
	return best, found
}
