package inventory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/example/resy-swiper/internal/obs"
	"github.com/example/resy-swiper/internal/resy"
	"github.com/example/resy-swiper/internal/slots"
)

// scriptedQuerier plays back responses in order, repeating the last one.
type scriptedQuerier struct {
	calls int32
	steps []step
}

type step struct {
	toks []slots.Token
	err  error
}

func (s *scriptedQuerier) Find(ctx context.Context, sess *resy.Session, venueID string, partySize int, date string) ([]slots.Token, error) {
	n := int(atomic.AddInt32(&s.calls, 1)) - 1
	if n >= len(s.steps) {
		n = len(s.steps) - 1
	}
	return s.steps[n].toks, s.steps[n].err
}

var (
	q   = Query{VenueID: "1843946", PartySize: 2, Date: "2022-12-18"}
	tok = slots.Token("rgs://resy/2/1843946/2/2022-12-18/2022-12-18/20:00:00/2/Indoor")
)

func TestFindSlotsPastDeadlineSingleAttempt(t *testing.T) {
	qr := &scriptedQuerier{steps: []step{{toks: nil}}}
	p := NewPoller(qr)

	got := p.FindSlots(context.Background(), nil, q, time.Now().Add(-time.Second))

	assert.Empty(t, got)
	assert.Equal(t, int32(1), qr.calls)
}

func TestFindSlotsPastDeadlineReturnsWhatTheAttemptYields(t *testing.T) {
	qr := &scriptedQuerier{steps: []step{{toks: []slots.Token{tok}}}}
	p := NewPoller(qr)

	got := p.FindSlots(context.Background(), nil, q, time.Now().Add(-time.Second))

	assert.Equal(t, []slots.Token{tok}, got)
	assert.Equal(t, int32(1), qr.calls)
}

func TestFindSlotsPollsUntilNonEmpty(t *testing.T) {
	qr := &scriptedQuerier{steps: []step{{}, {}, {}, {toks: []slots.Token{tok}}}}
	p := NewPoller(qr)

	got := p.FindSlots(context.Background(), nil, q, time.Now().Add(time.Minute))

	assert.Equal(t, []slots.Token{tok}, got)
	assert.Equal(t, int32(4), qr.calls)
}

func TestFindSlotsTransientErrorsRetriedWithinAttempt(t *testing.T) {
	boom := errors.New("connection reset")
	qr := &scriptedQuerier{steps: []step{{err: boom}, {err: boom}, {toks: []slots.Token{tok}}}}
	reg := prometheus.NewRegistry()
	p := NewPoller(qr)
	p.Metrics = obs.NewMetrics(reg)

	got := p.FindSlots(context.Background(), nil, q, time.Now().Add(-time.Second))

	assert.Equal(t, []slots.Token{tok}, got)
	assert.Equal(t, int32(3), qr.calls)
	assert.Equal(t, 2.0, testutil.ToFloat64(p.Metrics.PollTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Metrics.PollTotal.WithLabelValues("slots")))
}

func TestFindSlotsErrorBoundTreatsAttemptAsEmpty(t *testing.T) {
	qr := &scriptedQuerier{steps: []step{{err: errors.New("502")}}}
	p := NewPoller(qr)

	got := p.FindSlots(context.Background(), nil, q, time.Now().Add(-time.Second))

	assert.Empty(t, got)
	assert.Equal(t, int32(1+DefaultTransientRetries), qr.calls)
}

func TestFindSlotsStopsAtDeadline(t *testing.T) {
	qr := &scriptedQuerier{steps: []step{{}}}
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	var ticks int32
	p := NewPoller(qr)
	p.Now = func() time.Time {
		n := atomic.AddInt32(&ticks, 1)
		return base.Add(time.Duration(n) * 100 * time.Millisecond)
	}

	got := p.FindSlots(context.Background(), nil, q, base.Add(time.Second))

	assert.Empty(t, got)
	assert.Equal(t, int32(10), qr.calls)
}

func TestFindSlotsSpinCap(t *testing.T) {
	qr := &scriptedQuerier{steps: []step{{}}}
	p := NewPoller(qr)
	p.MaxPolls = 25

	got := p.FindSlots(context.Background(), nil, q, time.Now().Add(time.Hour))

	assert.Empty(t, got)
	assert.Equal(t, int32(25), qr.calls)
}

func TestFindSlotsContextCancelled(t *testing.T) {
	qr := &scriptedQuerier{steps: []step{{}}}
	p := NewPoller(qr)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := p.FindSlots(ctx, nil, q, time.Now().Add(time.Hour))

	assert.Empty(t, got)
	assert.Equal(t, int32(1), qr.calls)
}
