package probe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/resy-swiper/internal/inventory"
	"github.com/example/resy-swiper/internal/resy"
	"github.com/example/resy-swiper/internal/slots"
)

type lockedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *lockedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *lockedClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type countingQuerier struct {
	mu     sync.Mutex
	calls  int
	failAt int // 1-based call number that errors, 0 for none
}

func (q *countingQuerier) Find(ctx context.Context, sess *resy.Session, venueID string, partySize int, date string) ([]slots.Token, error) {
	q.mu.Lock()
	q.calls++
	n := q.calls
	q.mu.Unlock()
	if n == q.failAt {
		return nil, errors.New("502")
	}
	return []slots.Token{"a", "b"}, nil
}

var release = time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

func TestPlanOffsets(t *testing.T) {
	p := DefaultPlan(release)
	offs := p.Offsets()

	require.Len(t, offs, 100)
	assert.Equal(t, -2*time.Second, offs[0])
	assert.Equal(t, -2*time.Second+10*time.Millisecond, offs[1])
	assert.Equal(t, -2*time.Second+990*time.Millisecond, offs[99])
}

func TestPlanValidate(t *testing.T) {
	assert.NoError(t, DefaultPlan(release).Validate())
	assert.Error(t, Plan{Release: release}.Validate())
	assert.Error(t, Plan{Release: release, Launches: 3}.Validate())
	assert.Error(t, Plan{Launches: 1}.Validate())
	assert.NoError(t, Plan{Release: release, Launches: 1}.Validate())
}

func TestRunLaunchesEveryOffsetOnce(t *testing.T) {
	q := &countingQuerier{}
	p := &Prober{Querier: q, Clock: &lockedClock{now: release.Add(-time.Minute)}}
	plan := Plan{Release: release, From: -50 * time.Millisecond, Step: 25 * time.Millisecond, Launches: 5}

	samples, err := p.Run(context.Background(), nil, inventory.Query{VenueID: "1", PartySize: 2, Date: "2024-05-01"}, plan)
	require.NoError(t, err)

	require.Len(t, samples, 5)
	assert.Equal(t, 5, q.calls)
	for i, s := range samples {
		assert.Equal(t, plan.Offsets()[i], s.Offset)
		assert.Equal(t, 2, s.Slots)
		assert.False(t, s.LaunchedAt.Before(release.Add(s.Offset)), "launch %d fired early", i)
	}
}

func TestRunKeepsFailedLaunches(t *testing.T) {
	q := &countingQuerier{failAt: 2}
	p := &Prober{Querier: q, Clock: &lockedClock{now: release}}
	plan := Plan{Release: release, Launches: 3, Step: time.Millisecond}

	samples, err := p.Run(context.Background(), nil, inventory.Query{VenueID: "1"}, plan)
	require.NoError(t, err)

	failed := 0
	for _, s := range samples {
		if s.Err != nil {
			failed++
			assert.Zero(t, s.Slots)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestRunRejectsBadPlan(t *testing.T) {
	p := &Prober{Querier: &countingQuerier{}}
	_, err := p.Run(context.Background(), nil, inventory.Query{}, Plan{})
	assert.Error(t, err)
}

func TestRunCancelledSkipsQueries(t *testing.T) {
	q := &countingQuerier{}
	p := &Prober{Querier: q, Clock: &lockedClock{now: release}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	samples, err := p.Run(ctx, nil, inventory.Query{}, Plan{Release: release, Launches: 2, Step: time.Millisecond})
	require.NoError(t, err)

	assert.Equal(t, 0, q.calls)
	for _, s := range samples {
		assert.ErrorIs(t, s.Err, context.Canceled)
	}
}

func TestFirstWithSlots(t *testing.T) {
	samples := []Sample{
		{Offset: -30 * time.Millisecond, Slots: 0},
		{Offset: -20 * time.Millisecond, Err: errors.New("x")},
		{Offset: 10 * time.Millisecond, Slots: 4},
		{Offset: -10 * time.Millisecond, Slots: 2},
	}
	s, ok := FirstWithSlots(samples)
	require.True(t, ok)
	assert.Equal(t, -10*time.Millisecond, s.Offset)

	_, ok = FirstWithSlots(samples[:2])
	assert.False(t, ok)
}
