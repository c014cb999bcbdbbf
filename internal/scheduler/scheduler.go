package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// Clock abstracts wall time so wake-up math and waiting can be tested.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type SystemClock struct{}

func (SystemClock) Now() time.Time        { return time.Now() }
func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }

// ParseTimeOfDay accepts HH:MM or HH:MM:SS and returns the offset from midnight.
func ParseTimeOfDay(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	layout := "15:04:05"
	if strings.Count(s, ":") == 1 {
		layout = "15:04"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q (want HH:MM or HH:MM:SS)", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second, nil
}

// NextOccurrence is the first instant strictly after now whose wall clock in
// now's location reads target. A target that is now or already passed today
// lands tomorrow.
func NextOccurrence(now time.Time, target string) (time.Time, error) {
	tod, err := ParseTimeOfDay(target)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := now.Date()
	h, mi, s := int(tod/time.Hour), int(tod%time.Hour/time.Minute), int(tod%time.Minute/time.Second)
	at := time.Date(y, m, d, h, mi, s, 0, now.Location())
	if !at.After(now) {
		at = time.Date(y, m, d+1, h, mi, s, 0, now.Location())
	}
	return at, nil
}

// WakeTime is the next occurrence of target minus lead. The lead offsets
// network latency and sleep imprecision so the first inventory request lands
// just before the release instant, not after it.
func WakeTime(now time.Time, target string, lead time.Duration) (time.Time, error) {
	at, err := NextOccurrence(now, target)
	if err != nil {
		return time.Time{}, err
	}
	return at.Add(-lead), nil
}

// SleepUntil blocks until at. Precision is whatever the platform timer gives;
// that imprecision is what the lead offset absorbs. There is no cancellation:
// the wait is the single long suspension of a run and a process exit ends it.
func SleepUntil(c Clock, at time.Time) {
	if c == nil {
		c = SystemClock{}
	}
	for {
		d := at.Sub(c.Now())
		if d <= 0 {
			return
		}
		// wake a little early and re-check so a long sleep does not overshoot
		if d > 50*time.Millisecond {
			d -= 10 * time.Millisecond
		}
		c.Sleep(d)
	}
}
