package swipe

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/resy-swiper/internal/booking"
	"github.com/example/resy-swiper/internal/obs"
	"github.com/example/resy-swiper/internal/resy"
	"github.com/example/resy-swiper/internal/slots"
)

// Confirmer runs one two-phase booking. *booking.Confirmer implements it.
type Confirmer interface {
	Confirm(ctx context.Context, sess *resy.Session, token slots.Token, date string, partySize int, retryWindow time.Duration) booking.Outcome
}

// Attempt is one confirmation task's record. Its Outcome is set once, by the
// task that owns it.
type Attempt struct {
	Time    slots.TimeKey
	Token   slots.Token
	Outcome booking.Outcome
}

type Reservation struct {
	Time  slots.TimeKey
	Token slots.Token
	ID    string
}

// Engine dispatches confirmations for one acquisition round.
type Engine struct {
	Confirmer   Confirmer
	Date        string
	PartySize   int
	RetryWindow time.Duration
	Log         *obs.Logger
}

// plan resolves desired times against idx in preference order. A time listed
// twice is planned once so the same slot is never charged twice in a round.
func plan(desired []slots.TimeKey, idx slots.Index) []Attempt {
	seen := make(map[slots.TimeKey]bool, len(desired))
	var out []Attempt
	for _, t := range desired {
		if seen[t] {
			continue
		}
		seen[t] = true
		if tok, ok := idx.Lookup(t); ok {
			out = append(out, Attempt{Time: t, Token: tok})
		}
	}
	return out
}

// BookFirstAvailable walks desired in order and confirms the first time the
// index has. On success it stops; on NotAvailable or Failed it moves on to
// the next preferred time. found is false when nothing could be booked,
// including when no desired time was in the index (then no confirmation runs).
func (e *Engine) BookFirstAvailable(ctx context.Context, sess *resy.Session, desired []slots.TimeKey, idx slots.Index) (res Reservation, attempts []Attempt, found bool) {
	for _, a := range plan(desired, idx) {
		a.Outcome = e.confirm(ctx, sess, a)
		attempts = append(attempts, a)
		if a.Outcome.Confirmed() {
			return Reservation{Time: a.Time, Token: a.Token, ID: a.Outcome.ReservationID}, attempts, true
		}
	}
	return Reservation{}, attempts, false
}

// BookAllAvailable races one confirmation per desired time present in idx and
// waits for every task. Tasks are independent: one failing or panicking does
// not cancel or affect the others. It returns the confirmed times in
// preference order; the caller may end up holding several reservations.
func (e *Engine) BookAllAvailable(ctx context.Context, sess *resy.Session, desired []slots.TimeKey, idx slots.Index) ([]slots.TimeKey, []Attempt) {
	attempts := plan(desired, idx)
	if len(attempts) == 0 {
		return nil, nil
	}

	e.Log.Info(map[string]interface{}{
		"event": "dispatch",
		"tasks": len(attempts),
	})

	// no WithContext: a failed task must not cancel its siblings
	var g errgroup.Group
	g.SetLimit(len(attempts))
	for i := range attempts {
		i := i
		g.Go(func() error {
			attempts[i].Outcome = e.confirm(ctx, sess, attempts[i])
			return nil
		})
	}
	_ = g.Wait()

	var confirmed []slots.TimeKey
	for _, a := range attempts {
		if a.Outcome.Confirmed() {
			confirmed = append(confirmed, a.Time)
		}
	}
	return confirmed, attempts
}

func (e *Engine) confirm(ctx context.Context, sess *resy.Session, a Attempt) (out booking.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = booking.Outcome{Status: booking.Failed, Err: fmt.Errorf("confirm %s panicked: %v", a.Time, r)}
			e.Log.Error(map[string]interface{}{
				"event": "confirm_panic",
				"time":  string(a.Time),
				"error": out.Err,
			})
		}
	}()
	e.Log.Info(map[string]interface{}{
		"event": "confirm_start",
		"time":  string(a.Time),
	})
	return e.Confirmer.Confirm(ctx, sess, a.Token, e.Date, e.PartySize, e.RetryWindow)
}
