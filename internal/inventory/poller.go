package inventory

import (
	"context"
	"time"

	"github.com/example/resy-swiper/internal/obs"
	"github.com/example/resy-swiper/internal/resy"
	"github.com/example/resy-swiper/internal/slots"
)

// Querier is a single inventory query. Any error is treated as transient.
type Querier interface {
	Find(ctx context.Context, sess *resy.Session, venueID string, partySize int, date string) ([]slots.Token, error)
}

type Query struct {
	VenueID   string
	PartySize int
	Date      string // YYYY-MM-DD
}

const (
	DefaultTransientRetries = 3
	DefaultMaxPolls         = 200000
)

// Poller busy-polls the inventory around a release, with no pause between
// queries. Slots appear at an unpredictable sub-second offset from the
// advertised release time.
type Poller struct {
	Querier Querier
	// TransientRetries is how many extra immediate tries an erroring query
	// gets before the attempt counts as empty.
	TransientRetries int
	// MaxPolls caps logical attempts in case the deadline clock is wrong.
	MaxPolls int

	Now     func() time.Time
	Log     *obs.Logger
	Metrics *obs.Metrics
}

func NewPoller(q Querier) *Poller {
	return &Poller{
		Querier:          q,
		TransientRetries: DefaultTransientRetries,
		MaxPolls:         DefaultMaxPolls,
	}
}

// FindSlots polls until a non-empty result or until deadline, whichever comes
// first, and returns the last result. Empty is a normal outcome. A deadline
// already in the past still gets exactly one attempt.
func (p *Poller) FindSlots(ctx context.Context, sess *resy.Session, q Query, deadline time.Time) []slots.Token {
	now := p.Now
	if now == nil {
		now = time.Now
	}
	maxPolls := p.MaxPolls
	if maxPolls <= 0 {
		maxPolls = DefaultMaxPolls
	}

	var last []slots.Token
	polls := 0
	for {
		polls++
		last = p.attempt(ctx, sess, q)
		if len(last) > 0 {
			p.Log.Info(map[string]interface{}{
				"event": "slots_found",
				"count": len(last),
				"polls": polls,
			})
			return last
		}
		if !now().Before(deadline) || ctx.Err() != nil {
			break
		}
		if polls >= maxPolls {
			p.Log.Error(map[string]interface{}{
				"event": "poll_cap_reached",
				"polls": polls,
			})
			break
		}
	}
	p.Log.Info(map[string]interface{}{
		"event": "no_slots_before_deadline",
		"polls": polls,
	})
	return last
}

func (p *Poller) attempt(ctx context.Context, sess *resy.Session, q Query) []slots.Token {
	retries := p.TransientRetries
	if retries < 0 {
		retries = 0
	}
	for try := 0; try <= retries; try++ {
		toks, err := p.Querier.Find(ctx, sess, q.VenueID, q.PartySize, q.Date)
		if err == nil {
			if len(toks) == 0 {
				p.Metrics.Poll("empty")
			} else {
				p.Metrics.Poll("slots")
			}
			return toks
		}
		p.Metrics.Poll("error")
		p.Log.Debug(map[string]interface{}{
			"event": "find_failed",
			"try":   try + 1,
			"error": err,
		})
		if ctx.Err() != nil {
			break
		}
	}
	return nil
}
