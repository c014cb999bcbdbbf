package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/resy-swiper/internal/obs"
	"github.com/example/resy-swiper/internal/resy"
	"github.com/example/resy-swiper/internal/slots"
)

// Service is the two-phase booking API: Details reserves a book token, Book
// commits it. Book returns a reservation id on success; any error is a
// rejection for this request only.
type Service interface {
	Details(ctx context.Context, sess *resy.Session, token slots.Token, date string, partySize int) (bookToken string, paymentMethodID int64, err error)
	Book(ctx context.Context, sess *resy.Session, bookToken string, paymentMethodID int64) (reservationID string, err error)
}

type Status int

const (
	Confirmed Status = iota + 1
	NotAvailable
	Failed
)

func (s Status) String() string {
	switch s {
	case Confirmed:
		return "confirmed"
	case NotAvailable:
		return "not_available"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("unknown status: %d", int(s))
	}
}

// Outcome is the result of one confirmation. Losing a slot to someone else
// is NotAvailable, a value, not an error.
type Outcome struct {
	Status        Status
	ReservationID string
	Err           error
	Commits       int
}

func (o Outcome) Confirmed() bool { return o.Status == Confirmed }

const (
	DefaultRetryWindow = 2 * time.Second
	DefaultMaxCommits  = 10000
)

type Confirmer struct {
	Service Service
	// MaxCommits caps commit requests per confirmation regardless of the window.
	MaxCommits int

	Now     func() time.Time
	Log     *obs.Logger
	Metrics *obs.Metrics
}

func NewConfirmer(svc Service) *Confirmer {
	return &Confirmer{Service: svc, MaxCommits: DefaultMaxCommits}
}

// Confirm books token. The commit step is retried with fresh requests for up
// to retryWindow; the loop stops on the first reservation id and never sends
// another commit after it, since a successful commit charges the card.
func (c *Confirmer) Confirm(ctx context.Context, sess *resy.Session, token slots.Token, date string, partySize int, retryWindow time.Duration) Outcome {
	now := c.Now
	if now == nil {
		now = time.Now
	}
	start := now()
	out := c.confirm(ctx, sess, token, date, partySize, retryWindow, now)
	c.Metrics.Confirm(out.Status.String(), now().Sub(start))

	fields := map[string]interface{}{
		"event":   "confirm_done",
		"token":   string(token),
		"outcome": out.Status.String(),
		"commits": out.Commits,
		"took_ms": now().Sub(start).Milliseconds(),
	}
	switch out.Status {
	case Confirmed:
		fields["reservation_id"] = out.ReservationID
		c.Log.Info(fields)
	case Failed:
		fields["error"] = out.Err
		c.Log.Error(fields)
	default:
		c.Log.Info(fields)
	}
	return out
}

func (c *Confirmer) confirm(ctx context.Context, sess *resy.Session, token slots.Token, date string, partySize int, retryWindow time.Duration, now func() time.Time) Outcome {
	bookToken, paymentID, err := c.Service.Details(ctx, sess, token, date, partySize)
	if err != nil {
		return Outcome{Status: Failed, Err: fmt.Errorf("details: %w", err)}
	}

	maxCommits := c.MaxCommits
	if maxCommits <= 0 {
		maxCommits = DefaultMaxCommits
	}
	until := now().Add(retryWindow)
	var lastErr error
	commits := 0
	for commits < maxCommits {
		commits++
		c.Metrics.Commit()
		id, err := c.Service.Book(ctx, sess, bookToken, paymentID)
		if err == nil && id != "" {
			return Outcome{Status: Confirmed, ReservationID: id, Commits: commits}
		}
		if err == nil {
			err = errors.New("empty reservation id")
		}
		lastErr = err
		c.Log.Debug(map[string]interface{}{
			"event":  "commit_rejected",
			"token":  string(token),
			"commit": commits,
			"error":  err,
		})
		if !now().Before(until) || ctx.Err() != nil {
			break
		}
	}
	return Outcome{Status: NotAvailable, Err: lastErr, Commits: commits}
}
