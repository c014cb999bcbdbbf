package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/resy-swiper/internal/db"
	"github.com/example/resy-swiper/internal/slots"
	"github.com/example/resy-swiper/internal/swipe"
)

// Run is one recorded swipe.
type Run struct {
	ID           string
	VenueID      string
	PartySize    int
	Date         time.Time
	DesiredTimes []string
	Mode         string

	Booked      bool
	Reservation *string // "HH:MM:SS id" for a sequential booking
	Confirmed   []string
	Available   []string

	WokeAt     time.Time
	FinishedAt time.Time
	CreatedAt  time.Time

	Attempts []Attempt
}

type Attempt struct {
	Time          string
	Token         string
	Outcome       string
	ReservationID *string
	Commits       int
	Error         *string
}

// FromResult flattens a finished swipe into the rows Record writes.
func FromResult(req swipe.Request, res swipe.Result) (Run, error) {
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return Run{}, fmt.Errorf("invalid date %q", req.Date)
	}
	run := Run{
		ID:           res.RunID,
		VenueID:      req.VenueID,
		PartySize:    req.PartySize,
		Date:         date,
		DesiredTimes: timeStrings(req.DesiredTimes),
		Mode:         string(res.Mode),
		Booked:       res.Booked(),
		Confirmed:    timeStrings(res.Confirmed),
		Available:    timeStrings(res.Available),
		WokeAt:       res.WokeAt,
		FinishedAt:   res.FinishedAt,
	}
	if r := res.Reservation; r != nil {
		s := string(r.Time) + " " + r.ID
		run.Reservation = &s
	}
	for _, a := range res.Attempts {
		row := Attempt{
			Time:    string(a.Time),
			Token:   string(a.Token),
			Outcome: a.Outcome.Status.String(),
			Commits: a.Outcome.Commits,
		}
		if a.Outcome.ReservationID != "" {
			id := a.Outcome.ReservationID
			row.ReservationID = &id
		}
		if a.Outcome.Err != nil {
			msg := a.Outcome.Err.Error()
			row.Error = &msg
		}
		run.Attempts = append(run.Attempts, row)
	}
	return run, nil
}

func timeStrings(in []slots.TimeKey) []string {
	out := make([]string, 0, len(in))
	for _, t := range in {
		out = append(out, string(t))
	}
	return out
}

func parseTimes(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinTimes(times []string) string {
	return strings.Join(times, ",")
}

// store is the part of *db.DB the repo needs.
type store interface {
	QueryRow(ctx context.Context, sql string, args ...any) db.Row
	Query(ctx context.Context, sql string, args ...any) (db.Rows, error)
	InTx(ctx context.Context, fn func(tx db.Execer) error) error
}

type Repo struct{ db store }

func NewRepo(d *db.DB) *Repo { return &Repo{db: d} }

// Record writes the run and its attempts in one transaction. It satisfies
// swipe.Recorder.
func (r *Repo) Record(ctx context.Context, req swipe.Request, res swipe.Result) error {
	run, err := FromResult(req, res)
	if err != nil {
		return err
	}
	return r.db.InTx(ctx, func(tx db.Execer) error {
		if err := tx.Exec(ctx, `
INSERT INTO swipe_runs(id,venue_id,party_size,res_date,desired_times,mode,booked,reservation,confirmed,available,woke_at,finished_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			run.ID, run.VenueID, run.PartySize, run.Date, joinTimes(run.DesiredTimes), run.Mode, run.Booked, run.Reservation,
			joinTimes(run.Confirmed), joinTimes(run.Available), run.WokeAt, run.FinishedAt,
		); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		for _, a := range run.Attempts {
			if err := tx.Exec(ctx, `
INSERT INTO swipe_attempts(run_id,slot_time,config_token,outcome,reservation_id,commits,error)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				run.ID, a.Time, a.Token, a.Outcome, a.ReservationID, a.Commits, a.Error,
			); err != nil {
				return fmt.Errorf("insert attempt: %w", err)
			}
		}
		return nil
	})
}

// ListRecent returns the newest runs first, without attempts.
func (r *Repo) ListRecent(ctx context.Context, limit int) ([]Run, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := r.db.Query(ctx, `
SELECT id::text,venue_id,party_size,res_date,desired_times,mode,booked,reservation,confirmed,available,woke_at,finished_at,created_at
FROM swipe_runs
ORDER BY created_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var run Run
		var desired, confirmed, available string
		if err := rows.Scan(
			&run.ID, &run.VenueID, &run.PartySize, &run.Date, &desired, &run.Mode, &run.Booked, &run.Reservation,
			&confirmed, &available, &run.WokeAt, &run.FinishedAt, &run.CreatedAt,
		); err != nil {
			return nil, err
		}
		run.DesiredTimes = parseTimes(desired)
		run.Confirmed = parseTimes(confirmed)
		run.Available = parseTimes(available)
		out = append(out, run)
	}
	return out, rows.Err()
}

// Attempts loads the attempts of one run in insertion order. An unknown run
// yields db.ErrNotFound.
func (r *Repo) Attempts(ctx context.Context, runID string) ([]Attempt, error) {
	id, err := uuid.Parse(runID)
	if err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", runID, err)
	}
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM swipe_runs WHERE id=$1)`, id.String()).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("run %s: %w", id, db.ErrNotFound)
	}

	rows, err := r.db.Query(ctx, `
SELECT slot_time,config_token,outcome,reservation_id,commits,error
FROM swipe_attempts
WHERE run_id=$1
ORDER BY id ASC`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.Time, &a.Token, &a.Outcome, &a.ReservationID, &a.Commits, &a.Error); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
