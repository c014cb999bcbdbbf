package report

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"

	"github.com/example/resy-swiper/internal/history"
	"github.com/example/resy-swiper/internal/probe"
	"github.com/example/resy-swiper/internal/swipe"
)

// isTerminal inspects w for TTY support.
var isTerminal = func(w io.Writer) bool {
	if file, ok := w.(*os.File); ok {
		return term.IsTerminal(int(file.Fd()))
	}
	if fder, ok := w.(interface{ Fd() uintptr }); ok {
		return term.IsTerminal(int(fder.Fd()))
	}
	return false
}

// render writes a bordered table. Colors are only used on a terminal.
func render(w io.Writer, headers []string, rows [][]string) error {
	color := isTerminal(w)
	cell := lipgloss.NewStyle().Padding(0, 1)
	header := cell.Bold(color)
	if color {
		header = header.Foreground(lipgloss.Color("252"))
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
	_, err := fmt.Fprintln(w, t.String())
	return err
}

// WriteResult prints the attempts of a swipe and a one line verdict.
func WriteResult(w io.Writer, res swipe.Result) error {
	rows := make([][]string, 0, len(res.Attempts))
	for _, a := range res.Attempts {
		errText := ""
		if a.Outcome.Err != nil {
			errText = truncate(a.Outcome.Err.Error(), 60)
		}
		rows = append(rows, []string{
			string(a.Time),
			a.Outcome.Status.String(),
			strconv.Itoa(a.Outcome.Commits),
			a.Outcome.ReservationID,
			errText,
		})
	}
	if len(rows) > 0 {
		if err := render(w, []string{"TIME", "OUTCOME", "COMMITS", "RESERVATION", "ERROR"}, rows); err != nil {
			return err
		}
	}

	var verdict string
	switch {
	case res.Reservation != nil:
		verdict = fmt.Sprintf("booked %s (reservation %s)", res.Reservation.Time, res.Reservation.ID)
	case len(res.Confirmed) > 0:
		verdict = fmt.Sprintf("booked %s", joinTimes(res.Confirmed))
	case len(res.Available) == 0:
		verdict = "no slots found"
	default:
		verdict = "no desired time booked; available: " + joinTimes(res.Available)
	}
	_, err := fmt.Fprintf(w, "run %s: %s\n", res.RunID, verdict)
	return err
}

// WriteSamples prints one row per probe launch.
func WriteSamples(w io.Writer, samples []probe.Sample) error {
	rows := make([][]string, 0, len(samples))
	for _, s := range samples {
		errText := ""
		if s.Err != nil {
			errText = truncate(s.Err.Error(), 40)
		}
		rows = append(rows, []string{
			fmt.Sprintf("%+d", s.Offset.Milliseconds()),
			s.LaunchedAt.Format("15:04:05.000"),
			strconv.Itoa(s.Slots),
			strconv.FormatInt(s.Latency.Milliseconds(), 10),
			errText,
		})
	}
	if err := render(w, []string{"OFFSET_MS", "LAUNCHED", "SLOTS", "LATENCY_MS", "ERROR"}, rows); err != nil {
		return err
	}
	if first, ok := probe.FirstWithSlots(samples); ok {
		_, err := fmt.Fprintf(w, "first inventory at %+dms relative to release\n", first.Offset.Milliseconds())
		return err
	}
	_, err := fmt.Fprintln(w, "no launch saw inventory")
	return err
}

// WriteRuns prints recorded runs, newest first.
func WriteRuns(w io.Writer, runs []history.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "no runs recorded")
		return err
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		booked := "-"
		switch {
		case r.Reservation != nil:
			booked = *r.Reservation
		case len(r.Confirmed) > 0:
			booked = strings.Join(r.Confirmed, ",")
		}
		rows = append(rows, []string{
			r.CreatedAt.Local().Format(time.DateTime),
			r.ID,
			r.VenueID,
			r.Date.Format(time.DateOnly),
			strconv.Itoa(r.PartySize),
			r.Mode,
			booked,
		})
	}
	return render(w, []string{"WHEN", "RUN", "VENUE", "DATE", "PARTY", "MODE", "BOOKED"}, rows)
}

// WriteAttempts prints the stored attempts of one run.
func WriteAttempts(w io.Writer, attempts []history.Attempt) error {
	if len(attempts) == 0 {
		_, err := fmt.Fprintln(w, "no attempts recorded")
		return err
	}
	rows := make([][]string, 0, len(attempts))
	for _, a := range attempts {
		rows = append(rows, []string{
			a.Time,
			a.Outcome,
			strconv.Itoa(a.Commits),
			deref(a.ReservationID),
			truncate(deref(a.Error), 60),
		})
	}
	return render(w, []string{"TIME", "OUTCOME", "COMMITS", "RESERVATION", "ERROR"}, rows)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func joinTimes[T ~string](in []T) string {
	parts := make([]string, len(in))
	for i, t := range in {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
