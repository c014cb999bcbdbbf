package notify

import (
	"github.com/example/resy-swiper/internal/swipe"
)

const TopicReservationSwiped = "reservation.swiped"

// SwipedMessage is published once per run that booked at least one slot.
type SwipedMessage struct {
	RunID        string       `json:"run_id"`
	VenueID      string       `json:"venue_id"`
	Date         string       `json:"date"`
	PartySize    int          `json:"party_size"`
	Mode         string       `json:"mode"`
	Reservations []BookedSlot `json:"reservations"`
	SwipedAt     int64        `json:"swiped_at"` // Unix timestamp
}

type BookedSlot struct {
	Time          string `json:"time"`
	ReservationID string `json:"reservation_id"`
}

func NewSwipedMessage(req swipe.Request, res swipe.Result) SwipedMessage {
	msg := SwipedMessage{
		RunID:        res.RunID,
		VenueID:      req.VenueID,
		Date:         req.Date,
		PartySize:    req.PartySize,
		Mode:         string(res.Mode),
		Reservations: []BookedSlot{},
		SwipedAt:     res.FinishedAt.Unix(),
	}
	for _, a := range res.Attempts {
		if a.Outcome.Confirmed() {
			msg.Reservations = append(msg.Reservations, BookedSlot{
				Time:          string(a.Time),
				ReservationID: a.Outcome.ReservationID,
			})
		}
	}
	return msg
}
