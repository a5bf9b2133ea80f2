package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/praxisbook/booking/internal/ics"
)

// EventSource is the cached view of the feed, satisfied by *feed.Source.
type EventSource interface {
	Events(ctx context.Context) (events []ics.Event, stale bool, err error)
}

// ActiveStartsLister yields the start times of active bookings in a range,
// satisfied by the booking repository.
type ActiveStartsLister interface {
	ListActiveStarts(ctx context.Context, from, to time.Time) ([]time.Time, error)
}

// Service combines the feed and the booking store into the slot grid.
type Service struct {
	events   EventSource
	bookings ActiveStartsLister
	log      zerolog.Logger
}

func NewService(events EventSource, bookings ActiveStartsLister, log zerolog.Logger) *Service {
	return &Service{events: events, bookings: bookings, log: log}
}

// Slots returns the slot grid for [from, to).
func (s *Service) Slots(ctx context.Context, from, to time.Time) ([]Slot, error) {
	events, stale, err := s.events.Events(ctx)
	if err != nil {
		return nil, fmt.Errorf("load busy events: %w", err)
	}
	if stale {
		s.log.Warn().Time("from", from).Time("to", to).Msg("slot grid computed from stale feed data")
	}

	booked, err := s.bookings.ListActiveStarts(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load active bookings: %w", err)
	}

	return Generate(from, to, events, booked), nil
}
