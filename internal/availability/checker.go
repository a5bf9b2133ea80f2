package availability

import (
	"context"
	"time"

	"github.com/praxisbook/booking/internal/ics"
)

// FreshEventSource is the cache-bypassing view of the feed, satisfied by
// *feed.Source.
type FreshEventSource interface {
	FreshEvents(ctx context.Context) ([]ics.Event, error)
}

// Checker re-verifies a displayed slot immediately before commit. It forces
// a fresh feed fetch to shrink the window between slot display and booking
// submission. Local bookings are not re-checked here; the store's uniqueness
// constraint at insert time is the final arbiter for those.
type Checker struct {
	source FreshEventSource
}

func NewChecker(source FreshEventSource) *Checker {
	return &Checker{source: source}
}

// SlotStillFree reports whether [start, start+duration) is clear of busy
// events in a freshly fetched feed snapshot.
func (c *Checker) SlotStillFree(ctx context.Context, start time.Time, duration time.Duration) (bool, error) {
	events, err := c.source.FreshEvents(ctx)
	if err != nil {
		return false, err
	}
	return !Overlaps(start, start.Add(duration), events), nil
}
