package availability

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNoSlotsInRange means no adjacent pair exists within the full search
// horizon; the search does not widen further.
var ErrNoSlotsInRange = errors.New("no slots found in range")

// searchWindows are the widening stages in days. Each window starts where
// the previous one ended, so the full horizon is 134 days.
var searchWindows = []int{14, 30, 90}

// SlotLister is satisfied by *Service.
type SlotLister interface {
	Slots(ctx context.Context, from, to time.Time) ([]Slot, error)
}

type searchResult struct {
	start time.Time
	err   error
}

// Search finds the earliest pair of adjacent open slots for appointment
// kinds that need a full hour (two consecutive half-hour slots). Window
// fetches are strictly sequential, and each (reason) runs at most once:
// repeat calls return the memoized outcome until Reset, so UI re-renders
// cannot trigger repeated multi-window scans.
type Search struct {
	lister SlotLister

	mu      sync.Mutex
	results map[string]searchResult
}

func NewSearch(lister SlotLister) *Search {
	return &Search{
		lister:  lister,
		results: make(map[string]searchResult),
	}
}

// FindAdjacentPair returns the start of the earliest slot whose immediate
// half-hour successor is also available, scanning widening windows from
// `from` until found or the horizon is exhausted.
func (s *Search) FindAdjacentPair(ctx context.Context, reason string, from time.Time) (time.Time, error) {
	s.mu.Lock()
	if res, ok := s.results[reason]; ok {
		s.mu.Unlock()
		return res.start, res.err
	}
	s.mu.Unlock()

	start, err := s.scan(ctx, from)
	if err != nil && !errors.Is(err, ErrNoSlotsInRange) {
		// Transient failures are not memoized; the next call retries.
		return time.Time{}, err
	}

	s.mu.Lock()
	s.results[reason] = searchResult{start: start, err: err}
	s.mu.Unlock()

	return start, err
}

// Reset clears the memoized outcome for a reason, e.g. when the user picks a
// different appointment kind.
func (s *Search) Reset(reason string) {
	s.mu.Lock()
	delete(s.results, reason)
	s.mu.Unlock()
}

func (s *Search) scan(ctx context.Context, from time.Time) (time.Time, error) {
	cursor := from
	for _, days := range searchWindows {
		to := cursor.AddDate(0, 0, days)

		slots, err := s.lister.Slots(ctx, cursor, to)
		if err != nil {
			return time.Time{}, err
		}

		if start, ok := earliestAdjacentPair(slots); ok {
			return start, nil
		}
		cursor = to
	}
	return time.Time{}, ErrNoSlotsInRange
}

func earliestAdjacentPair(slots []Slot) (time.Time, bool) {
	open := make(map[int64]struct{}, len(slots))
	for _, sl := range slots {
		if sl.Available {
			open[sl.Start.Unix()] = struct{}{}
		}
	}

	sorted := make([]Slot, len(slots))
	copy(sorted, slots)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	for _, sl := range sorted {
		if !sl.Available {
			continue
		}
		if _, ok := open[sl.Start.Add(SlotDuration).Unix()]; ok {
			return sl.Start, true
		}
	}
	return time.Time{}, false
}
