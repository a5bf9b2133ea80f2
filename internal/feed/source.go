package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/praxisbook/booking/internal/ics"
)

// ErrFeedUnavailable means the feed could not be fetched and no cached copy
// exists to fall back to.
var ErrFeedUnavailable = errors.New("calendar feed unavailable")

// BusyKind names the one feed kind this service consumes. The cache key is
// (kind, resource identity) so additional feeds can share a cache.
const BusyKind = "busy"

type fetchFunc interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// Source serves parsed busy events from the cache inside the freshness
// window, fetching on miss. There is no coalescing of concurrent in-flight
// fetches; redundant fetches within one window return identical snapshots
// and last writer wins.
type Source struct {
	fetcher fetchFunc
	cache   Cache
	key     string
	log     zerolog.Logger
}

func NewSource(fetcher fetchFunc, cache Cache, url string, log zerolog.Logger) *Source {
	return &Source{
		fetcher: fetcher,
		cache:   cache,
		key:     fmt.Sprintf("feed:%s:%s", BusyKind, url),
		log:     log,
	}
}

// Events returns the busy events for the feed. stale reports that the events
// came from an expired cache entry because the upstream fetch failed.
func (s *Source) Events(ctx context.Context) (events []ics.Event, stale bool, err error) {
	cached, fresh, cacheErr := s.cache.Get(ctx, s.key)
	if cacheErr != nil {
		s.log.Warn().Err(cacheErr).Msg("feed cache read failed")
	}
	if cacheErr == nil && fresh {
		return ics.Parse(cached), false, nil
	}

	raw, fetchErr := s.fetcher.Fetch(ctx)
	if fetchErr == nil {
		if err := s.cache.Set(ctx, s.key, raw); err != nil {
			s.log.Warn().Err(err).Msg("feed cache write failed")
		}
		return ics.Parse(raw), false, nil
	}

	if cached != nil {
		s.log.Warn().Err(fetchErr).Msg("serving stale feed data after fetch failure")
		return ics.Parse(cached), true, nil
	}

	return nil, false, fmt.Errorf("%w: %w", ErrFeedUnavailable, fetchErr)
}

// FreshEvents bypasses the freshness window entirely: it always hits the
// upstream feed and refreshes the cache, so a caller listing slots right
// after a conflict check sees the same snapshot. Used by the conflict
// checker to shrink the display-to-commit race.
func (s *Source) FreshEvents(ctx context.Context) ([]ics.Event, error) {
	raw, err := s.fetcher.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFeedUnavailable, err)
	}
	if err := s.cache.Set(ctx, s.key, raw); err != nil {
		s.log.Warn().Err(err).Msg("feed cache write failed")
	}
	return ics.Parse(raw), nil
}
