package availability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/praxisbook/booking/internal/feed"
	"github.com/praxisbook/booking/internal/ics"
)

type fakeFreshSource struct {
	events []ics.Event
	err    error
	calls  int
}

func (f *fakeFreshSource) FreshEvents(context.Context) ([]ics.Event, error) {
	f.calls++
	return f.events, f.err
}

func TestChecker_FreeAndOccupied(t *testing.T) {
	start := at(monday, 10, 0)
	src := &fakeFreshSource{}
	checker := NewChecker(src)
	ctx := context.Background()

	free, err := checker.SlotStillFree(ctx, start, SlotDuration)
	if err != nil || !free {
		t.Fatalf("expected free slot, got free=%t err=%v", free, err)
	}

	src.events = []ics.Event{{UID: "e", Start: at(monday, 10, 15), End: at(monday, 10, 45)}}
	free, err = checker.SlotStillFree(ctx, start, SlotDuration)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if free {
		t.Fatal("overlapping event must make the slot unavailable")
	}

	// A 60-minute booking is blocked by an event in its second half hour.
	src.events = []ics.Event{{UID: "e2", Start: at(monday, 10, 30), End: at(monday, 11, 0)}}
	free, err = checker.SlotStillFree(ctx, start, time.Hour)
	if err != nil || free {
		t.Fatalf("expected hour-long slot blocked, got free=%t err=%v", free, err)
	}
}

func TestChecker_PropagatesFeedError(t *testing.T) {
	boom := errors.New("feed down")
	checker := NewChecker(&fakeFreshSource{err: boom})

	if _, err := checker.SlotStillFree(context.Background(), at(monday, 10, 0), SlotDuration); !errors.Is(err, boom) {
		t.Fatalf("expected feed error, got %v", err)
	}
}

// A slot that looks free in the cached feed but is taken upstream must be
// rejected: the checker bypasses the freshness window.
func TestChecker_IgnoresStaleCache(t *testing.T) {
	const emptyCalendar = "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"
	const busyCalendar = "BEGIN:VCALENDAR\r\nBEGIN:VEVENT\r\nUID:n1\r\n" +
		"DTSTART:20240115T100000Z\r\nDTEND:20240115T103000Z\r\nSUMMARY:taken\r\n" +
		"END:VEVENT\r\nEND:VCALENDAR\r\n"

	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fetches.Add(1) == 1 {
			w.Write([]byte(emptyCalendar))
			return
		}
		w.Write([]byte(busyCalendar))
	}))
	defer srv.Close()

	cache := feed.NewMemoryCache(5*time.Minute, nil)
	fetcher := feed.NewFetcher(srv.URL, time.Second, 0, time.Millisecond, zerolog.Nop())
	source := feed.NewSource(fetcher, cache, srv.URL, zerolog.Nop())
	ctx := context.Background()

	// Prime the cache with the empty snapshot: the slot displays as free.
	events, stale, err := source.Events(ctx)
	if err != nil || stale || len(events) != 0 {
		t.Fatalf("prime: events=%d stale=%t err=%v", len(events), stale, err)
	}

	slotStart := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	free, err := NewChecker(source).SlotStillFree(ctx, slotStart, SlotDuration)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if free {
		t.Fatal("checker must see the freshly fetched busy event, not the cache")
	}
	if fetches.Load() != 2 {
		t.Fatalf("expected a second upstream fetch, got %d", fetches.Load())
	}

	// The refresh also updated the cache for the follow-up slot listing.
	events, stale, err = source.Events(ctx)
	if err != nil || stale || len(events) != 1 {
		t.Fatalf("follow-up listing: events=%d stale=%t err=%v", len(events), stale, err)
	}
	if fetches.Load() != 2 {
		t.Fatal("follow-up listing should be served from the refreshed cache")
	}
}
