package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const testCalendar = "BEGIN:VCALENDAR\r\nBEGIN:VEVENT\r\nUID:u1\r\n" +
	"DTSTART:20240115T100000Z\r\nDTEND:20240115T110000Z\r\nSUMMARY:busy\r\n" +
	"END:VEVENT\r\nEND:VCALENDAR\r\n"

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestFetcher_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(testCalendar))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, time.Second, 3, time.Millisecond, testLogger())
	body, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if string(body) != testCalendar {
		t.Fatalf("unexpected body %q", body)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestFetcher_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, time.Second, 3, time.Millisecond, testLogger())
	if _, err := f.Fetch(context.Background()); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls.Load() != 4 {
		t.Fatalf("expected initial attempt plus 3 retries, got %d", calls.Load())
	}
}

func TestMemoryCache_FreshnessWindow(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)}
	c := NewMemoryCache(5*time.Minute, clock.now)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}

	val, fresh, err := c.Get(ctx, "k")
	if err != nil || !fresh || string(val) != "v" {
		t.Fatalf("expected fresh hit, got val=%q fresh=%t err=%v", val, fresh, err)
	}

	clock.advance(5*time.Minute + time.Second)

	val, fresh, err = c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fresh {
		t.Fatal("expected entry to be stale after the freshness window")
	}
	if string(val) != "v" {
		t.Fatalf("stale entry must stay readable, got %q", val)
	}

	if err := c.Invalidate(ctx, "k"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if val, _, _ := c.Get(ctx, "k"); val != nil {
		t.Fatal("expected entry gone after invalidate")
	}
}

type scriptedFetcher struct {
	body  []byte
	err   error
	calls int
}

func (f *scriptedFetcher) Fetch(ctx context.Context) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.body, nil
}

func TestSource_CacheHitSkipsFetch(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	cache := NewMemoryCache(5*time.Minute, clock.now)
	fetcher := &scriptedFetcher{body: []byte(testCalendar)}
	src := NewSource(fetcher, cache, "http://example/feed.ics", testLogger())
	ctx := context.Background()

	events, stale, err := src.Events(ctx)
	if err != nil || stale || len(events) != 1 {
		t.Fatalf("first call: events=%d stale=%t err=%v", len(events), stale, err)
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected 1 fetch, got %d", fetcher.calls)
	}

	if _, _, err := src.Events(ctx); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected cached second call, got %d fetches", fetcher.calls)
	}
}

func TestSource_StaleFallbackOnFetchFailure(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	cache := NewMemoryCache(5*time.Minute, clock.now)
	fetcher := &scriptedFetcher{body: []byte(testCalendar)}
	src := NewSource(fetcher, cache, "http://example/feed.ics", testLogger())
	ctx := context.Background()

	if _, _, err := src.Events(ctx); err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	clock.advance(10 * time.Minute)
	fetcher.err = errors.New("upstream down")

	events, stale, err := src.Events(ctx)
	if err != nil {
		t.Fatalf("expected stale fallback, got %v", err)
	}
	if !stale {
		t.Fatal("expected stale flag set")
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event from stale cache, got %d", len(events))
	}
}

func TestSource_HardFailureWithoutCache(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	cache := NewMemoryCache(5*time.Minute, clock.now)
	fetcher := &scriptedFetcher{err: errors.New("upstream down")}
	src := NewSource(fetcher, cache, "http://example/feed.ics", testLogger())

	_, _, err := src.Events(context.Background())
	if !errors.Is(err, ErrFeedUnavailable) {
		t.Fatalf("expected ErrFeedUnavailable, got %v", err)
	}
}

func TestSource_FreshEventsBypassesCache(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	cache := NewMemoryCache(5*time.Minute, clock.now)
	fetcher := &scriptedFetcher{body: []byte(testCalendar)}
	src := NewSource(fetcher, cache, "http://example/feed.ics", testLogger())
	ctx := context.Background()

	if _, _, err := src.Events(ctx); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	if _, err := src.FreshEvents(ctx); err != nil {
		t.Fatalf("fresh events: %v", err)
	}
	if fetcher.calls != 2 {
		t.Fatalf("expected fresh call to bypass cache, got %d fetches", fetcher.calls)
	}
}
