package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Fetcher retrieves the raw ICS document over HTTP. Each attempt is bounded
// by its own timeout; failed attempts are retried with linear backoff.
type Fetcher struct {
	url     string
	client  *http.Client
	retries int
	backoff time.Duration
	log     zerolog.Logger
}

func NewFetcher(url string, timeout time.Duration, retries int, backoff time.Duration, log zerolog.Logger) *Fetcher {
	return &Fetcher{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		retries: retries,
		backoff: backoff,
		log:     log,
	}
}

func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * f.backoff
			f.log.Warn().Err(lastErr).Int("attempt", attempt).Dur("backoff", wait).Msg("retrying feed fetch")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		body, err := f.fetchOnce(ctx)
		if err == nil {
			return body, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("feed fetch exhausted %d attempts: %w", f.retries+1, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("Accept", "text/calendar")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}

	return body, nil
}
