// Package httputil holds HTTP helpers shared by the fetch collaborators.
package httputil

import (
	"context"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"
)

// RetryBaseDelay is the first backoff after a 429. Tests shrink it.
var RetryBaseDelay = 5 * time.Second

// MaxRetryDelay bounds any single wait, including server-provided ones.
var MaxRetryDelay = 2 * time.Minute

const defaultMaxRetries = 3

// DoWithRetry sends req and retries on 429 Too Many Requests. The wait is the
// Retry-After header when present, otherwise RetryBaseDelay doubled per
// attempt. A maxRetries of 0 uses the default. After the last retry the 429
// response is returned unchanged so the caller can report it.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxRetries int) (*http.Response, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	for attempt := 0; ; attempt++ {
		resp, err := client.Do(req.Clone(ctx))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests || attempt >= maxRetries {
			return resp, nil
		}

		wait := backoff(attempt, resp.Header.Get("Retry-After"))
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		log.Printf("Rate limited by %s, retrying in %v (attempt %d/%d)", req.URL.Host, wait, attempt+1, maxRetries)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func backoff(attempt int, retryAfter string) time.Duration {
	wait := RetryBaseDelay << attempt
	if secs, err := strconv.Atoi(retryAfter); err == nil && secs >= 0 {
		wait = time.Duration(secs) * time.Second
	}
	if wait > MaxRetryDelay {
		wait = MaxRetryDelay
	}
	return wait
}
