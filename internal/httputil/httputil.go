// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared across acquisition strategies.
package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// RetryDelay is the fixed pause between attempts in GetWithRetry. Tests
// override this to avoid real sleeps.
var RetryDelay = 20 * time.Second

// NewClient returns an HTTP client with the given timeout. When proxyURL is
// non-nil all requests are routed through it; a nil proxyURL means direct
// egress.
func NewClient(timeout time.Duration, proxyURL *url.URL) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyURL != nil {
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// NewRequest builds a GET request carrying the harvester User-Agent.
func NewRequest(ctx context.Context, rawURL, userAgent string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	return req, nil
}

// GetWithRetry executes an HTTP request until an attempt yields an
// acceptable body, sleeping RetryDelay between attempts. An attempt fails
// on a transport error, a non-2xx status, or a non-nil error from check
// (when check is non-nil), and the body of a failed attempt is never
// returned. It makes at most maxAttempts calls (minimum one); after
// exhausting them the last attempt's error is returned. The pause is
// context-aware; if the context is cancelled during it the function
// returns ctx.Err().
//
// This is the bounded same-source retry used by the rate-limited publisher
// strategy. Falling through to a different source is a separate mechanism
// and must not go through here.
func GetWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxAttempts int, check func([]byte) error) ([]byte, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if werr := Wait(ctx, RetryDelay); werr != nil {
				return nil, werr
			}
		}

		body, err := doOnce(ctx, client, req, check)
		if err == nil {
			return body, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func doOnce(ctx context.Context, client *http.Client, req *http.Request, check func([]byte) error) ([]byte, error) {
	resp, err := client.Do(req.Clone(ctx))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, req.URL)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", req.URL, err)
	}
	if check != nil {
		if err := check(body); err != nil {
			return nil, err
		}
	}
	return body, nil
}

// Wait sleeps for d or until the context is cancelled, whichever comes
// first. It returns ctx.Err() when the context won.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
