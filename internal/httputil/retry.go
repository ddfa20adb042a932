// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared by the fetchers.
package httputil

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryBaseDelay is the first backoff delay when a Policy sets none.
// Tests lower it to avoid real sleeps.
var RetryBaseDelay = 1 * time.Second

const (
	// DefaultMaxRetries applies when a Policy leaves MaxRetries at zero.
	DefaultMaxRetries = 2

	// DefaultMaxDelay caps a single backoff wait, Retry-After included.
	DefaultMaxDelay = 30 * time.Second
)

// Policy bounds how a request is retried on throttling and gateway errors.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	// Negative disables retries; zero takes DefaultMaxRetries.
	MaxRetries int

	// BaseDelay starts the exponential backoff. Zero takes RetryBaseDelay.
	BaseDelay time.Duration

	// MaxDelay caps each wait. Zero takes DefaultMaxDelay.
	MaxDelay time.Duration
}

func (p Policy) withDefaults() Policy {
	switch {
	case p.MaxRetries < 0:
		p.MaxRetries = 0
	case p.MaxRetries == 0:
		p.MaxRetries = DefaultMaxRetries
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = RetryBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	return p
}

// Retryable reports whether an HTTP status is worth retrying: 429 and the
// gateway-class 5xx responses.
func Retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Do sends req and resends it while the response status is Retryable and
// the policy allows. Transport errors are returned at once; callers decide
// whether those are worth another attempt. The wait before retry n is
// BaseDelay*2^n, raised to the server's Retry-After when that is longer,
// and never above MaxDelay. When retries run out the last response is
// returned for the caller to inspect.
func Do(ctx context.Context, client *http.Client, req *http.Request, p Policy) (*http.Response, error) {
	p = p.withDefaults()

	delay := p.BaseDelay
	for attempt := 0; ; attempt++ {
		resp, err := client.Do(req.Clone(ctx))
		if err != nil {
			return nil, err
		}
		if !Retryable(resp.StatusCode) || attempt >= p.MaxRetries {
			return resp, nil
		}

		wait := max(delay, retryAfter(resp.Header.Get("Retry-After"), time.Now()))
		wait = min(wait, p.MaxDelay)
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
		delay *= 2
	}
}

// retryAfter parses a Retry-After value given in seconds or as an HTTP date.
func retryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
