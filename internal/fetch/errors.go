// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// Error classes. Fetchers wrap their errors with one of these so the
// orchestrator can decide between retrying, falling back, and giving up.
var (
	// ErrTransient covers timeouts, 5xx and 429 responses, and dropped
	// connections. Retried with backoff.
	ErrTransient = errors.New("transient fetch error")

	// ErrMalformed covers unparseable or empty payloads. Never retried.
	ErrMalformed = errors.New("malformed response")

	// ErrUnsupported means the fetcher cannot serve this call shape, for
	// example a batch call on a single-target fetcher.
	ErrUnsupported = errors.New("unsupported by fetcher")
)

func transient(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTransient, fmt.Sprintf(format, args...))
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// Classify maps err to ErrTransient, ErrMalformed or ErrUnsupported.
// It returns nil for errors outside the taxonomy, which are treated as
// permanent. Caller cancellation is never transient.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrMalformed):
		return ErrMalformed
	case errors.Is(err, ErrUnsupported):
		return ErrUnsupported
	case errors.Is(err, ErrTransient):
		return ErrTransient
	case errors.Is(err, context.Canceled):
		return nil
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF):
		return ErrTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTransient
	}
	return nil
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return Classify(err) == ErrTransient
}
