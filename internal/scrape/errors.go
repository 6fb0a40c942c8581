package scrape

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
)

// FetchErrorKind partitions terminal fetch failures. Every kind is
// recoverable at the batch level: the offending URL records an empty result
// and the batch continues.
type FetchErrorKind string

// Fetch failure kinds.
const (
	FetchTimeout           FetchErrorKind = "timeout"
	FetchConnectionRefused FetchErrorKind = "connection_refused"
	FetchDNSFailure        FetchErrorKind = "dns_failure"
	FetchHTTPError         FetchErrorKind = "http_error"
	FetchRenderTimeout     FetchErrorKind = "render_timeout"
)

// FetchError is the terminal failure for a single unit of work.
type FetchError struct {
	Kind   FetchErrorKind
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	switch {
	case e.Kind == FetchHTTPError:
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether switching scheme (https -> http) is worth a
// second attempt. DNS and connection failures qualify; an HTTP-level answer
// means the host was reachable.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case FetchConnectionRefused, FetchDNSFailure:
		return true
	default:
		return false
	}
}

// ClassifyFetchError maps a transport error onto the failure taxonomy. An
// already-classified error passes through unchanged.
func ClassifyFetchError(url string, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}

	kind := classifyKind(err)
	return &FetchError{Kind: kind, URL: url, Err: err}
}

func classifyKind(err error) FetchErrorKind {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return FetchDNSFailure
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return FetchConnectionRefused
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FetchTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return FetchTimeout
	}
	return FetchConnectionRefused
}
