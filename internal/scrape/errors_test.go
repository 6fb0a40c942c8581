package scrape

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyFetchError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want FetchErrorKind
	}{
		{"dns", &net.DNSError{Err: "no such host", Name: "a.test"}, FetchDNSFailure},
		{"refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), FetchConnectionRefused},
		{"net timeout", timeoutErr{}, FetchTimeout},
		{"deadline", context.DeadlineExceeded, FetchTimeout},
		{"unknown transport", errors.New("broken pipe"), FetchConnectionRefused},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fe := ClassifyFetchError("https://a.test", tc.err)
			require.Equal(t, tc.want, fe.Kind)
			require.Equal(t, "https://a.test", fe.URL)
		})
	}
}

func TestClassifyFetchErrorPassthrough(t *testing.T) {
	t.Parallel()

	orig := &FetchError{Kind: FetchRenderTimeout, URL: "https://a.test"}
	got := ClassifyFetchError("https://other.test", fmt.Errorf("wrapped: %w", orig))
	require.Same(t, orig, got)
}

func TestFetchErrorRetryable(t *testing.T) {
	t.Parallel()

	require.True(t, (&FetchError{Kind: FetchConnectionRefused}).Retryable())
	require.True(t, (&FetchError{Kind: FetchDNSFailure}).Retryable())
	require.False(t, (&FetchError{Kind: FetchHTTPError, Status: 404}).Retryable())
	require.False(t, (&FetchError{Kind: FetchTimeout}).Retryable())
}

func TestJobStatusTerminal(t *testing.T) {
	t.Parallel()

	require.True(t, JobStatusFinished.Terminal())
	require.True(t, JobStatusFailed.Terminal())
	require.True(t, JobStatusCancelled.Terminal())
	require.False(t, JobStatusQueued.Terminal())
	require.False(t, JobStatusRunning.Terminal())
}
