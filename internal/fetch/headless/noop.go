package headless

import (
	"context"

	"github.com/mailsift/mailsift/internal/scrape"
)

// Noop is a renderer stand-in for deployments without a browser. It reports
// every render attempt as a render failure so the pipeline falls back to the
// probe response.
type Noop struct{}

// NewNoop returns a renderer that never renders.
func NewNoop() *Noop { return &Noop{} }

// Fetch always fails with a render error.
func (*Noop) Fetch(_ context.Context, request scrape.FetchRequest) (scrape.FetchResponse, error) {
	return scrape.FetchResponse{}, &scrape.FetchError{
		Kind: scrape.FetchRenderTimeout,
		URL:  request.URL,
		Err:  errRenderingDisabled,
	}
}

var errRenderingDisabled = errRendering("headless rendering disabled")

type errRendering string

func (e errRendering) Error() string { return string(e) }
