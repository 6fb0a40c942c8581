package fetch

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mailsift/mailsift/internal/scrape"
)

type stubFetcher struct {
	responses map[string]scrape.FetchResponse
	errs      map[string]error
	calls     []string
}

func (s *stubFetcher) Fetch(_ context.Context, req scrape.FetchRequest) (scrape.FetchResponse, error) {
	s.calls = append(s.calls, req.URL)
	if err, ok := s.errs[req.URL]; ok {
		return scrape.FetchResponse{}, err
	}
	resp, ok := s.responses[req.URL]
	if !ok {
		return scrape.FetchResponse{}, errors.New("unexpected url " + req.URL)
	}
	return resp, nil
}

type stubDetector struct{ render bool }

func (d stubDetector) ShouldRender(scrape.FetchResponse) bool { return d.render }

func okResponse(url string) scrape.FetchResponse {
	return scrape.FetchResponse{
		URL:        url,
		StatusCode: http.StatusOK,
		Body:       []byte("<html><body>hello there</body></html>"),
	}
}

func TestPipelineFastPathOnly(t *testing.T) {
	t.Parallel()

	probe := &stubFetcher{responses: map[string]scrape.FetchResponse{
		"https://example.com": okResponse("https://example.com"),
	}}
	renderer := &stubFetcher{}
	p := NewPipeline(probe, renderer, stubDetector{render: false}, nil)

	resp, err := p.Fetch(context.Background(), "example.com")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, renderer.calls)
}

func TestPipelinePromotesToRender(t *testing.T) {
	t.Parallel()

	probe := &stubFetcher{responses: map[string]scrape.FetchResponse{
		"https://spa.example": {URL: "https://spa.example", StatusCode: http.StatusOK, Body: []byte(`<div id="root"></div>`)},
	}}
	renderer := &stubFetcher{responses: map[string]scrape.FetchResponse{
		"https://spa.example": {
			URL:        "https://spa.example",
			StatusCode: http.StatusOK,
			Body:       []byte("<html><body>rendered@example.com</body></html>"),
			Rendered:   true,
		},
	}}
	p := NewPipeline(probe, renderer, stubDetector{render: true}, nil)

	resp, err := p.Fetch(context.Background(), "https://spa.example")
	require.NoError(t, err)
	require.True(t, resp.Rendered)
	require.Contains(t, string(resp.Body), "rendered@example.com")
}

func TestPipelineFallsBackToProbeWhenRenderFails(t *testing.T) {
	t.Parallel()

	probe := &stubFetcher{responses: map[string]scrape.FetchResponse{
		"https://slow.example": okResponse("https://slow.example"),
	}}
	renderer := &stubFetcher{errs: map[string]error{
		"https://slow.example": &scrape.FetchError{Kind: scrape.FetchRenderTimeout, URL: "https://slow.example"},
	}}
	p := NewPipeline(probe, renderer, stubDetector{render: true}, nil)

	resp, err := p.Fetch(context.Background(), "https://slow.example")
	require.NoError(t, err)
	require.False(t, resp.Rendered)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPipelineReportsHTTPErrorWhenRenderFailsOnErrorStatus(t *testing.T) {
	t.Parallel()

	probe := &stubFetcher{responses: map[string]scrape.FetchResponse{
		"https://blocked.example": {URL: "https://blocked.example", StatusCode: http.StatusForbidden, Body: []byte("denied")},
	}}
	renderer := &stubFetcher{errs: map[string]error{
		"https://blocked.example": &scrape.FetchError{Kind: scrape.FetchRenderTimeout, URL: "https://blocked.example"},
	}}
	p := NewPipeline(probe, renderer, stubDetector{render: true}, nil)

	_, err := p.Fetch(context.Background(), "https://blocked.example")
	var fe *scrape.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, scrape.FetchHTTPError, fe.Kind)
	require.Equal(t, http.StatusForbidden, fe.Status)
}

func TestPipelineDowngradesSchemeOnConnectionFailure(t *testing.T) {
	t.Parallel()

	probe := &stubFetcher{
		responses: map[string]scrape.FetchResponse{
			"http://legacy.example": okResponse("http://legacy.example"),
		},
		errs: map[string]error{
			"https://legacy.example": &scrape.FetchError{Kind: scrape.FetchConnectionRefused, URL: "https://legacy.example"},
		},
	}
	p := NewPipeline(probe, &stubFetcher{}, stubDetector{render: false}, nil)

	resp, err := p.Fetch(context.Background(), "legacy.example")
	require.NoError(t, err)
	require.Equal(t, "http://legacy.example", resp.URL)
	require.Equal(t, []string{"https://legacy.example", "http://legacy.example"}, probe.calls)
}

func TestPipelineKeepsOriginalErrorWhenDowngradeFailsToo(t *testing.T) {
	t.Parallel()

	probe := &stubFetcher{errs: map[string]error{
		"https://gone.example": &scrape.FetchError{Kind: scrape.FetchDNSFailure, URL: "https://gone.example"},
		"http://gone.example":  &scrape.FetchError{Kind: scrape.FetchDNSFailure, URL: "http://gone.example"},
	}}
	p := NewPipeline(probe, &stubFetcher{}, stubDetector{render: false}, nil)

	_, err := p.Fetch(context.Background(), "gone.example")
	var fe *scrape.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, scrape.FetchDNSFailure, fe.Kind)
	require.Equal(t, "https://gone.example", fe.URL)
}

func TestPipelineNoDowngradeForTimeout(t *testing.T) {
	t.Parallel()

	probe := &stubFetcher{errs: map[string]error{
		"https://stuck.example": &scrape.FetchError{Kind: scrape.FetchTimeout, URL: "https://stuck.example"},
	}}
	p := NewPipeline(probe, &stubFetcher{}, stubDetector{render: false}, nil)

	_, err := p.Fetch(context.Background(), "stuck.example")
	var fe *scrape.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, scrape.FetchTimeout, fe.Kind)
	require.Len(t, probe.calls, 1)
}
