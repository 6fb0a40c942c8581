// Package fetch combines the fast HTTP probe, the render-promotion detector,
// and the headless renderer into a single page acquisition pipeline.
package fetch

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/mailsift/mailsift/internal/scrape"
)

// Pipeline fetches a page with the cheap path first and promotes to a
// browser render only when the detector says the probe is not usable.
type Pipeline struct {
	probe    scrape.Fetcher
	renderer scrape.Fetcher
	detector scrape.RenderDetector
	logger   *zap.Logger
}

// NewPipeline wires the three stages together. logger may be nil.
func NewPipeline(probe, renderer scrape.Fetcher, detector scrape.RenderDetector, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		probe:    probe,
		renderer: renderer,
		detector: detector,
		logger:   logger,
	}
}

// Fetch acquires the page at rawURL. The URL is normalized before fetching;
// https is the default scheme, with a one-shot downgrade to http when the
// secure attempt fails at the transport level.
func (p *Pipeline) Fetch(ctx context.Context, rawURL string) (scrape.FetchResponse, error) {
	target, err := scrape.NormalizeURL(rawURL)
	if err != nil {
		return scrape.FetchResponse{}, &scrape.FetchError{
			Kind: scrape.FetchDNSFailure,
			URL:  rawURL,
			Err:  err,
		}
	}

	probe, err := p.probeWithDowngrade(ctx, target)
	if err != nil {
		return scrape.FetchResponse{}, err
	}

	if !p.detector.ShouldRender(probe) {
		return probe, nil
	}

	p.logger.Debug("promoting fetch to headless render",
		zap.String("url", probe.URL),
		zap.Int("probe_status", probe.StatusCode),
	)
	rendered, renderErr := p.renderer.Fetch(ctx, scrape.FetchRequest{URL: probe.URL, Render: true})
	if renderErr == nil {
		return rendered, nil
	}

	// A usable probe beats a failed render.
	if probeUsable(probe) {
		p.logger.Debug("render failed, keeping probe response",
			zap.String("url", probe.URL),
			zap.Error(renderErr),
		)
		return probe, nil
	}
	if probe.StatusCode >= 400 {
		return scrape.FetchResponse{}, &scrape.FetchError{
			Kind:   scrape.FetchHTTPError,
			URL:    probe.URL,
			Status: probe.StatusCode,
		}
	}
	return scrape.FetchResponse{}, scrape.ClassifyFetchError(probe.URL, renderErr)
}

func (p *Pipeline) probeWithDowngrade(ctx context.Context, target string) (scrape.FetchResponse, error) {
	probe, err := p.probe.Fetch(ctx, scrape.FetchRequest{URL: target})
	if err == nil {
		return probe, nil
	}

	classified := scrape.ClassifyFetchError(target, err)
	fallback, ok := downgradeScheme(target)
	if !ok || !classified.Retryable() {
		return scrape.FetchResponse{}, classified
	}

	p.logger.Debug("retrying over plain http",
		zap.String("url", target),
		zap.String("kind", string(classified.Kind)),
	)
	probe, retryErr := p.probe.Fetch(ctx, scrape.FetchRequest{URL: fallback})
	if retryErr != nil {
		// Report the original secure-scheme failure.
		return scrape.FetchResponse{}, classified
	}
	return probe, nil
}

func downgradeScheme(target string) (string, bool) {
	u, err := url.Parse(target)
	if err != nil || !strings.EqualFold(u.Scheme, "https") {
		return "", false
	}
	u.Scheme = "http"
	return u.String(), true
}

// probeUsable reports whether the fast-path response carries content worth
// extracting from even though the detector wanted a render.
func probeUsable(probe scrape.FetchResponse) bool {
	return probe.StatusCode >= 200 && probe.StatusCode < 300 && len(probe.Body) > 0
}
