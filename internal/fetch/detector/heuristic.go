// Package detector decides when a fetch should be promoted to the browser
// rendering fallback.
package detector

import (
	"bytes"
	"strings"

	"github.com/mailsift/mailsift/internal/extract"
	"github.com/mailsift/mailsift/internal/scrape"
)

const defaultMinTextBytes = 256

// Heuristic implements a handful of rule-based promotions: non-2xx answers,
// near-empty visible text, SPA mount points, and script-heavy documents.
type Heuristic struct {
	MinTextBytes int
}

// NewHeuristic creates a detector. threshold <= 0 selects the default.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = defaultMinTextBytes
	}
	return &Heuristic{MinTextBytes: threshold}
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
	[]byte("ng-version"),
}

// ShouldRender reports whether the probe response warrants a headless fetch.
// Already-rendered responses are never promoted again.
func (h *Heuristic) ShouldRender(probe scrape.FetchResponse) bool {
	if probe.Rendered {
		return false
	}
	if probe.StatusCode < 200 || probe.StatusCode >= 300 {
		return true
	}
	body := probe.Body
	if len(body) == 0 {
		return true
	}
	if contentType := probe.Headers.Get("Content-Type"); contentType != "" &&
		strings.Contains(strings.ToLower(contentType), "javascript") {
		return true
	}
	if len(extract.PageText(string(body))) < h.MinTextBytes {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return scriptDensityHigh(body)
}

// scriptDensityHigh flags documents where script tags cover at least a
// quarter of the markup.
func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	coverage := 0
	pos := 0
	for {
		start := strings.Index(lower[pos:], openTag)
		if start == -1 {
			break
		}
		start += pos
		end := strings.Index(lower[start:], closeTag)
		if end == -1 {
			coverage += total - start
			break
		}
		coverage += end + len(closeTag)
		pos = start + end + len(closeTag)
	}
	if coverage == 0 {
		return false
	}
	return coverage*100/total >= 25
}
