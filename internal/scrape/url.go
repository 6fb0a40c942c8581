package scrape

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL produces the comparison key used to deduplicate submitted
// URLs: scheme defaults to https, scheme and host are lowercased, default
// ports and fragments are dropped, and a trailing slash on the path is
// ignored.
func NormalizeURL(rawURL string) (string, error) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return "", fmt.Errorf("empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	} else {
		u.Path = ""
	}

	return u.String(), nil
}

// DedupeURLs drops blank entries and duplicates (by normalized form),
// preserving first-seen order and the submitted spelling. Unparseable
// entries are kept verbatim so their failure surfaces as an empty result
// rather than a silent drop.
func DedupeURLs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		key, err := NormalizeURL(trimmed)
		if err != nil {
			key = strings.ToLower(trimmed)
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

// HostOf extracts the lowercase hostname for rate limiting and logging.
// It returns "unknown" when the URL cannot be parsed.
func HostOf(rawURL string) string {
	raw := rawURL
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
