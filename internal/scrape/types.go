// Package scrape defines core types shared across subsystems.
package scrape

import (
	"net/http"
	"time"
)

// JobStatus represents the lifecycle state of a scrape job.
type JobStatus string

// Job status values. The three right-hand states of the machine
// (queued -> running -> finished|failed|cancelled) are terminal.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusFinished  JobStatus = "finished"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusFinished, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Progress tracks completed units of work for a job. Done only ever grows.
type Progress struct {
	Done    int    `json:"done"`
	Total   int    `json:"total"`
	Current string `json:"current,omitempty"`
}

// URLResult holds the deduplicated emails extracted for one submitted URL.
// An empty Emails slice records a URL whose fetch failed recoverably.
type URLResult struct {
	URL    string   `json:"url"`
	Emails []string `json:"emails"`
}

// Job represents one batch scrape request and its tracked lifecycle.
// URLs are fixed at creation; Results appear in completion order, one entry
// per URL, only after that URL's unit finishes.
type Job struct {
	ID        string      `json:"id"`
	Status    JobStatus   `json:"status"`
	URLs      []string    `json:"urls"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	Progress  Progress    `json:"progress"`
	Results   []URLResult `json:"results"`
	ErrorText string      `json:"error_text,omitempty"`
}

// ResultMap flattens Results into the URL -> emails form used by the
// finished event and the archive.
func (j Job) ResultMap() map[string][]string {
	out := make(map[string][]string, len(j.Results))
	for _, r := range j.Results {
		emails := r.Emails
		if emails == nil {
			emails = []string{}
		}
		out[r.URL] = emails
	}
	return out
}

// EmailTotal counts extracted emails across all completed units.
func (j Job) EmailTotal() int {
	total := 0
	for _, r := range j.Results {
		total += len(r.Emails)
	}
	return total
}

// Clone returns a deep copy so callers can hand snapshots across goroutines.
func (j Job) Clone() Job {
	cp := j
	cp.URLs = append([]string(nil), j.URLs...)
	cp.Results = make([]URLResult, len(j.Results))
	for i, r := range j.Results {
		cp.Results[i] = URLResult{URL: r.URL, Emails: append([]string(nil), r.Emails...)}
	}
	return cp
}

// FetchRequest captures everything needed to fetch a page.
type FetchRequest struct {
	URL       string
	Headers   http.Header
	UserAgent string
	Render    bool
}

// FetchResponse is the result returned by a Fetcher implementation.
// Body is the raw markup; a non-2xx StatusCode is returned as a response,
// not an error, so the pipeline can decide whether to promote.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Rendered   bool
}
