package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mailsift/mailsift/internal/events"
)

// PrometheusSink exports scrape job metrics. It owns all collectors for jobs
// created/completed/running plus URL and email throughput counters.
type PrometheusSink struct {
	jobsCreated   prometheus.Counter
	jobsCompleted *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	jobURLs       prometheus.Histogram

	urlsProcessed prometheus.Counter
	emailsFound   prometheus.Counter

	tracker *jobTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailsift_jobs_created_total",
			Help: "Total scrape jobs accepted.",
		}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailsift_jobs_completed_total",
			Help: "Total jobs completed partitioned by outcome.",
		}, []string{"outcome"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailsift_jobs_running",
			Help: "Current number of jobs with live event streams.",
		}),
		jobURLs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailsift_job_url_count",
			Help:    "Deduplicated batch size per accepted job.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}),
		urlsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailsift_urls_processed_total",
			Help: "URLs whose scrape unit completed, including failures.",
		}),
		emailsFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailsift_emails_found_total",
			Help: "Addresses extracted across all completed URLs.",
		}),
		tracker: newJobTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.jobsCreated,
		s.jobsCompleted,
		s.jobsRunning,
		s.jobURLs,
		s.urlsProcessed,
		s.emailsFound,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register event collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors using the provided batch. It is safe for
// concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []events.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt events.Event) {
	switch evt.Type {
	case events.TypeJobCreated:
		s.jobsCreated.Inc()
		s.jobURLs.Observe(float64(evt.URLCount))
		if s.tracker.start(evt.JobID) {
			s.jobsRunning.Inc()
		}
	case events.TypeProgress:
		s.urlsProcessed.Inc()
		s.emailsFound.Add(float64(len(evt.Emails)))
	case events.TypeFinished, events.TypeCancelled, events.TypeError:
		s.jobsCompleted.WithLabelValues(outcomeLabel(evt.Type)).Inc()
		if s.tracker.complete(evt.JobID) {
			s.jobsRunning.Dec()
		}
	}
}

func outcomeLabel(t events.Type) string {
	switch t {
	case events.TypeFinished:
		return "finished"
	case events.TypeCancelled:
		return "cancelled"
	default:
		return "error"
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type jobTracker struct {
	mu      sync.Mutex
	running map[uuid.UUID]struct{}
}

func newJobTracker() *jobTracker {
	return &jobTracker{running: make(map[uuid.UUID]struct{})}
}

func (t *jobTracker) start(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *jobTracker) complete(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
