// Package pool executes one scrape job: a bounded set of workers fetch and
// extract URLs while a collector goroutine serializes every job mutation and
// progress event.
package pool

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mailsift/mailsift/internal/events"
	"github.com/mailsift/mailsift/internal/scrape"
)

const (
	defaultConcurrency  = 6
	defaultPerHostRPS   = 2.0
	defaultPerHostBurst = 1
)

// PageFetcher acquires a page for extraction. *fetch.Pipeline satisfies it.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (scrape.FetchResponse, error)
}

// EmailExtractor pulls deduplicated addresses out of page markup.
type EmailExtractor interface {
	ExtractPage(markup string) []string
}

// Config controls worker counts and per-host politeness.
type Config struct {
	// Concurrency bounds in-flight units per job.
	Concurrency int
	// PerHostRPS throttles requests against a single host.
	PerHostRPS float64
	// PerHostBurst is the limiter burst size.
	PerHostBurst int
}

// Pool runs scrape jobs. One Pool serves the whole process; each Run call
// executes a single job to completion.
type Pool struct {
	fetcher   PageFetcher
	extractor EmailExtractor
	jobs      scrape.JobStore
	emitter   events.Emitter
	clock     scrape.Clock
	logger    *zap.Logger
	cfg       Config

	limiters struct {
		sync.Mutex
		byHost map[string]*rate.Limiter
	}
}

// New constructs a Pool.
func New(
	fetcher PageFetcher,
	extractor EmailExtractor,
	jobs scrape.JobStore,
	emitter events.Emitter,
	clock scrape.Clock,
	cfg Config,
	logger *zap.Logger,
) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.PerHostRPS <= 0 {
		cfg.PerHostRPS = defaultPerHostRPS
	}
	if cfg.PerHostBurst <= 0 {
		cfg.PerHostBurst = defaultPerHostBurst
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		fetcher:   fetcher,
		extractor: extractor,
		jobs:      jobs,
		emitter:   emitter,
		clock:     clock,
		logger:    logger,
		cfg:       cfg,
	}
	p.limiters.byHost = make(map[string]*rate.Limiter)
	return p
}

// unitResult carries one completed URL from a worker to the collector.
type unitResult struct {
	url    string
	emails []string
}

// Run executes the job until every URL completes, cancellation is requested,
// or a fatal internal error occurs. It owns the running -> terminal
// transition and emits every event for the job.
func (p *Pool) Run(ctx context.Context, job scrape.Job, cancel *scrape.CancelFlag) error {
	jobUUID, err := uuid.Parse(job.ID)
	if err != nil {
		return fmt.Errorf("parse job id %q: %w", job.ID, err)
	}

	if _, err := p.jobs.UpdateStatus(ctx, job.ID, scrape.JobStatusRunning, ""); err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}

	var (
		fatalOnce sync.Once
		fatalErr  error
	)
	recordFatal := func(err error) {
		fatalOnce.Do(func() {
			fatalErr = err
			cancel.Request()
		})
	}

	urls := make(chan string)
	results := make(chan unitResult)

	var workers sync.WaitGroup
	for i := 0; i < p.cfg.Concurrency; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			p.worker(ctx, urls, results, cancel, recordFatal)
		}()
	}

	go func() {
		defer close(urls)
		for _, url := range job.URLs {
			if cancel.Requested() || ctx.Err() != nil {
				return
			}
			select {
			case urls <- url:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		workers.Wait()
		close(results)
	}()

	// Collector: the only goroutine that mutates the job while it runs.
	total := job.Progress.Total
	done := job.Progress.Done
	for result := range results {
		snapshot, err := p.jobs.AppendResult(ctx, job.ID, scrape.URLResult{URL: result.url, Emails: result.emails})
		if err != nil {
			recordFatal(fmt.Errorf("append result for %s: %w", result.url, err))
			continue
		}
		done = snapshot.Progress.Done
		p.emitter.Emit(events.Event{
			Type:    events.TypeProgress,
			JobID:   jobUUID,
			TS:      p.clock.Now(),
			Done:    snapshot.Progress.Done,
			Total:   snapshot.Progress.Total,
			Current: result.url,
			Emails:  result.emails,
		})
	}

	return p.finish(ctx, job.ID, jobUUID, cancel, fatalErr, done, total)
}

func (p *Pool) worker(
	ctx context.Context,
	urls <-chan string,
	results chan<- unitResult,
	cancel *scrape.CancelFlag,
	recordFatal func(error),
) {
	for url := range urls {
		if cancel.Requested() || ctx.Err() != nil {
			continue
		}
		emails := p.processUnit(ctx, url, recordFatal)
		select {
		case results <- unitResult{url: url, emails: emails}:
		case <-ctx.Done():
			return
		}
	}
}

// processUnit never lets a single URL take down the batch: fetch failures
// yield an empty email list and a worker panic converts to a fatal error.
func (p *Pool) processUnit(ctx context.Context, url string, recordFatal func(error)) (emails []string) {
	defer func() {
		if r := recover(); r != nil {
			recordFatal(fmt.Errorf("worker panic on %s: %v", url, r))
			emails = []string{}
		}
	}()

	if err := p.waitForHost(ctx, url); err != nil {
		return []string{}
	}

	start := p.clock.Now()
	resp, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		p.logger.Warn("unit fetch failed",
			zap.String("url", url),
			zap.Error(err),
		)
		return []string{}
	}

	emails = p.extractor.ExtractPage(string(resp.Body))
	p.logger.Debug("unit completed",
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Bool("rendered", resp.Rendered),
		zap.Int("emails", len(emails)),
		zap.Duration("took", p.clock.Now().Sub(start)),
	)
	return emails
}

func (p *Pool) waitForHost(ctx context.Context, url string) error {
	host := scrape.HostOf(url)
	p.limiters.Lock()
	limiter, ok := p.limiters.byHost[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(p.cfg.PerHostRPS), p.cfg.PerHostBurst)
		p.limiters.byHost[host] = limiter
	}
	p.limiters.Unlock()
	return limiter.Wait(ctx)
}

func (p *Pool) finish(
	ctx context.Context,
	jobID string,
	jobUUID uuid.UUID,
	cancel *scrape.CancelFlag,
	fatalErr error,
	done, total int,
) error {
	now := p.clock.Now()
	switch {
	case fatalErr != nil:
		if _, err := p.jobs.UpdateStatus(ctx, jobID, scrape.JobStatusFailed, fatalErr.Error()); err != nil {
			p.logger.Error("final status update failed", zap.String("job_id", jobID), zap.Error(err))
		}
		p.emitter.Emit(events.Event{
			Type:  events.TypeError,
			JobID: jobUUID,
			TS:    now,
			Done:  done,
			Total: total,
			Msg:   fatalErr.Error(),
		})
		return fatalErr

	case (cancel.Requested() || ctx.Err() != nil) && done < total:
		if _, err := p.jobs.UpdateStatus(ctx, jobID, scrape.JobStatusCancelled, ""); err != nil {
			p.logger.Error("final status update failed", zap.String("job_id", jobID), zap.Error(err))
		}
		p.emitter.Emit(events.Event{
			Type:  events.TypeCancelled,
			JobID: jobUUID,
			TS:    now,
			Done:  done,
			Total: total,
		})
		return nil

	default:
		snapshot, err := p.jobs.UpdateStatus(ctx, jobID, scrape.JobStatusFinished, "")
		if err != nil {
			p.logger.Error("final status update failed", zap.String("job_id", jobID), zap.Error(err))
			return err
		}
		p.emitter.Emit(events.Event{
			Type:    events.TypeFinished,
			JobID:   jobUUID,
			TS:      now,
			Done:    snapshot.Progress.Done,
			Total:   snapshot.Progress.Total,
			Results: snapshot.ResultMap(),
		})
		return nil
	}
}
