package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config controls buffering and batching for the Hub.
//   - BufferSize: size of the internal sink channel (default 4096).
//   - MaxBatchEvents: flush once this many events queue (default 500).
//   - MaxBatchWait: flush after this duration even if the batch is small (default 250ms).
//   - SinkTimeout: per-sink timeout while flushing (default 10s).
//   - SubscriberBuffer: per-subscriber channel capacity (default 64).
//   - BaseContext: parent context passed to sink calls (defaults to context.Background()).
//   - Logger: optional structured logger used for warnings.
type Config struct {
	BufferSize       int
	MaxBatchEvents   int
	MaxBatchWait     time.Duration
	SinkTimeout      time.Duration
	SubscriberBuffer int
	BaseContext      context.Context
	Logger           *zap.Logger
}

const (
	defaultBufferSize       = 4096
	defaultMaxBatchEvents   = 500
	defaultMaxBatchWait     = 250 * time.Millisecond
	defaultSinkTimeout      = 10 * time.Second
	defaultSubscriberBuffer = 64
	dropLogInterval         = 5 * time.Second
)

// Subscription is a live, per-job event feed. The channel is closed after a
// terminal event for the job is delivered, or when the subscriber cancels.
type Subscription struct {
	id    uint64
	jobID uuid.UUID
	ch    chan Event

	closeOnce sync.Once
}

// C returns the receive side of the feed.
func (s *Subscription) C() <-chan Event { return s.ch }

func (s *Subscription) close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

// forceSend enqueues evt even when the buffer is full, evicting the oldest
// buffered events until there is room. Only deliver writes to the channel, so
// the eviction loop always terminates.
func (s *Subscription) forceSend(evt Event) {
	for {
		select {
		case s.ch <- evt:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// Hub fans job events out to live subscribers and to registered sinks.
// Subscriber delivery happens synchronously in Emit so a single-goroutine
// emitter observes strict publish order; sink delivery is batched on a
// background goroutine and never blocks the emitter.
type Hub struct {
	cfg         Config
	sinks       []Sink
	events      chan Event
	stopCh      chan struct{}
	doneCh      chan struct{}
	logger      *zap.Logger
	dropLimiter rateLimiter
	dropped     atomic.Int64
	closed      atomic.Bool

	mu      sync.RWMutex
	nextSub uint64
	subs    map[uuid.UUID]map[uint64]*Subscription

	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub initializes a Hub and starts the background batching goroutine for
// the supplied sinks. The returned Hub is immediately ready to accept events.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchEvents <= 0 {
		cfg.MaxBatchEvents = defaultMaxBatchEvents
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = defaultSubscriberBuffer
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:         cfg,
		sinks:       append([]Sink(nil), sinks...),
		events:      make(chan Event, cfg.BufferSize),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		logger:      logger,
		dropLimiter: rateLimiter{interval: dropLogInterval},
		subs:        make(map[uuid.UUID]map[uint64]*Subscription),
	}
	go h.run()
	return h
}

// Subscribe registers a live feed for jobID. The caller must Unsubscribe when
// done; after a terminal event the channel is closed but the registration is
// removed automatically.
func (h *Hub) Subscribe(jobID uuid.UUID) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextSub++
	sub := &Subscription{
		id:    h.nextSub,
		jobID: jobID,
		ch:    make(chan Event, h.cfg.SubscriberBuffer),
	}
	if h.closed.Load() {
		sub.close()
		return sub
	}
	group, ok := h.subs[jobID]
	if !ok {
		group = make(map[uint64]*Subscription)
		h.subs[jobID] = group
	}
	group[sub.id] = sub
	return sub
}

// Unsubscribe removes sub and closes its channel. Safe to call after the
// channel was already closed by a terminal event.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	if group, ok := h.subs[sub.jobID]; ok {
		delete(group, sub.id)
		if len(group) == 0 {
			delete(h.subs, sub.jobID)
		}
	}
	h.mu.Unlock()
	sub.close()
}

// Emit delivers an Event to live subscribers and enqueues it for the sinks.
// It never blocks; a subscriber that cannot keep up loses intermediate events,
// but terminal events are always delivered before the channel closes. A full
// sink buffer drops with a rate-limited warning.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid job event", zap.Error(err))
		return
	}

	h.deliver(evt)

	select {
	case h.events <- evt:
	default:
		h.dropped.Add(1)
		if h.dropLimiter.Allow(time.Now()) {
			count := h.dropped.Swap(0)
			h.logger.Warn("job events dropped due to backpressure", zap.Int64("dropped", count))
		}
	}
}

func (h *Hub) deliver(evt Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group, ok := h.subs[evt.JobID]
	if !ok {
		return
	}
	for _, sub := range group {
		if evt.Terminal() {
			// The stream's outcome must not be lost to backpressure.
			sub.forceSend(evt)
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			h.logger.Debug("subscriber lagging, event skipped",
				zap.String("job_id", evt.JobID.String()),
				zap.String("type", string(evt.Type)),
			)
		}
	}
	if evt.Terminal() {
		for _, sub := range group {
			sub.close()
		}
		delete(h.subs, evt.JobID)
	}
}

// Close closes all subscribers, drains remaining events, flushes sinks, and
// blocks until the background goroutine exits. Safe to call multiple times.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		h.mu.Lock()
		for _, group := range h.subs {
			for _, sub := range group {
				sub.close()
			}
		}
		h.subs = make(map[uuid.UUID]map[uint64]*Subscription)
		h.mu.Unlock()
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("events hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.doneCh)
	batch := make([]Event, 0, h.cfg.MaxBatchEvents)
	timer := time.NewTimer(h.cfg.MaxBatchWait)
	timer.Stop()
	timerActive := false
	for {
		select {
		case evt := <-h.events:
			batch = h.enqueueEvent(batch, evt, timer, &timerActive)
		case <-timer.C:
			timerActive = false
			if len(batch) > 0 {
				h.flush(batch)
				batch = batch[:0]
			}
		case <-h.stopCh:
			h.handleStop(batch, timer, &timerActive)
			return
		}
	}
}

func (h *Hub) enqueueEvent(batch []Event, evt Event, timer *time.Timer, timerActive *bool) []Event {
	batch = append(batch, evt)
	if len(batch) >= h.cfg.MaxBatchEvents {
		h.flush(batch)
		batch = batch[:0]
		h.stopTimer(timer, timerActive)
	} else if h.cfg.MaxBatchWait > 0 {
		h.resetTimer(timer, timerActive)
	}
	return batch
}

func (h *Hub) handleStop(batch []Event, timer *time.Timer, timerActive *bool) {
	h.stopTimer(timer, timerActive)
	for {
		select {
		case evt := <-h.events:
			batch = append(batch, evt)
			if len(batch) >= h.cfg.MaxBatchEvents {
				h.flush(batch)
				batch = batch[:0]
			}
		default:
			if len(batch) > 0 {
				h.flush(batch)
			}
			h.closeSinks()
			return
		}
	}
}

func (h *Hub) resetTimer(timer *time.Timer, timerActive *bool) {
	if h.cfg.MaxBatchWait <= 0 {
		return
	}
	if *timerActive {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}
	timer.Reset(h.cfg.MaxBatchWait)
	*timerActive = true
}

func (h *Hub) stopTimer(timer *time.Timer, timerActive *bool) {
	if !*timerActive {
		return
	}
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	*timerActive = false
}

func (h *Hub) flush(batch []Event) {
	if len(batch) == 0 {
		return
	}
	copyBatch := append([]Event(nil), batch...)
	baseCtx := h.cfg.BaseContext
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx := baseCtx
		cancel := func() {}
		if h.cfg.SinkTimeout > 0 {
			ctx, cancel = context.WithTimeout(baseCtx, h.cfg.SinkTimeout)
		}
		if err := sink.Consume(ctx, copyBatch); err != nil {
			h.logger.Warn("event sink consume failed", zap.Error(err))
		}
		cancel()
	}
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("event sink close failed", zap.Error(err))
		}
	}
}

type rateLimiter struct {
	interval time.Duration
	last     atomic.Int64
}

func (r *rateLimiter) Allow(now time.Time) bool {
	if r == nil || r.interval <= 0 {
		return true
	}
	nano := now.UnixNano()
	last := r.last.Load()
	if nano-last < r.interval.Nanoseconds() {
		return false
	}
	return r.last.CompareAndSwap(last, nano)
}
