package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (s *captureSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, batch...)
	return nil
}

func (s *captureSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *captureSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestHubDeliversToSubscriberInOrder(t *testing.T) {
	t.Parallel()

	hub := NewHub(Config{})
	defer func() { _ = hub.Close(context.Background()) }()

	jobID := uuid.New()
	sub := hub.Subscribe(jobID)
	defer hub.Unsubscribe(sub)

	created := validEvent(TypeJobCreated)
	created.JobID = jobID
	hub.Emit(created)
	for i := 1; i <= 3; i++ {
		evt := validEvent(TypeProgress)
		evt.JobID = jobID
		evt.Done = i
		hub.Emit(evt)
	}

	first := <-sub.C()
	require.Equal(t, TypeJobCreated, first.Type)
	for i := 1; i <= 3; i++ {
		evt := <-sub.C()
		require.Equal(t, TypeProgress, evt.Type)
		require.Equal(t, i, evt.Done)
	}
}

func TestHubClosesSubscriberOnTerminalEvent(t *testing.T) {
	t.Parallel()

	hub := NewHub(Config{})
	defer func() { _ = hub.Close(context.Background()) }()

	jobID := uuid.New()
	sub := hub.Subscribe(jobID)

	finished := validEvent(TypeFinished)
	finished.JobID = jobID
	hub.Emit(finished)

	evt, ok := <-sub.C()
	require.True(t, ok)
	require.Equal(t, TypeFinished, evt.Type)

	_, ok = <-sub.C()
	require.False(t, ok)
}

func TestHubTerminalEventSurvivesFullSubscriberBuffer(t *testing.T) {
	t.Parallel()

	hub := NewHub(Config{SubscriberBuffer: 2})
	defer func() { _ = hub.Close(context.Background()) }()

	jobID := uuid.New()
	sub := hub.Subscribe(jobID)

	// Fill the buffer without draining, then emit the outcome.
	for i := 1; i <= 2; i++ {
		evt := validEvent(TypeProgress)
		evt.JobID = jobID
		evt.Done = i
		hub.Emit(evt)
	}
	finished := validEvent(TypeFinished)
	finished.JobID = jobID
	hub.Emit(finished)

	var last Event
	for evt := range sub.C() {
		last = evt
	}
	require.Equal(t, TypeFinished, last.Type)
}

func TestHubIgnoresOtherJobsEvents(t *testing.T) {
	t.Parallel()

	hub := NewHub(Config{})
	defer func() { _ = hub.Close(context.Background()) }()

	mine := uuid.New()
	sub := hub.Subscribe(mine)
	defer hub.Unsubscribe(sub)

	other := validEvent(TypeProgress)
	hub.Emit(other)

	select {
	case evt := <-sub.C():
		t.Fatalf("unexpected event %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubFlushesSinksOnClose(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{MaxBatchWait: time.Hour}, sink)

	evt := validEvent(TypeProgress)
	hub.Emit(evt)
	require.NoError(t, hub.Close(context.Background()))

	got := sink.snapshot()
	require.Len(t, got, 1)
	require.Equal(t, evt.JobID, got[0].JobID)
	require.True(t, sink.closed)
}

func TestHubDropsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{}, sink)

	hub.Emit(Event{Type: TypeProgress})
	require.NoError(t, hub.Close(context.Background()))
	require.Empty(t, sink.snapshot())
}

func TestHubEmitAfterCloseIsNoop(t *testing.T) {
	t.Parallel()

	hub := NewHub(Config{})
	require.NoError(t, hub.Close(context.Background()))
	hub.Emit(validEvent(TypeProgress))
}

func TestHubSubscribeAfterCloseYieldsClosedChannel(t *testing.T) {
	t.Parallel()

	hub := NewHub(Config{})
	require.NoError(t, hub.Close(context.Background()))

	sub := hub.Subscribe(uuid.New())
	_, ok := <-sub.C()
	require.False(t, ok)
}

func TestHubUnsubscribeTwice(t *testing.T) {
	t.Parallel()

	hub := NewHub(Config{})
	defer func() { _ = hub.Close(context.Background()) }()

	sub := hub.Subscribe(uuid.New())
	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)
}
