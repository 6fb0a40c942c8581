// Package memory provides the in-memory scrape.Publisher used by tests in
// place of the Pub/Sub dashboard publisher.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/mailsift/mailsift/internal/scrape"
)

// Publisher records terminal-job payloads instead of pushing them downstream.
type Publisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
}

var _ scrape.Publisher = (*Publisher)(nil)

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	Topic   string
	Payload any
}

// New returns an empty recording Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the payload under topic and returns a pseudo message ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, PublishedMessage{Topic: topic, Payload: payload})
	return fmt.Sprintf("memory-%d", len(p.messages)), nil
}

// Messages returns a copy of the recorded publishes in call order.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}
