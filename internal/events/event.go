package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type denotes the kind of job milestone represented by an Event.
type Type string

// Supported event types. These are the wire values clients receive.
const (
	TypeJobCreated Type = "job_created"
	TypeProgress   Type = "progress"
	TypeFinished   Type = "finished"
	TypeCancelled  Type = "cancelled"
	TypeError      Type = "error"
)

// Event captures a single job lifecycle milestone. The zero-valued optional
// fields are omitted on the wire so each event type carries only its own
// payload.
type Event struct {
	// Type denotes which milestone occurred.
	Type Type `json:"type"`
	// JobID identifies the job this event belongs to.
	JobID uuid.UUID `json:"job_id"`
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time `json:"ts"`
	// URLCount is the deduplicated batch size, set on job_created.
	URLCount int `json:"url_count,omitempty"`
	// Done counts completed URLs; paired with Total on progress and
	// terminal events.
	Done  int `json:"done,omitempty"`
	Total int `json:"total,omitempty"`
	// Current is the URL whose completion this progress event reports.
	Current string `json:"current,omitempty"`
	// Emails holds the addresses found on Current.
	Emails []string `json:"emails,omitempty"`
	// Results maps URL to its addresses, set on finished.
	Results map[string][]string `json:"results,omitempty"`
	// Msg carries human-readable error text on error events.
	Msg string `json:"msg,omitempty"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == uuid.Nil {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Type {
	case TypeJobCreated:
		if e.URLCount <= 0 {
			return errors.New("job_created requires a positive url count")
		}
	case TypeProgress:
		if e.Current == "" {
			return errors.New("progress requires the current url")
		}
		if e.Done < 0 || e.Total <= 0 || e.Done > e.Total {
			return fmt.Errorf("progress counters out of range: %d/%d", e.Done, e.Total)
		}
	case TypeFinished, TypeCancelled:
		if e.Done < 0 || e.Total < 0 || e.Done > e.Total {
			return fmt.Errorf("completion counters out of range: %d/%d", e.Done, e.Total)
		}
	case TypeError:
		if e.Msg == "" {
			return errors.New("error event requires a message")
		}
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}

// Terminal reports whether this event ends the job's stream. Subscribers are
// closed after a terminal event is delivered.
func (e Event) Terminal() bool {
	switch e.Type {
	case TypeFinished, TypeCancelled, TypeError:
		return true
	default:
		return false
	}
}
