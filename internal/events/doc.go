// Package events provides the job lifecycle event primitives, the
// non-blocking hub, and the emitter interfaces that scrape workers use to
// report progress. Live subscribers (the SSE transport) receive events in
// publish order; sinks receive batches on a background goroutine for
// metrics, logging, and archival.
package events
