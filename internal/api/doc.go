// Package api exposes the HTTP interface for the scrape service: job
// submission and cancellation, snapshot reads, CSV export, and the live
// server-sent event stream.
package api
