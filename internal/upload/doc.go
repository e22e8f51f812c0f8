// Package upload posts jots to the ingest endpoint.
//
// Client.UpdateServer serializes the payload with its "type", assigns a task
// identifier and registers the continuations with a tracker.Tracker. The
// round trip runs on its own goroutine inside a circuit breaker; response
// headers, body chunks and completion are forwarded to the tracker, which
// decides the single outcome:
//
//	POST <base>/jot
//	Content-Type: application/json; charset=utf-8
//
//	{"type": "steps", "steps": 1200}
//
// Failures surface as the tracker's error types. Cancelling the caller's
// context, or closing the client, reports tracker.ErrCancelled. An open
// circuit reports a tracker.TransportError wrapping gobreaker.ErrOpenState.
//
// The client never retries.
package upload
