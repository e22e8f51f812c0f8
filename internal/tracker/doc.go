// Package tracker correlates asynchronous transport events with the logical
// upload requests that produced them.
//
// # Overview
//
// A single transport session multiplexes many requests. Every event it emits
// (response headers, body chunks, completion) carries only an opaque TaskID.
// The Tracker owns the registry that maps those identifiers back to Request
// values and guarantees that each Request resolves exactly once.
//
// # Lifecycle
//
//	Register(id, req)          bind; ErrDuplicateIdentifier if id is taken
//	OnResponseHeaders(id, ...) non-2xx marks the request as failed
//	OnBodyChunk(id, chunk)     buffer success bytes or parse the error body
//	OnComplete(id, err)        resolve once and unbind
//
// Resolution precedence on completion:
//
//  1. A transport error passed to OnComplete, delivered verbatim
//  2. The bad-status error captured from headers and body
//  3. The buffered body, delivered to the success continuation
//
// # Error Bodies
//
// Failed responses may carry {"error": "...", "error_description": "..."}.
// When it parses, the request fails with BadStatusWithMessageError whose
// message reads "error: error_description" (or just "error"). Otherwise it
// fails with BadStatusError carrying the status code.
//
// # Concurrency
//
// All registry and per-request state lives behind one mutex. Continuations run
// after the lock is released so they may call back into the Tracker, for
// example to register a follow-up request under the same identifier.
//
// Events for identifiers that are not bound are logged and ignored.
package tracker
