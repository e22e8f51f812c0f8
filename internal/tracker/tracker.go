package tracker

import (
	"errors"
	"log/slog"
	"sync"
)

// Tracker pairs transport events with the logical requests that caused them.
type Tracker struct {
	logger *slog.Logger

	mu       sync.Mutex
	requests map[TaskID]*Request
}

// New returns an empty tracker. A nil logger discards diagnostics.
func New(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Tracker{
		logger:   logger,
		requests: make(map[TaskID]*Request),
	}
}

// Register binds req to id. The check and the insert happen under a single
// lock acquisition; an existing binding is never replaced.
func (t *Tracker) Register(id TaskID, req *Request) error {
	if req == nil {
		return errors.New("register: request is nil")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.requests[id]; exists {
		return ErrDuplicateIdentifier
	}
	t.requests[id] = req
	return nil
}

// Len reports the number of bound requests.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.requests)
}

// OnResponseHeaders records the response status. A status outside 200-299
// marks the request as failed, but the error is only reported on completion
// so the body can enrich it.
func (t *Tracker) OnResponseHeaders(id TaskID, status int, meta string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	req, ok := t.requests[id]
	if !ok {
		t.logger.Warn("no request paired with task", "task", id, "event", "response", "response", meta)
		return
	}
	if status < 200 || status > 299 {
		req.markBadStatus(status)
		t.logger.Debug("task received bad status", "task", id, "status", status)
	}
}

// OnInvalidResponse handles a response that could not be interpreted as HTTP.
// The error is reported immediately and the operation is cancelled; the
// completion that follows the cancellation is swallowed.
func (t *Tracker) OnInvalidResponse(id TaskID, meta string) {
	t.mu.Lock()
	req, ok := t.requests[id]
	if !ok {
		t.mu.Unlock()
		t.logger.Warn("no request paired with task", "task", id, "event", "invalid_response", "response", meta)
		return
	}
	if req.reported {
		t.mu.Unlock()
		return
	}
	err := &InvalidResponseError{Detail: meta}
	req.reported = true
	req.reportErr = err
	t.mu.Unlock()

	req.cancel()
	req.onError(err)
}

// OnBodyChunk buffers a piece of the response body. For failed responses the
// accumulated body is parsed as a structured error.
func (t *Tracker) OnBodyChunk(id TaskID, chunk []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	req, ok := t.requests[id]
	if !ok {
		t.logger.Warn("no request paired with task", "task", id, "event", "data", "bytes", len(chunk))
		return
	}
	t.logger.Debug("task received data", "task", id, "bytes", len(chunk))
	if req.badStatus != 0 {
		req.appendErrorBody(chunk)
		return
	}
	req.body = append(req.body, chunk...)
}

// OnComplete resolves the request bound to id and unbinds it. At most one
// continuation is ever invoked per request; later attempts are logged.
func (t *Tracker) OnComplete(id TaskID, transportErr error) {
	t.mu.Lock()
	req, ok := t.requests[id]
	if !ok {
		t.mu.Unlock()
		t.logUnboundCompletion(id, transportErr)
		return
	}
	delete(t.requests, id)

	data, err := req.outcome(transportErr)
	if req.reported {
		previous := req.reportErr
		t.mu.Unlock()
		if errors.Is(err, ErrCancelled) {
			t.logger.Info("request cancelled", "task", id)
			return
		}
		t.logger.Warn("request has already communicated an error", "task", id, "previous", previous, "new", err)
		return
	}
	req.reported = true
	req.reportErr = err
	t.mu.Unlock()

	if err != nil {
		if errors.Is(err, ErrCancelled) {
			t.logger.Info("request cancelled", "task", id)
		}
		req.onError(err)
		return
	}
	req.onSuccess(data)
}

// Invalidate drops every binding, cancels the underlying operations and
// reports ErrCancelled to requests that have not resolved yet.
func (t *Tracker) Invalidate() {
	t.mu.Lock()
	pending := make([]*Request, 0, len(t.requests))
	for id, req := range t.requests {
		delete(t.requests, id)
		if req.reported {
			req.cancel()
			continue
		}
		req.reported = true
		req.reportErr = ErrCancelled
		pending = append(pending, req)
	}
	t.mu.Unlock()

	for _, req := range pending {
		req.cancel()
		req.onError(ErrCancelled)
	}
}

func (t *Tracker) logUnboundCompletion(id TaskID, err error) {
	switch {
	case err == nil:
		t.logger.Warn("no request paired with task on completion", "task", id)
	case errors.Is(err, ErrCancelled):
		t.logger.Info("no request paired with task as request was cancelled", "task", id)
	default:
		t.logger.Warn("no request paired with task on completion", "task", id, "error", err)
	}
}
