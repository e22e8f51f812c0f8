package tracker

import (
	"encoding/json"
	"strings"
)

// TaskID is the opaque identifier the transport assigns to an operation.
type TaskID uint64

// Request is one caller-level upload intent. All mutable fields are guarded by
// the owning Tracker's lock.
type Request struct {
	onSuccess func([]byte)
	onError   func(error)
	cancel    func()

	badStatus int
	badErr    error
	body      []byte
	reported  bool
	reportErr error
}

// NewRequest builds a request with its continuations. cancel aborts the
// underlying operation and may be nil.
func NewRequest(onSuccess func([]byte), onError func(error), cancel func()) *Request {
	if onSuccess == nil {
		onSuccess = func([]byte) {}
	}
	if onError == nil {
		onError = func(error) {}
	}
	if cancel == nil {
		cancel = func() {}
	}
	return &Request{onSuccess: onSuccess, onError: onError, cancel: cancel}
}

func (r *Request) markBadStatus(status int) {
	r.badStatus = status
	r.badErr = &BadStatusError{Status: status}
	r.body = r.body[:0]
}

// appendErrorBody accumulates the error body and re-derives the error so a
// structured payload split across chunks still parses once complete.
func (r *Request) appendErrorBody(chunk []byte) {
	r.body = append(r.body, chunk...)
	if msg, ok := parseErrorBody(r.body); ok {
		r.badErr = &BadStatusWithMessageError{
			Status:      r.badStatus,
			Code:        msg.Error,
			Description: msg.Description,
		}
		return
	}
	r.badErr = &BadStatusError{Status: r.badStatus}
}

// outcome resolves the terminal result: transport error, then bad status,
// then the buffered body.
func (r *Request) outcome(transportErr error) ([]byte, error) {
	if transportErr != nil {
		return nil, transportErr
	}
	if r.badStatus != 0 {
		return nil, r.badErr
	}
	data := make([]byte, len(r.body))
	copy(data, r.body)
	return data, nil
}

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

func parseErrorBody(data []byte) (errorBody, bool) {
	var msg errorBody
	if err := json.Unmarshal(data, &msg); err != nil {
		return errorBody{}, false
	}
	msg.Error = strings.TrimSpace(msg.Error)
	msg.Description = strings.TrimSpace(msg.Description)
	if msg.Error == "" {
		return errorBody{}, false
	}
	return msg, true
}
