package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/hamchapman/jottly/internal/tracker"
)

// Uploader sends jots to the ingest endpoint. It is implemented by *Client
// and can be faked in tests.
type Uploader interface {
	UpdateServer(ctx context.Context, kind string, payload map[string]any, onSuccess func([]byte), onError func(error)) tracker.TaskID
}

// Ensure Client implements Uploader at compile time.
var _ Uploader = (*Client)(nil)

const (
	defaultBaseURL   = "http://127.0.0.1:8080"
	defaultUserAgent = "jottly/0.1"
	requestTimeout   = 30 * time.Second
	chunkSize        = 32 * 1024
	contentType      = "application/json; charset=utf-8"
)

// Client posts jots and routes every transport event through a tracker so
// each upload resolves exactly once.
type Client struct {
	jotURL    string
	http      *http.Client
	userAgent string
	logger    *slog.Logger
	breaker   *gobreaker.CircuitBreaker[*http.Response]
	tracker   *tracker.Tracker
	nextID    func() tracker.TaskID

	settings BreakerSettings
	counter  atomic.Uint64
	inflight sync.WaitGroup
}

// BreakerSettings configure the circuit breaker around the round trip.
type BreakerSettings struct {
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures uint32
	// OpenTimeout is how long the circuit stays open before a trial request.
	OpenTimeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger used by the client and its tracker.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua = strings.TrimSpace(ua); ua != "" {
			c.userAgent = ua
		}
	}
}

// WithBreaker overrides the circuit breaker settings.
func WithBreaker(settings BreakerSettings) Option {
	return func(c *Client) {
		c.settings = settings
	}
}

// WithTaskIDs replaces the task identifier generator.
func WithTaskIDs(next func() tracker.TaskID) Option {
	return func(c *Client) {
		if next != nil {
			c.nextID = next
		}
	}
}

// NewClient builds a Client that posts to <baseURL>/jot.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	jotURL, err := resolveJotURL(baseURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		jotURL:    jotURL,
		http:      &http.Client{Timeout: requestTimeout},
		userAgent: defaultUserAgent,
		logger:    slog.New(slog.DiscardHandler),
		settings:  BreakerSettings{MaxFailures: 5, OpenTimeout: 30 * time.Second},
	}
	c.nextID = func() tracker.TaskID { return tracker.TaskID(c.counter.Add(1)) }
	for _, opt := range opts {
		opt(c)
	}
	c.tracker = tracker.New(c.logger)
	c.breaker = newBreaker(c.settings)
	return c, nil
}

func newBreaker(s BreakerSettings) *gobreaker.CircuitBreaker[*http.Response] {
	maxFailures := s.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "ingest",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

// UpdateServer posts payload with its "type" set to kind. Exactly one of
// onSuccess or onError is eventually called, from another goroutine unless
// the request could not be started.
func (c *Client) UpdateServer(ctx context.Context, kind string, payload map[string]any, onSuccess func([]byte), onError func(error)) tracker.TaskID {
	if onError == nil {
		onError = func(error) {}
	}
	body := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["type"] = kind

	data, err := json.Marshal(body)
	if err != nil {
		onError(fmt.Errorf("encode %s jot: %w", kind, err))
		return 0
	}

	id := c.nextID()
	reqCtx, cancel := context.WithCancel(ctx)
	req := tracker.NewRequest(onSuccess, onError, cancel)
	if err := c.tracker.Register(id, req); err != nil {
		cancel()
		c.logger.Error("failed to register upload", "task", id, "type", kind, "error", err)
		onError(err)
		return id
	}

	c.logger.Debug("upload started", "task", id, "type", kind, "bytes", len(data))
	c.inflight.Add(1)
	go c.perform(reqCtx, id, data)
	return id
}

// Pending reports the number of uploads that have not resolved.
func (c *Client) Pending() int {
	return c.tracker.Len()
}

// Wait blocks until every started upload has finished its transport work.
func (c *Client) Wait() {
	c.inflight.Wait()
}

// Close invalidates the session: unresolved uploads are cancelled and report
// tracker.ErrCancelled.
func (c *Client) Close() {
	c.tracker.Invalidate()
	c.inflight.Wait()
}

func (c *Client) perform(ctx context.Context, id tracker.TaskID, data []byte) {
	defer c.inflight.Done()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.jotURL, bytes.NewReader(data))
	if err != nil {
		c.tracker.OnComplete(id, &tracker.TransportError{Err: fmt.Errorf("create request: %w", err)})
		return
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		r, doErr := c.http.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		if r.StatusCode >= 500 {
			return r, fmt.Errorf("ingest returned %d", r.StatusCode)
		}
		return r, nil
	})
	if resp == nil {
		c.tracker.OnComplete(id, transportError(ctx, err))
		return
	}
	defer func() { _ = resp.Body.Close() }()

	meta := resp.Proto + " " + resp.Status
	if resp.StatusCode < 100 || resp.StatusCode > 599 {
		c.tracker.OnInvalidResponse(id, meta)
		c.tracker.OnComplete(id, tracker.ErrCancelled)
		return
	}
	c.tracker.OnResponseHeaders(id, resp.StatusCode, meta)

	buf := make([]byte, chunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.tracker.OnBodyChunk(id, chunk)
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			c.tracker.OnComplete(id, transportError(ctx, fmt.Errorf("read response: %w", readErr)))
			return
		}
	}
	c.tracker.OnComplete(id, nil)
}

// transportError maps a round-trip failure onto the tracker taxonomy.
// Cancellation of the request context becomes tracker.ErrCancelled.
func transportError(ctx context.Context, err error) error {
	if err == nil {
		err = errors.New("no response")
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return tracker.ErrCancelled
	}
	return &tracker.TransportError{Err: err}
}

func resolveJotURL(baseURL string) (string, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("parse ingest url %q: %w", baseURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("parse ingest url %q: missing host", baseURL)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.JoinPath("jot").String(), nil
}
