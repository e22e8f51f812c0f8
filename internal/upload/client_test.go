package upload

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamchapman/jottly/internal/tracker"
)

type outcome struct {
	data []byte
	err  error
}

type collector struct {
	ch chan outcome
}

func newCollector() *collector {
	return &collector{ch: make(chan outcome, 4)}
}

func (c *collector) onSuccess(data []byte) { c.ch <- outcome{data: data} }
func (c *collector) onError(err error)     { c.ch <- outcome{err: err} }

func (c *collector) wait(t *testing.T) outcome {
	t.Helper()
	select {
	case out := <-c.ch:
		return out
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for upload result")
		return outcome{}
	}
}

func (c *collector) assertQuiet(t *testing.T) {
	t.Helper()
	select {
	case out := <-c.ch:
		t.Fatalf("unexpected second result: %+v", out)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestResolveJotURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "http://127.0.0.1:8080/jot"},
		{"localhost:9000", "http://localhost:9000/jot"},
		{"https://api.example.com/", "https://api.example.com/jot"},
		{"https://api.example.com/v1?x=1#frag", "https://api.example.com/v1/jot"},
	}
	for _, tt := range tests {
		got, err := resolveJotURL(tt.in)
		if err != nil {
			t.Fatalf("resolveJotURL(%q) returned error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("resolveJotURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if _, err := resolveJotURL("http://"); err == nil {
		t.Fatal("expected error for url without host")
	}
}

func TestUpdateServerPostsJot(t *testing.T) {
	var gotBody map[string]any
	var gotContentType, gotUserAgent, gotMethod, gotPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		gotUserAgent = r.Header.Get("User-Agent")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_, _ = w.Write([]byte("Jot received!"))
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, WithUserAgent("jottly-test"))
	require.NoError(t, err)
	t.Cleanup(c.Close)

	col := newCollector()
	c.UpdateServer(context.Background(), "steps", map[string]any{"steps": 1200}, col.onSuccess, col.onError)

	out := col.wait(t)
	require.NoError(t, out.err)
	assert.Equal(t, "Jot received!", string(out.data))
	col.assertQuiet(t)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/jot", gotPath)
	assert.Equal(t, "application/json; charset=utf-8", gotContentType)
	assert.Equal(t, "jottly-test", gotUserAgent)
	assert.Equal(t, "steps", gotBody["type"])
	assert.EqualValues(t, 1200, gotBody["steps"])
	assert.Equal(t, 0, c.Pending())
}

func TestUpdateServerStructuredError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_token","error_description":"expired"}`))
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	col := newCollector()
	c.UpdateServer(context.Background(), "location", nil, col.onSuccess, col.onError)

	out := col.wait(t)
	var statusErr *tracker.BadStatusWithMessageError
	require.ErrorAs(t, out.err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.Status)
	assert.Contains(t, statusErr.Error(), "invalid_token: expired")
}

func TestUpdateServerBadStatusWithoutBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	col := newCollector()
	c.UpdateServer(context.Background(), "location", nil, col.onSuccess, col.onError)

	out := col.wait(t)
	var statusErr *tracker.BadStatusError
	require.ErrorAs(t, out.err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.Status)
}

func TestUpdateServerInvalidStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(999)
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	col := newCollector()
	c.UpdateServer(context.Background(), "location", nil, col.onSuccess, col.onError)

	out := col.wait(t)
	var invalid *tracker.InvalidResponseError
	require.ErrorAs(t, out.err, &invalid)
	c.Wait()
	col.assertQuiet(t)
	assert.Equal(t, 0, c.Pending())
}

func TestUpdateServerTransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c, err := NewClient(url)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	col := newCollector()
	c.UpdateServer(context.Background(), "location", nil, col.onSuccess, col.onError)

	out := col.wait(t)
	var transportErr *tracker.TransportError
	require.ErrorAs(t, out.err, &transportErr)
}

func TestUpdateServerCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	col := newCollector()
	c.UpdateServer(ctx, "location", nil, col.onSuccess, col.onError)

	out := col.wait(t)
	assert.ErrorIs(t, out.err, tracker.ErrCancelled)
}

func TestUpdateServerDuplicateIdentifier(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, WithTaskIDs(func() tracker.TaskID { return 7 }))
	require.NoError(t, err)
	t.Cleanup(c.Close)

	first := newCollector()
	second := newCollector()
	c.UpdateServer(context.Background(), "location", nil, first.onSuccess, first.onError)
	id := c.UpdateServer(context.Background(), "steps", nil, second.onSuccess, second.onError)

	assert.Equal(t, tracker.TaskID(7), id)
	assert.ErrorIs(t, second.wait(t).err, tracker.ErrDuplicateIdentifier)

	close(release)
	out := first.wait(t)
	require.NoError(t, out.err)
	assert.Equal(t, "ok", string(out.data))
}

func TestCloseCancelsPendingUploads(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	c, err := NewClient(server.URL)
	require.NoError(t, err)

	col := newCollector()
	c.UpdateServer(context.Background(), "location", nil, col.onSuccess, col.onError)
	require.Eventually(t, func() bool { return c.Pending() == 1 }, time.Second, 5*time.Millisecond)

	c.Close()

	assert.ErrorIs(t, col.wait(t).err, tracker.ErrCancelled)
	col.assertQuiet(t)
	assert.Equal(t, 0, c.Pending())
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, WithBreaker(BreakerSettings{MaxFailures: 1, OpenTimeout: time.Minute}))
	require.NoError(t, err)
	t.Cleanup(c.Close)

	col := newCollector()
	c.UpdateServer(context.Background(), "location", nil, col.onSuccess, col.onError)
	var statusErr *tracker.BadStatusError
	require.ErrorAs(t, col.wait(t).err, &statusErr)
	c.Wait()

	c.UpdateServer(context.Background(), "location", nil, col.onSuccess, col.onError)
	out := col.wait(t)
	var transportErr *tracker.TransportError
	require.ErrorAs(t, out.err, &transportErr)
	assert.True(t, errors.Is(out.err, gobreaker.ErrOpenState))
	assert.Equal(t, int32(1), hits.Load())
}

func TestUpdateServerEncodeFailure(t *testing.T) {
	c, err := NewClient("localhost:1")
	require.NoError(t, err)
	t.Cleanup(c.Close)

	col := newCollector()
	id := c.UpdateServer(context.Background(), "location", map[string]any{"bad": make(chan int)}, col.onSuccess, col.onError)

	assert.Equal(t, tracker.TaskID(0), id)
	require.Error(t, col.wait(t).err)
	assert.Equal(t, 0, c.Pending())
}
