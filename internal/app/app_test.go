package app

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hamchapman/jottly/internal/ingest"
)

// agentEnv isolates config loading and points the agent at ingestURL.
func agentEnv(t *testing.T, ingestURL string) (Options, string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("PORT", "")
	t.Chdir(dir)

	logPath := filepath.Join(dir, "jottly.log")
	t.Setenv("JOTTLY_INGEST_URL", ingestURL)
	t.Setenv("JOTTLY_STORE_BACKEND", "memory")
	t.Setenv("JOTTLY_LOG_STORE_BACKEND", "file")
	t.Setenv("JOTTLY_LOG_STORE_PATH", logPath)
	t.Setenv("JOTTLY_REPLAY_INTERVAL", "10ms")

	replayPath := filepath.Join(dir, "walk.jsonl")
	require.NoError(t, os.WriteFile(replayPath, []byte(strings.Join([]string{
		`{"type":"fix","fix":{"latitude":51.5,"longitude":-0.12,"horizontal_accuracy":8}}`,
		`{"type":"steps","steps":1200}`,
	}, "\n")), 0o600))

	return Options{
		ConfigPath: filepath.Join(dir, "config.toml"),
		ReplayPath: replayPath,
		Stderr:     &bytes.Buffer{},
	}, logPath
}

func TestRunAgentUploadsLocationAndSteps(t *testing.T) {
	repo := ingest.NewMemoryRepository()
	ts := httptest.NewServer(ingest.NewServer(repo, ingest.Options{}).Routes())
	defer ts.Close()

	opts, logPath := agentEnv(t, ts.URL)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunAgent(ctx, opts) }()

	require.Eventually(t, func() bool {
		locations, _ := repo.List(context.Background(), "location", 10)
		steps, _ := repo.List(context.Background(), "steps", 10)
		return len(locations) == 1 && len(steps) == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("RunAgent did not return after cancel")
	}

	steps, err := repo.List(context.Background(), "steps", 1)
	require.NoError(t, err)
	require.JSONEq(t, `{"steps":1200,"type":"steps"}`, string(steps[0].Body))

	var out bytes.Buffer
	require.NoError(t, ShowLogs(context.Background(), opts, &out, LogsOptions{Contains: "agent"}))
	require.Contains(t, out.String(), "agent starting")
	require.Contains(t, out.String(), "agent stopped")
	require.FileExists(t, logPath)
}

func TestRunAgentRestartsAfterStationaryStop(t *testing.T) {
	repo := ingest.NewMemoryRepository()
	ts := httptest.NewServer(ingest.NewServer(repo, ingest.Options{}).Routes())
	defer ts.Close()

	opts, _ := agentEnv(t, ts.URL)
	t.Setenv("JOTTLY_REPLAY_LOOP", "true")
	t.Setenv("JOTTLY_SCHEDULER_MIN_INTERVAL", "10ms")
	t.Setenv("JOTTLY_SCHEDULER_WAIT_DELAY", "10ms")
	t.Setenv("JOTTLY_SCHEDULER_RESTART_DELAY", "10ms")
	t.Setenv("JOTTLY_DEFAULTS_POLL_INTERVAL", "20ms")
	require.NoError(t, os.WriteFile(opts.ReplayPath, []byte(strings.Join([]string{
		`{"type":"fix","fix":{"latitude":51.5,"longitude":-0.12,"horizontal_accuracy":8}}`,
		`{"type":"significant_change","fix":{"latitude":51.5,"longitude":-0.12,"horizontal_accuracy":500}}`,
	}, "\n")), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunAgent(ctx, opts) }()

	// The sixth identical fix stops the scheduler; only a passive trigger
	// gets it polling again.
	require.Eventually(t, func() bool {
		locations, _ := repo.List(context.Background(), "location", 20)
		return len(locations) >= 8
	}, 10*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("RunAgent did not return after cancel")
	}
}

func TestRunAgentRequiresReplay(t *testing.T) {
	opts, _ := agentEnv(t, "http://127.0.0.1:1")
	opts.ReplayPath = ""

	err := RunAgent(context.Background(), opts)
	require.ErrorContains(t, err, "no location source")
}

func TestShowLogsRejectsUnknownLevel(t *testing.T) {
	opts, _ := agentEnv(t, "http://127.0.0.1:1")
	err := ShowLogs(context.Background(), opts, &bytes.Buffer{}, LogsOptions{Level: "loud"})
	require.Error(t, err)
}

func TestRunServerShutsDown(t *testing.T) {
	opts, _ := agentEnv(t, "http://127.0.0.1:1")
	t.Setenv("JOTTLY_LISTEN_ADDR", "127.0.0.1:0")
	t.Setenv("JOTTLY_DATABASE", "memory")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunServer(ctx, opts) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("RunServer did not return after cancel")
	}
}
