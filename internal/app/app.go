package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hamchapman/jottly/internal/config"
	"github.com/hamchapman/jottly/internal/ingest"
	"github.com/hamchapman/jottly/internal/kv"
	"github.com/hamchapman/jottly/internal/logstore"
	"github.com/hamchapman/jottly/internal/logview"
	"github.com/hamchapman/jottly/internal/replay"
	"github.com/hamchapman/jottly/internal/scheduler"
	"github.com/hamchapman/jottly/internal/state"
	"github.com/hamchapman/jottly/internal/updater"
	"github.com/hamchapman/jottly/internal/upload"
)

const shutdownTimeout = 10 * time.Second

// Options configure every Jottly command.
type Options struct {
	ConfigPath string
	EnvFile    string
	// ReplayPath overrides replay.path from the config.
	ReplayPath string
	// Stderr receives console logs; defaults to os.Stderr.
	Stderr io.Writer
}

func (o Options) load() (config.Config, error) {
	cfg, err := config.Load(config.Options{Path: o.ConfigPath, EnvFile: o.EnvFile})
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if o.ReplayPath != "" {
		cfg.Replay.Path = o.ReplayPath
	}
	return cfg, nil
}

func (o Options) stderr() io.Writer {
	if o.Stderr == nil {
		return os.Stderr
	}
	return o.Stderr
}

// RunAgent runs the location and steps agent until ctx is cancelled.
func RunAgent(ctx context.Context, opts Options) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	if cfg.Replay.Path == "" {
		return errors.New("no location source: set replay.path or pass -replay")
	}

	store, err := kv.Open(ctx, kv.Options{
		Backend: cfg.Store.Backend,
		Path:    cfg.Store.Path,
		Addr:    cfg.Store.Addr,
		Prefix:  cfg.Store.Prefix,
	}, nil)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	logger, err := newLogger(cfg, store, opts.stderr())
	if err != nil {
		return err
	}

	records, err := replay.Load(cfg.Replay.Path)
	if err != nil {
		return fmt.Errorf("load replay: %w", err)
	}
	source := replay.NewSource(records, replay.Options{
		Interval: cfg.Replay.Interval.Std(),
		Loop:     cfg.Replay.Loop,
		Logger:   logger.With("component", "replay"),
	})

	client, err := upload.NewClient(cfg.IngestURL,
		upload.WithLogger(logger.With("component", "upload")),
		upload.WithBreaker(upload.BreakerSettings{
			MaxFailures: cfg.Breaker.MaxFailures,
			OpenTimeout: cfg.Breaker.OpenTimeout.Std(),
		}),
	)
	if err != nil {
		return fmt.Errorf("init upload client: %w", err)
	}
	defer client.Close()

	status := &state.Store{}
	manager := updater.New(ctx, updater.Options{
		Uploader: client,
		Store:    store,
		State:    status,
		Sources:  []updater.StepSource{source},
		Logger:   logger.With("component", "updater"),
		Defaults: updater.Defaults{
			PollInterval:      cfg.Defaults.PollInterval.Std(),
			AccuracyThreshold: cfg.Defaults.AccuracyThreshold,
			Timeout:           cfg.Defaults.Timeout.Std(),
		},
	})

	lifecycle := NewSignalLifecycle()
	defer lifecycle.Close()

	sched := scheduler.New(manager, scheduler.Options{
		Provider:  source,
		Budget:    scheduler.NewTimedBudget(nil, cfg.Scheduler.BudgetWindow.Std()),
		Lifecycle: lifecycle,
		Logger:    logger.With("component", "scheduler"),
		Limits: scheduler.Limits{
			MinInterval:   cfg.Scheduler.MinInterval.Std(),
			MaxInterval:   cfg.Scheduler.MaxInterval.Std(),
			AccuracyFloor: cfg.Scheduler.AccuracyFloor,
			WaitDelay:     cfg.Scheduler.WaitDelay.Std(),
			RestartDelay:  cfg.Scheduler.RestartDelay.Std(),
		},
	})
	source.Bind(sched.HandleFixes)
	manager.Attach(sched)

	logger.Info("agent starting",
		"ingest_url", cfg.IngestURL,
		"replay", cfg.Replay.Path,
		"store", cfg.Store.Backend,
	)
	sched.Start(cfg.Defaults.PollInterval.Std(), cfg.Defaults.AccuracyThreshold, cfg.Defaults.Timeout.Std())
	source.MonitorPassive(ctx, manager)
	StartStepPoller(ctx, manager, status, cfg.Defaults.StepsInterval.Std(), logger.With("component", "poller"))

	<-ctx.Done()

	sched.Stop()
	source.StopUpdates()
	source.Wait()
	client.Wait()
	snap := status.Snapshot()
	logger.Info("agent stopped", "uploads", snap.Uploads, "steps", snap.Steps)
	return nil
}

// RunServer serves the ingest endpoint until ctx is cancelled, then shuts
// down gracefully.
func RunServer(ctx context.Context, opts Options) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, nil, opts.stderr())
	if err != nil {
		return err
	}

	repo, err := ingest.OpenRepository(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer repo.Close()

	srv := ingest.NewServer(repo, ingest.Options{
		Logger:         logger.With("component", "ingest"),
		AllowedOrigins: cfg.AllowedOrigins,
	})
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("ingest server listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("ingest server shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// LogsOptions filter ShowLogs output.
type LogsOptions struct {
	Limit    int
	Level    string
	Contains string
	Color    bool
}

// ShowLogs prints the persisted agent log to w.
func ShowLogs(ctx context.Context, opts Options, w io.Writer, filter LogsOptions) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}

	var minLevel logstore.Level
	if filter.Level != "" {
		if minLevel, err = logstore.ParseLevel(filter.Level); err != nil {
			return err
		}
	}

	var logs logstore.Store
	switch cfg.LogStore.Backend {
	case "none":
		return errors.New("log store is disabled (log_store.backend = none)")
	case "kv":
		store, err := kv.Open(ctx, kv.Options{
			Backend: cfg.Store.Backend,
			Path:    cfg.Store.Path,
			Addr:    cfg.Store.Addr,
			Prefix:  cfg.Store.Prefix,
		}, nil)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer store.Close()
		logs = logstore.NewKVStore(store, "", cfg.LogStore.MaxEntries)
	default:
		logs = logstore.NewFileStore(cfg.LogStore.Path)
	}

	entries, err := logs.Fetch(ctx, filter.Limit)
	if err != nil {
		return fmt.Errorf("fetch logs: %w", err)
	}
	return logview.Render(w, entries, logview.Options{
		Color:    filter.Color,
		MinLevel: minLevel,
		Contains: filter.Contains,
	})
}
