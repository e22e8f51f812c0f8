// Package app is the composition root for the jottly commands.
//
// # Overview
//
// Each command loads configuration, builds its collaborators and blocks
// until the context is cancelled:
//
//   - RunAgent: replays fixes through the escalation scheduler and uploads
//     locations and step counts to the ingest endpoint
//   - RunServer: serves the ingest endpoint over HTTP
//   - ShowLogs: prints the persisted agent log
//
// # Agent Wiring
//
//	┌──────────────┐
//	│  RunAgent()  │ Initialize everything
//	└──────┬───────┘
//	       │
//	       ├─────> config.Load()         TOML, .env, JOTTLY_* env
//	       ├─────> kv.Open()             Previous location and steps
//	       ├─────> newLogger()           Console + persisted log store
//	       ├─────> replay.NewSource()    Location provider and step source
//	       ├─────> upload.NewClient()    Tracked uploads behind a breaker
//	       ├─────> updater.New()         Scheduler delegate
//	       ├─────> scheduler.New()       Accuracy escalation
//	       ├─────> sched.Start()         Begin the first cycle
//	       └─────> StartStepPoller()     Periodic step collection
//
//	Step Poller Loop:
//	┌─────────────────────────────────────────┐
//	│ StartStepPoller() goroutine             │
//	│  ├─> manager.CollectSteps()             │
//	│  │    └─> monotonic-max, then upload    │
//	│  └─> wait interval << failures          │
//	└─────────────────────────────────────────┘
//
// # Polling Behavior
//
// Steps are collected immediately and then every defaults.steps_interval.
// While uploads keep failing the wait doubles per consecutive failure, up
// to an hour, and returns to the base interval after the next success.
//
// # Lifecycle
//
// The agent has no foreground UI, so SignalLifecycle stands in for one:
// SIGUSR1 means the process went to the background and SIGUSR2 that it is
// active again. The scheduler renews or releases its timed budget in
// response.
//
// # Shutdown
//
// On cancellation the agent stops the scheduler and the replay source, waits
// for in-flight uploads and then closes the upload session, which reports
// anything still pending as cancelled. The server drains connections for up
// to ten seconds.
//
// # Error Handling
//
// Fatal errors (returned to the caller):
//   - Invalid configuration or unreadable config file
//   - Store, database or replay file that cannot be opened
//   - A listener that fails for a reason other than shutdown
//
// Recoverable errors (logged, the agent keeps running):
//   - Upload failures of any kind
//   - Step source failures
//   - Provider errors relayed by the scheduler
package app
