// Package config loads Jottly's agent and server configuration.
//
// # Resolution Order
//
// Load layers its sources, later ones winning:
//
//  1. Built-in defaults (see Default)
//  2. The TOML file, ~/.config/jottly/config.toml unless a path is given
//  3. A dotenv file (".env" in the working directory by default), which
//     only fills variables the process environment does not already set
//  4. PORT, which sets listen_addr to ":<PORT>"
//  5. JOTTLY_* environment variables
//
// The result is then validated. A missing TOML or dotenv file is not an
// error; the agent runs out of the box against a local ingest server.
//
// # Environment Names
//
// Variables are the upper-cased, underscore-separated field path under the
// JOTTLY prefix:
//
//	JOTTLY_INGEST_URL=https://jot.example.com
//	JOTTLY_STORE_BACKEND=redis
//	JOTTLY_STORE_ADDR=127.0.0.1:6379
//	JOTTLY_DEFAULTS_POLL_INTERVAL=2m
//	JOTTLY_ALLOWED_ORIGINS=https://a.example,https://b.example
//
// # TOML Format
//
//	ingest_url = "https://jot.example.com"
//	listen_addr = "127.0.0.1:8080"
//	database = "postgres://jottly@localhost/jottly"
//	log_level = "debug"
//
//	[store]
//	backend = "sqlite"
//	path = "~/.local/state/jottly/store.db"
//
//	[log_store]
//	backend = "kv"
//	max_entries = 1000
//
//	[scheduler]
//	min_interval = "2s"
//	max_interval = "170s"
//	accuracy_floor = 5
//	wait_delay = "3s"
//	restart_delay = "1s"
//	budget_window = "30s"
//
//	[defaults]
//	poll_interval = "60s"
//	accuracy_threshold = 20
//	timeout = "30s"
//	steps_interval = "15m"
//
//	[breaker]
//	max_failures = 5
//	open_timeout = "30s"
//
//	[replay]
//	path = "~/fixes.jsonl"
//	interval = "1s"
//	loop = true
//
// Durations use time.ParseDuration syntax. A defaults.timeout of zero or
// less disables the scheduler timeout.
//
// # Path Expansion
//
// Tilde and relative paths are made absolute for the config file itself and
// for store.path, log_store.path, replay.path and a file-backed database.
// Database values containing "://" or equal to "memory" are left as-is.
//
// # Validation
//
// Load fails when a store or log store backend is unknown, when the redis
// backend has no address, when max_interval is below min_interval, or when a
// required value is blank.
package config
