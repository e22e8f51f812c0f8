// Package kv persists small agent values (previous location, step counts)
// behind a string-valued Store.
//
// Backends:
//
//   - FileStore: one TOML file, rewritten atomically on every change
//   - SQLiteStore: a kv table in a SQLite database
//   - RedisStore: plain Redis strings under a key prefix
//   - MemoryStore: process-local, for tests and ephemeral runs
//
// Typed helpers (GetFloat, SetInt, GetTime, ...) encode values as text so
// every backend stores the same representation. A missing key is reported
// with ok=false and a nil error; a value that fails to parse is an error.
package kv
