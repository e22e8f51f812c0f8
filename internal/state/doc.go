// Package state holds a thread-safe snapshot of what the agent has done
// recently: the last accepted location, the last accepted step count and the
// outcome of the most recent upload.
//
// The updater writes through RecordFix, RecordSteps and RecordUpload; readers
// take copies with Snapshot. A failed upload keeps the previous data and
// records the error:
//
//	store.RecordUpload("steps", err)
//	→ snapshot.LastError = err
//	→ snapshot.ConsecutiveFailures++
//
// A successful upload clears LastError and resets the failure count.
// IsOffline reports two or more consecutive failures.
//
// The zero Store is ready to use. Snapshots never share the stored error
// value with callers.
package state
