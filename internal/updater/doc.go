// Package updater decides what the agent uploads.
//
// Manager is the scheduler's delegate. For every delivered batch it compares
// the newest fix with the previous location (kept in memory and in the
// kv.Store so it survives restarts). Moving more than 100 m resets the
// stationary counter; otherwise the counter grows, and after four stationary
// updates the scheduler is stopped until a passive trigger starts it again.
// Each fix is uploaded as a "location" jot and steps are collected.
//
// Step counts go through the monotonic-max policy with a date boundary:
//
//	no stored value              accept
//	stored day after today       reject
//	stored day before today      accept (new day)
//	same day                     accept only if higher
//
// Upload outcomes are recorded in a state.Store. Nothing is retried.
package updater
