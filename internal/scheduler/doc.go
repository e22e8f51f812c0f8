// Package scheduler obtains location fixes that meet an accuracy threshold,
// trading battery for accuracy on a timer.
//
// A cycle starts with active updates (ActivePolling). Each batch handed to
// HandleFixes is buffered; when the newest fix is accurate enough the batch is
// delivered to the Delegate, active updates stop and a re-poll timer is armed
// (Escalated). Inaccurate fixes arm a short wait timer (Waiting) that re-checks
// the buffer. An optional timeout forces delivery of whatever is buffered.
//
// While escalated the scheduler holds a Budget window so the process keeps
// running until the next poll. Timers come from an injected Clock; tests drive
// them with a manual clock.
//
// Delegate methods are always called without the scheduler lock held.
package scheduler
