// Package agent implements the in-process task runner: an Agent owns an
// ordered registry of named tasks and invokes the ones that are due, either
// in a single sweep (RunOnce) or in a ticking loop (Run) until stopped.
//
// Execution is strictly sequential unless max_concurrent_tasks raises the
// sweep width. A task action's error is recorded on the task and in the sweep
// result; it never propagates to the caller and never aborts the sweep.
package agent
