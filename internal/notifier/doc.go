// Package notifier surfaces task failures to operators.
//
// It subscribes to the event bus, filters for task failure events, and emits
// high-signal warnings through the structured logger. Two throttles keep a
// hot failing task from flooding the output:
//
//   - a global token-bucket rate limit (rate_per_sec)
//   - a per-task dedup window suppressing repeats of the same failure
//
// For operator visibility it also keeps a small in-memory history of recent
// notifications.
package notifier
