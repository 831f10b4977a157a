// Package scheduler implements the poll scheduler.
//
// The scheduler:
//   - Wakes on a fixed global tick and polls every source that is due
//   - Runs the per-source pipeline: fetch, detect, snapshot, publish
//   - Records last-checked on every attempt, success or failure
//   - Isolates failures per source: one bad source never stalls the fleet
//
// Retry is implicit via the next scheduled tick, never immediate.
package scheduler
