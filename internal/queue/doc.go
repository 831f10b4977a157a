// Package queue moves change events from the monitor to the pushgate over a
// Postgres-backed queue (events table + LISTEN/NOTIFY wakeups).
//
// Delivery is at-least-once: rows are marked processed only after the handler
// returns, so a crash mid-batch redelivers. Consumers must be idempotent,
// which holds here because subscribers replace their view of a source
// wholesale on every push.
package queue
