// Package store provides the Postgres-backed collaborators: the source
// registry, the append-only snapshot store, and the subscription directory.
//
// Every mutation is a single-record atomic statement; no cross-record
// transaction is needed anywhere in the core. Snapshots are append-only and
// never updated or deleted here.
package store
