// Package model defines shared data types used across sourcewatch.
//
// Conventions:
//   - Timestamps: time.Time, serialized as RFC 3339 (ISO 8601) on the wire
//   - Payloads: decoded JSON values (any) in memory, serialized JSON in storage
//   - IDs: string for sources, uuid-formatted string for connections
package model
