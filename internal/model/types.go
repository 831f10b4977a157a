package model

import "time"

// SourceKind identifies the shape of a polled source.
type SourceKind string

const (
	// KindSheet is a tabular spreadsheet source (2-D array of cell values).
	KindSheet SourceKind = "sheet"
	// KindJSON is a JSON REST endpoint.
	KindJSON SourceKind = "json"
	// KindXML is an XML REST endpoint, normalized to a structural tree.
	KindXML SourceKind = "xml"
)

// Source type tags as they appear on the wire.
const (
	SourceTypeSheet    = "sheet"
	SourceTypeExternal = "external"
)

// Source is a registered polling target. Owned by the source registry; the
// core reads it and writes back LastChecked/LastUpdated only.
type Source struct {
	ID              string            // Primary key (opaque, unique)
	Kind            SourceKind        // sheet, json, or xml
	URL             string            // Endpoint URL (json/xml sources)
	SheetID         string            // Spreadsheet identifier (sheet sources)
	Range           string            // Cell range, e.g. "Sheet1!A1:Z1000"
	Headers         map[string]string // Static request header template
	SecretRef       string            // Optional secret reference for API keys
	PollInterval    time.Duration     // Per-source polling interval
	LastChecked     time.Time         // Last poll attempt (success or failure)
	LastUpdated     time.Time         // Last detected change
	SubscriberCount int               // Live subscriber count (external sources)
}

// SourceType returns the wire tag for this source's kind.
func (s Source) SourceType() string {
	if s.Kind == KindSheet {
		return SourceTypeSheet
	}
	return SourceTypeExternal
}

// HasLocation reports whether the source has somewhere to fetch from.
// Sources without a location are skipped by the scheduler, not failed.
func (s Source) HasLocation() bool {
	if s.Kind == KindSheet {
		return s.SheetID != ""
	}
	return s.URL != ""
}

// Snapshot is an immutable capture of a source's payload. Append-only: for a
// given source the record with the greatest CapturedAt is current.
type Snapshot struct {
	ID         string    // sourceID + capture timestamp
	SourceID   string    // Source this capture belongs to
	Payload    []byte    // Serialized JSON payload
	CapturedAt time.Time // Capture timestamp (record key)
}

// ChangeType classifies a detected change.
type ChangeType string

const (
	// ChangeInitial is emitted exactly once per source, on its first
	// successful poll.
	ChangeInitial ChangeType = "initial"
	// ChangeUpdate is emitted when the canonical payload differs from the
	// previous snapshot.
	ChangeUpdate ChangeType = "update"
)

// Change carries a classified payload change. No-change never produces one.
type Change struct {
	Type ChangeType `json:"type"`
	Data any        `json:"data"`
}

// ChangeEvent is the queue envelope published by the monitor and consumed by
// the fan-out dispatcher. Delivery is at-least-once; redelivery is harmless
// because subscribers replace their view wholesale.
type ChangeEvent struct {
	SourceID   string    `json:"sourceId"`
	SourceType string    `json:"sourceType"`
	Timestamp  time.Time `json:"timestamp"`
	Changes    Change    `json:"changes"`
}

// Connection is a live push-capable subscriber endpoint.
type Connection struct {
	ID          string    // Connection identity (uuid)
	SourceID    string    // Subscribed source, empty until subscribe
	SourceType  string    // "sheet" or "external", empty until subscribe
	ConnectedAt time.Time // When the client connected
	ExpiresAt   time.Time // Directory TTL
}
