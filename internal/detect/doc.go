// Package detect classifies a freshly fetched payload against the latest
// stored snapshot.
//
// The detector reports "changed" or "unchanged" only; it never computes a
// field-level diff. Comparison happens on a canonical serialized form, so
// structurally equal payloads never produce a false positive.
package detect
