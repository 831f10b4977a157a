package detect

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/rickgao/sourcewatch/internal/model"
)

// Detect compares current against previous and classifies the result.
//
// previous may be nil (first-ever poll), a structured value, or the
// serialized-string form of the last snapshot; both sides are normalized to
// the same canonical representation before comparing. A nil return with a
// nil error means no change: no event, no snapshot write, no publish.
func Detect(current, previous any) (*model.Change, error) {
	if previous == nil {
		return &model.Change{Type: model.ChangeInitial, Data: current}, nil
	}

	currCanon, err := Canonical(current)
	if err != nil {
		return nil, fmt.Errorf("canonicalize current: %w", err)
	}

	prev, err := normalize(previous)
	if err != nil {
		return nil, fmt.Errorf("normalize previous: %w", err)
	}
	prevCanon, err := Canonical(prev)
	if err != nil {
		return nil, fmt.Errorf("canonicalize previous: %w", err)
	}

	if bytes.Equal(currCanon, prevCanon) {
		return nil, nil
	}

	return &model.Change{Type: model.ChangeUpdate, Data: current}, nil
}

// Canonical returns the canonical serialized form of a payload. Object keys
// are emitted in sorted order by the encoder, so the same input always
// canonicalizes identically.
func Canonical(payload any) ([]byte, error) {
	return json.Marshal(payload)
}

// normalize deserializes string-form snapshots so that stored and in-memory
// payloads compare on equal footing. Decoding then re-encoding also collapses
// representation differences such as insignificant whitespace.
func normalize(previous any) (any, error) {
	var raw []byte
	switch v := previous.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return previous, nil
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}
