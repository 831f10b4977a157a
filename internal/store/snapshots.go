package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/sourcewatch/internal/model"
)

// SnapshotStore is the append-only snapshot history. For a given source the
// record with the greatest captured_at is current; nothing here ever mutates
// or deletes a record.
type SnapshotStore struct {
	db *pgxpool.Pool
}

// NewSnapshotStore creates a SnapshotStore on the shared pool.
func NewSnapshotStore(db *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// GetLatest returns the current snapshot for a source, or nil when the
// source has never been captured.
func (s *SnapshotStore) GetLatest(ctx context.Context, sourceID string) (*model.Snapshot, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, source_id, payload, captured_at
		FROM snapshots
		WHERE source_id = $1
		ORDER BY captured_at DESC
		LIMIT 1
	`, sourceID)

	var snap model.Snapshot
	err := row.Scan(&snap.ID, &snap.SourceID, &snap.Payload, &snap.CapturedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest snapshot %s: %w", sourceID, err)
	}
	return &snap, nil
}

// Append records a new capture. The record key embeds the capture timestamp,
// keeping keys monotonically increasing per source.
func (s *SnapshotStore) Append(ctx context.Context, sourceID string, payload []byte, capturedAt time.Time) error {
	id := fmt.Sprintf("%s-%s", sourceID, capturedAt.UTC().Format(time.RFC3339Nano))

	_, err := s.db.Exec(ctx, `
		INSERT INTO snapshots (id, source_id, payload, captured_at)
		VALUES ($1, $2, $3, $4)
	`, id, sourceID, payload, capturedAt)
	if err != nil {
		return fmt.Errorf("append snapshot %s: %w", sourceID, err)
	}
	return nil
}
