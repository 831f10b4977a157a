package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/sourcewatch/internal/model"
)

// ConnectionStore is the subscription directory: it maps live connections to
// the source each one watches. It is mutated concurrently by subscribe,
// disconnect, and prune-on-delivery-failure; every mutation is a single
// atomic statement.
type ConnectionStore struct {
	db *pgxpool.Pool
}

// NewConnectionStore creates a ConnectionStore on the shared pool.
func NewConnectionStore(db *pgxpool.Pool) *ConnectionStore {
	return &ConnectionStore{db: db}
}

// Create registers a freshly connected client with a directory TTL.
func (s *ConnectionStore) Create(ctx context.Context, connectionID string, connectedAt time.Time, ttl time.Duration) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO connections (id, connected_at, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, connectionID, connectedAt, connectedAt.Add(ttl))
	if err != nil {
		return fmt.Errorf("create connection %s: %w", connectionID, err)
	}
	return nil
}

// Delete removes a connection, whether it disconnected cleanly or a push
// reported it gone. Deleting an absent record is not an error.
func (s *ConnectionStore) Delete(ctx context.Context, connectionID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM connections WHERE id = $1`, connectionID)
	if err != nil {
		return fmt.Errorf("delete connection %s: %w", connectionID, err)
	}
	return nil
}

// UpsertSubscription points a connection at a source, replacing any prior
// subscription. A connection watches at most one source at a time.
func (s *ConnectionStore) UpsertSubscription(ctx context.Context, connectionID, sourceID, sourceType string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE connections SET source_id = $2, source_type = $3 WHERE id = $1
	`, connectionID, sourceID, sourceType)
	if err != nil {
		return fmt.Errorf("upsert subscription %s: %w", connectionID, err)
	}
	return nil
}

// FindBySource returns every connection subscribed to a source.
func (s *ConnectionStore) FindBySource(ctx context.Context, sourceID string) ([]model.Connection, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, source_id, source_type, connected_at, expires_at
		FROM connections
		WHERE source_id = $1
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("find subscribers %s: %w", sourceID, err)
	}
	defer rows.Close()

	var conns []model.Connection
	for rows.Next() {
		var (
			conn       model.Connection
			srcID      *string
			sourceType *string
		)
		if err := rows.Scan(&conn.ID, &srcID, &sourceType, &conn.ConnectedAt, &conn.ExpiresAt); err != nil {
			return nil, err
		}
		if srcID != nil {
			conn.SourceID = *srcID
		}
		if sourceType != nil {
			conn.SourceType = *sourceType
		}
		conns = append(conns, conn)
	}
	return conns, rows.Err()
}
