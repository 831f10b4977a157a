package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/sourcewatch/internal/model"
)

// ErrSourceNotFound is returned when a source id is not registered.
var ErrSourceNotFound = errors.New("source not found")

// SourceStore reads and updates registered sources. Registration itself is
// owned by the admin surface; the core only reads sources and writes back
// last-checked / last-updated / subscriber-count.
type SourceStore struct {
	db *pgxpool.Pool
}

// NewSourceStore creates a SourceStore on the shared pool.
func NewSourceStore(db *pgxpool.Pool) *SourceStore {
	return &SourceStore{db: db}
}

const sourceColumns = `id, kind, url, sheet_id, cell_range, headers, secret_ref,
	poll_interval_seconds, last_checked, last_updated, subscriber_count`

// ListAll returns every registered source. The scheduler performs the
// interval check itself so a tick sees one consistent listing.
func (s *SourceStore) ListAll(ctx context.Context) ([]model.Source, error) {
	rows, err := s.db.Query(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// Get returns a single source by id.
func (s *SourceStore) Get(ctx context.Context, id string) (model.Source, error) {
	row := s.db.QueryRow(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = $1`, id)

	src, err := scanSource(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Source{}, ErrSourceNotFound
	}
	return src, err
}

// MarkChecked records a poll attempt, successful or not.
func (s *SourceStore) MarkChecked(ctx context.Context, id string, ts time.Time) error {
	_, err := s.db.Exec(ctx,
		`UPDATE sources SET last_checked = $2 WHERE id = $1`, id, ts)
	if err != nil {
		return fmt.Errorf("mark checked %s: %w", id, err)
	}
	return nil
}

// MarkUpdated records a detected change.
func (s *SourceStore) MarkUpdated(ctx context.Context, id string, ts time.Time) error {
	_, err := s.db.Exec(ctx,
		`UPDATE sources SET last_updated = $2 WHERE id = $1`, id, ts)
	if err != nil {
		return fmt.Errorf("mark updated %s: %w", id, err)
	}
	return nil
}

// IncrementSubscribers bumps the subscriber counter by one. The increment
// runs in the database, so concurrent subscribes are additive rather than
// last-write-wins.
func (s *SourceStore) IncrementSubscribers(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE sources SET subscriber_count = subscriber_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment subscribers %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSourceNotFound
	}
	return nil
}

func scanSource(row pgx.Row) (model.Source, error) {
	var (
		src             model.Source
		urlVal          *string
		sheetID         *string
		cellRange       *string
		headersJSON     []byte
		secretRef       *string
		intervalSeconds *int64
		lastChecked     *time.Time
		lastUpdated     *time.Time
	)

	err := row.Scan(&src.ID, &src.Kind, &urlVal, &sheetID, &cellRange, &headersJSON,
		&secretRef, &intervalSeconds, &lastChecked, &lastUpdated, &src.SubscriberCount)
	if err != nil {
		return model.Source{}, err
	}

	if urlVal != nil {
		src.URL = *urlVal
	}
	if sheetID != nil {
		src.SheetID = *sheetID
	}
	if cellRange != nil {
		src.Range = *cellRange
	}
	if secretRef != nil {
		src.SecretRef = *secretRef
	}
	if intervalSeconds != nil {
		src.PollInterval = time.Duration(*intervalSeconds) * time.Second
	}
	if lastChecked != nil {
		src.LastChecked = *lastChecked
	}
	if lastUpdated != nil {
		src.LastUpdated = *lastUpdated
	}
	if len(headersJSON) > 0 {
		if err := json.Unmarshal(headersJSON, &src.Headers); err != nil {
			return model.Source{}, fmt.Errorf("decode headers for %s: %w", src.ID, err)
		}
	}

	return src, nil
}
