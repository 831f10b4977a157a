package queue

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventRows is the pgx-backed RecordStore over the events table.
type EventRows struct {
	db *pgxpool.Pool
}

// NewEventRows creates an EventRows on the shared pool.
func NewEventRows(db *pgxpool.Pool) *EventRows {
	return &EventRows{db: db}
}

// Claim fetches the next batch of unprocessed rows after the cursor.
func (r *EventRows) Claim(ctx context.Context, afterID int64, limit int) ([]Record, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, body FROM events
		WHERE processed_at IS NULL AND id > $1
		ORDER BY id
		LIMIT $2
	`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("claim events: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Body); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// MarkProcessed settles a row so no later wake re-claims it.
func (r *EventRows) MarkProcessed(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `UPDATE events SET processed_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark event %d processed: %w", id, err)
	}
	return nil
}
