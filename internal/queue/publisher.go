package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/sourcewatch/internal/model"
)

// Publisher appends change events to the queue and wakes consumers.
type Publisher struct {
	db      *pgxpool.Pool
	channel string
	logger  *slog.Logger
}

// NewPublisher creates a Publisher notifying on the given channel.
func NewPublisher(db *pgxpool.Pool, channel string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		db:      db,
		channel: channel,
		logger:  logger,
	}
}

// Publish enqueues one event. The insert is the delivery guarantee; the
// notify is only a wakeup, so its failure is logged and swallowed (the
// consumer's poll fallback picks the row up).
func (p *Publisher) Publish(ctx context.Context, ev model.ChangeEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	if _, err := p.db.Exec(ctx, `INSERT INTO events (body) VALUES ($1)`, body); err != nil {
		return fmt.Errorf("enqueue event for %s: %w", ev.SourceID, err)
	}

	if _, err := p.db.Exec(ctx, `SELECT pg_notify($1, '')`, p.channel); err != nil {
		p.logger.Warn("event notify failed, consumer will poll",
			"source_id", ev.SourceID,
			"error", err,
		)
	}

	p.logger.Info("change event published",
		"source_id", ev.SourceID,
		"change_type", ev.Changes.Type,
	)
	return nil
}
