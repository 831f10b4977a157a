package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/sourcewatch/internal/model"
)

// Handler processes one consumed change event. A returned error leaves the
// row unprocessed for redelivery on a later wake.
type Handler interface {
	HandleEvent(ctx context.Context, ev model.ChangeEvent) error
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx context.Context, ev model.ChangeEvent) error

func (f HandlerFunc) HandleEvent(ctx context.Context, ev model.ChangeEvent) error {
	return f(ctx, ev)
}

// Record is one queued event row.
type Record struct {
	ID   int64
	Body []byte
}

// RecordStore claims and settles pending event rows, as the consumer uses it.
type RecordStore interface {
	Claim(ctx context.Context, afterID int64, limit int) ([]Record, error)
	MarkProcessed(ctx context.Context, id int64) error
}

// Config holds consumer settings.
type Config struct {
	Channel      string        // LISTEN channel name
	BatchSize    int           // Max rows claimed per wake
	PollInterval time.Duration // Fallback poll when notifies are missed
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Channel:      "sourcewatch_events",
		BatchSize:    100,
		PollInterval: 30 * time.Second,
	}
}

// Consumer drains the events table and hands each record to a Handler.
// Records fail individually: a malformed or rejected record never aborts the
// rest of its batch.
type Consumer struct {
	cfg     Config
	db      *pgxpool.Pool
	records RecordStore
	handler Handler
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConsumer creates a Consumer draining the events table on db.
func NewConsumer(cfg Config, db *pgxpool.Pool, handler Handler, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		cfg:     cfg,
		db:      db,
		records: NewEventRows(db),
		handler: handler,
		logger:  logger,
	}
}

// Start begins consuming in the background.
func (c *Consumer) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go c.run()

	c.logger.Info("event consumer started",
		"channel", c.cfg.Channel,
		"batch_size", c.cfg.BatchSize,
	)
	return nil
}

// Stop shuts down the consumer.
func (c *Consumer) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("event consumer stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run drains pending rows, then blocks on LISTEN with a poll fallback.
func (c *Consumer) run() {
	defer c.wg.Done()

	for {
		if c.ctx.Err() != nil {
			return
		}

		c.drain(c.ctx)

		if err := c.waitForWake(); err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Warn("listen failed, falling back to sleep", "error", err)
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(c.cfg.PollInterval):
			}
		}
	}
}

// waitForWake blocks until a notify arrives, the poll interval elapses, or
// the consumer stops.
func (c *Consumer) waitForWake() error {
	conn, err := c.db.Acquire(c.ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	listen := "LISTEN " + pgx.Identifier{c.cfg.Channel}.Sanitize()
	if _, err := conn.Exec(c.ctx, listen); err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(c.ctx, c.cfg.PollInterval)
	defer cancel()

	_, err = conn.Conn().WaitForNotification(waitCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		// Poll fallback: treat the elapsed interval as a wake.
		return nil
	}
	return err
}

// drain claims and processes pending rows in batches. Each pending row is
// attempted at most once per wake, so a failing record cannot spin the loop.
func (c *Consumer) drain(ctx context.Context) {
	var afterID int64

	for {
		records, err := c.records.Claim(ctx, afterID, c.cfg.BatchSize)
		if err != nil {
			c.logger.Error("failed to claim events", "error", err)
			return
		}
		if len(records) == 0 {
			return
		}

		for _, rec := range records {
			afterID = rec.ID
			c.process(ctx, rec)
		}
	}
}

// process handles a single record. Malformed bodies are discarded (marking
// them processed) because redelivery can never fix them; handler failures
// leave the row for redelivery.
func (c *Consumer) process(ctx context.Context, rec Record) {
	ev, err := decodeEvent(rec.Body)
	if err != nil {
		c.logger.Error("discarding malformed event record",
			"record_id", rec.ID,
			"error", err,
		)
		c.markProcessed(ctx, rec.ID)
		return
	}

	if err := c.handler.HandleEvent(ctx, ev); err != nil {
		c.logger.Error("event handling failed, leaving for redelivery",
			"record_id", rec.ID,
			"source_id", ev.SourceID,
			"error", err,
		)
		return
	}

	c.markProcessed(ctx, rec.ID)
}

func (c *Consumer) markProcessed(ctx context.Context, id int64) {
	if err := c.records.MarkProcessed(ctx, id); err != nil {
		c.logger.Error("failed to mark event processed", "record_id", id, "error", err)
	}
}

// decodeEvent deserializes a queue record body.
func decodeEvent(body []byte) (model.ChangeEvent, error) {
	var ev model.ChangeEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return model.ChangeEvent{}, err
	}
	return ev, nil
}
