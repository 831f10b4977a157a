package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rickgao/sourcewatch/internal/model"
)

// ErrGone is returned by a Transport when the push target no longer exists.
// It triggers directory cleanup, never an error surfaced to callers.
var ErrGone = errors.New("connection gone")

// Directory looks up and prunes subscribed connections.
type Directory interface {
	FindBySource(ctx context.Context, sourceID string) ([]model.Connection, error)
	Delete(ctx context.Context, connectionID string) error
}

// Transport pushes a message to a live connection. Implementations bound
// each push with their own write deadline.
type Transport interface {
	Push(ctx context.Context, connectionID string, msg model.Message) error
}

// Dispatcher delivers change events to subscribers.
type Dispatcher struct {
	directory Directory
	transport Transport
	logger    *slog.Logger
}

// New creates a Dispatcher.
func New(directory Directory, transport Transport, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		directory: directory,
		transport: transport,
		logger:    logger,
	}
}

// HandleEvent fans one change event out to every subscriber of its source.
// Only a failure to enumerate subscribers fails the event (making it eligible
// for redelivery); partial delivery failure does not.
func (d *Dispatcher) HandleEvent(ctx context.Context, ev model.ChangeEvent) error {
	attempted, err := d.OnEvent(ctx, ev)
	if err != nil {
		return err
	}
	d.logger.Info("change event dispatched",
		"source_id", ev.SourceID,
		"change_type", ev.Changes.Type,
		"deliveries", attempted,
	)
	return nil
}

// OnEvent performs the fan-out and returns the attempted delivery count.
func (d *Dispatcher) OnEvent(ctx context.Context, ev model.ChangeEvent) (int, error) {
	conns, err := d.directory.FindBySource(ctx, ev.SourceID)
	if err != nil {
		return 0, fmt.Errorf("find subscribers for %s: %w", ev.SourceID, err)
	}
	if len(conns) == 0 {
		return 0, nil
	}

	msg := model.UpdateMessage(ev.SourceID, ev.SourceType, ev.Changes.Data, ev.Timestamp)

	// Fan out and join: all deliveries launch at once and settle
	// independently.
	var wg sync.WaitGroup
	var delivered, failed, pruned atomic.Int64

	for _, conn := range conns {
		wg.Add(1)
		go func(connectionID string) {
			defer wg.Done()

			err := d.transport.Push(ctx, connectionID, msg)
			switch {
			case err == nil:
				delivered.Add(1)
			case errors.Is(err, ErrGone):
				pruned.Add(1)
				d.prune(ctx, connectionID)
			default:
				failed.Add(1)
				d.logger.Warn("delivery failed",
					"connection_id", connectionID,
					"source_id", ev.SourceID,
					"error", err,
				)
			}
		}(conn.ID)
	}

	wg.Wait()

	if failed.Load() > 0 || pruned.Load() > 0 {
		d.logger.Info("fan-out settled with failures",
			"source_id", ev.SourceID,
			"delivered", delivered.Load(),
			"failed", failed.Load(),
			"pruned", pruned.Load(),
		)
	}

	return len(conns), nil
}

// prune removes a connection whose endpoint is gone.
func (d *Dispatcher) prune(ctx context.Context, connectionID string) {
	d.logger.Info("pruning stale connection", "connection_id", connectionID)
	if err := d.directory.Delete(ctx, connectionID); err != nil {
		d.logger.Error("failed to prune connection",
			"connection_id", connectionID,
			"error", err,
		)
	}
}
