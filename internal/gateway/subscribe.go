package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rickgao/sourcewatch/internal/model"
	"github.com/rickgao/sourcewatch/internal/store"
)

// handleSubscribe runs a subscribe request on its own bounded context. The
// request arrived over the socket, so there is no HTTP context to inherit.
func (s *Server) handleSubscribe(connectionID string, req clientRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.subscribe(ctx, connectionID, req); err != nil {
		var rej rejection
		if errors.As(err, &rej) {
			s.logger.Debug("subscribe rejected",
				"connection_id", connectionID,
				"reason", rej.message,
			)
			s.reject(connectionID, rej.message)
			return
		}
		s.logger.Error("subscribe failed",
			"connection_id", connectionID,
			"error", err,
		)
		s.reject(connectionID, "internal error")
	}
}

// rejection is a client-input problem answered on the connection, as opposed
// to a server failure.
type rejection struct {
	message string
}

func (r rejection) Error() string { return r.message }

// subscribe binds the connection to a source and pushes the latest snapshot.
// A connection holds at most one subscription; subscribing again replaces it.
func (s *Server) subscribe(ctx context.Context, connectionID string, req clientRequest) error {
	// External sources name themselves by sourceId, sheets by sheetId.
	dataID := req.SheetID
	if req.SourceType == model.SourceTypeExternal {
		dataID = req.SourceID
	}
	if dataID == "" {
		return rejection{message: "Missing ID parameter"}
	}

	sourceType := req.SourceType
	if sourceType == "" {
		sourceType = model.SourceTypeSheet
	}

	if sourceType == model.SourceTypeExternal {
		if _, err := s.sources.Get(ctx, dataID); err != nil {
			if errors.Is(err, store.ErrSourceNotFound) {
				return rejection{message: "Source not found: " + dataID}
			}
			return err
		}
		if err := s.sources.IncrementSubscribers(ctx, dataID); err != nil {
			s.logger.Warn("failed to count subscriber",
				"source_id", dataID,
				"error", err,
			)
		}
	}

	if err := s.directory.UpsertSubscription(ctx, connectionID, dataID, sourceType); err != nil {
		return err
	}

	s.logger.Info("client subscribed",
		"connection_id", connectionID,
		"source_id", dataID,
		"source_type", sourceType,
	)

	return s.pushInitialData(ctx, connectionID, dataID, sourceType)
}

// pushInitialData sends the stored snapshot, when one exists, so the new
// subscriber does not wait for the next change.
func (s *Server) pushInitialData(ctx context.Context, connectionID, sourceID, sourceType string) error {
	snap, err := s.snapshots.GetLatest(ctx, sourceID)
	if err != nil {
		return err
	}
	if snap == nil {
		return nil
	}

	var data any
	if err := json.Unmarshal(snap.Payload, &data); err != nil {
		s.logger.Error("stored snapshot is not valid JSON",
			"source_id", sourceID,
			"error", err,
		)
		return nil
	}

	return s.pusher.Push(ctx, connectionID, model.InitialDataMessage(sourceID, sourceType, data, s.now()))
}
