package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/sourcewatch/internal/model"
)

// Directory is the subscription directory as the gateway uses it.
type Directory interface {
	Create(ctx context.Context, connectionID string, connectedAt time.Time, ttl time.Duration) error
	Delete(ctx context.Context, connectionID string) error
	UpsertSubscription(ctx context.Context, connectionID, sourceID, sourceType string) error
}

// SourceRegistry verifies external sources and counts their subscribers.
type SourceRegistry interface {
	Get(ctx context.Context, id string) (model.Source, error)
	IncrementSubscribers(ctx context.Context, id string) error
}

// SnapshotReader serves the latest snapshot for the initial-data push.
type SnapshotReader interface {
	GetLatest(ctx context.Context, sourceID string) (*model.Snapshot, error)
}

// Pusher delivers a message to a live connection.
type Pusher interface {
	Push(ctx context.Context, connectionID string, msg model.Message) error
}

// Config holds gateway settings.
type Config struct {
	WriteTimeout  time.Duration // Per-push write deadline
	ConnectionTTL time.Duration // Directory record TTL (default: 24h)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:  10 * time.Second,
		ConnectionTTL: 24 * time.Hour,
	}
}

// Server accepts websocket clients and handles their subscribe requests.
type Server struct {
	cfg       Config
	hub       *Hub
	pusher    Pusher
	directory Directory
	sources   SourceRegistry
	snapshots SnapshotReader
	logger    *slog.Logger

	upgrader websocket.Upgrader

	// now is the connection clock, replaceable in tests.
	now func() time.Time

	wg sync.WaitGroup
}

// NewServer creates a gateway server pushing through the hub.
func NewServer(cfg Config, hub *Hub, directory Directory, sources SourceRegistry, snapshots SnapshotReader, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		hub:       hub,
		pusher:    hub,
		directory: directory,
		sources:   sources,
		snapshots: snapshots,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from app origins the gateway does not
			// know in advance; subscriber auth is out of scope here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		now: time.Now,
	}
}

// Stop closes every live connection and waits for their read loops to finish
// cleaning up the hub and the directory.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.CloseAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("gateway stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handler returns the gateway's HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/ws", s.handleWS)
	return r
}

// clientRequest is the inbound frame shape. Clients name either a sheet or
// an external source.
type clientRequest struct {
	Action     string `json:"action"`
	SheetID    string `json:"sheetId"`
	SourceID   string `json:"sourceId"`
	SourceType string `json:"sourceType"`
}

// handleWS upgrades the connection and serves its request loop until the
// client goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	connectionID := uuid.NewString()
	ctx := r.Context()

	if err := s.directory.Create(ctx, connectionID, s.now(), s.cfg.ConnectionTTL); err != nil {
		s.logger.Error("failed to register connection",
			"connection_id", connectionID,
			"error", err,
		)
		conn.Close()
		return
	}

	s.hub.Add(connectionID, conn)
	s.logger.Info("client connected", "connection_id", connectionID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.readLoop(connectionID, conn)
	}()
}

// readLoop consumes client frames until the connection drops, then cleans up
// both the hub and the directory.
func (s *Server) readLoop(connectionID string, conn *websocket.Conn) {
	defer func() {
		s.hub.Remove(connectionID)
		conn.Close()

		// Cleanup uses a fresh context: the request context died with the
		// socket.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.directory.Delete(ctx, connectionID); err != nil {
			s.logger.Error("failed to deregister connection",
				"connection_id", connectionID,
				"error", err,
			)
		}
		s.logger.Info("client disconnected", "connection_id", connectionID)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var req clientRequest
		if err := json.Unmarshal(data, &req); err != nil {
			s.reject(connectionID, "invalid request body")
			continue
		}

		switch req.Action {
		case "subscribe":
			s.handleSubscribe(connectionID, req)
		default:
			s.reject(connectionID, "unsupported action: "+req.Action)
		}
	}
}

// reject answers a bad request on the connection itself.
func (s *Server) reject(connectionID, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
	defer cancel()

	err := s.pusher.Push(ctx, connectionID, model.Message{
		Type:      "ERROR",
		Data:      message,
		Timestamp: s.now(),
	})
	if err != nil {
		s.logger.Debug("failed to send rejection",
			"connection_id", connectionID,
			"error", err,
		)
	}
}
