package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/sourcewatch/internal/dispatch"
	"github.com/rickgao/sourcewatch/internal/model"
)

// Hub tracks the websocket connections hosted by this process and implements
// the dispatcher's push transport against them.
type Hub struct {
	writeTimeout time.Duration
	logger       *slog.Logger

	mu    sync.RWMutex
	conns map[string]*hubConn
}

type hubConn struct {
	conn *websocket.Conn

	// Serializes writes; gorilla connections allow one concurrent writer.
	writeMu sync.Mutex
}

// NewHub creates an empty Hub.
func NewHub(writeTimeout time.Duration, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		writeTimeout: writeTimeout,
		logger:       logger,
		conns:        make(map[string]*hubConn),
	}
}

// Add registers a connection under its identity.
func (h *Hub) Add(connectionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[connectionID] = &hubConn{conn: conn}
}

// Remove drops a connection from the hub. Safe to call twice.
func (h *Hub) Remove(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, connectionID)
}

// CloseAll closes every connection. Each read loop observes the close and
// runs its own cleanup.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	conns := make([]*hubConn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.conn.Close()
	}
}

// Len returns the number of live connections, for health reporting.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Push writes one message to a connection. An unknown identity or a dead
// socket reports dispatch.ErrGone so the dispatcher prunes the directory;
// a write timeout is an ordinary failure, the connection may recover.
func (h *Hub) Push(ctx context.Context, connectionID string, msg model.Message) error {
	h.mu.RLock()
	c, ok := h.conns[connectionID]
	h.mu.RUnlock()

	if !ok {
		return dispatch.ErrGone
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	if err := c.conn.WriteJSON(msg); err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return fmt.Errorf("push to %s: %w", connectionID, err)
		}
		// Any other write failure means the socket is unusable.
		h.Remove(connectionID)
		c.conn.Close()
		return fmt.Errorf("push to %s: %w", connectionID, dispatch.ErrGone)
	}

	return nil
}
