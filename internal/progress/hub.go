package progress

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 5 * time.Second

// Hub routes progress events to per-client WebSocket connections. A client
// connects once with its id and receives every event published for that id.
// Connections that fail a write are dropped; publishing to an absent client
// is a no-op.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *zap.SugaredLogger

	mu    sync.RWMutex
	conns map[string]*websocket.Conn

	// writeMu serializes writes; gorilla connections allow one concurrent
	// writer only.
	writeMu sync.Mutex
}

// NewHub creates a Hub.
func NewHub(logger *zap.SugaredLogger) *Hub {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Progress is read-only telemetry; any origin may subscribe.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
		conns:  make(map[string]*websocket.Conn),
	}
}

// ServeHTTP upgrades the request and registers the connection under
// clientID. A second connection for the same id replaces the first.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request, clientID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("websocket upgrade failed", "client", clientID, "error", err)
		return
	}

	h.mu.Lock()
	if old, ok := h.conns[clientID]; ok {
		old.Close()
	}
	h.conns[clientID] = conn
	h.mu.Unlock()
	h.logger.Infow("progress client connected", "client", clientID)

	// Drain reads so close frames and pings are processed; the first read
	// error means the client went away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.remove(clientID, conn)
				return
			}
		}
	}()
}

// Disconnect closes and forgets the connection for clientID, if any.
func (h *Hub) Disconnect(clientID string) {
	h.mu.Lock()
	conn, ok := h.conns[clientID]
	if ok {
		delete(h.conns, clientID)
	}
	h.mu.Unlock()
	if ok {
		conn.Close()
		h.logger.Infow("progress client disconnected", "client", clientID)
	}
}

// remove drops the registration only while conn is still the client's
// current connection. A stale drain goroutine or a failed write on a
// replaced connection must not tear down the replacement.
func (h *Hub) remove(clientID string, conn *websocket.Conn) {
	h.mu.Lock()
	current := h.conns[clientID] == conn
	if current {
		delete(h.conns, clientID)
	}
	h.mu.Unlock()

	conn.Close()
	if current {
		h.logger.Infow("progress client disconnected", "client", clientID)
	}
}

// Publish sends ev to the client's connection, dropping the connection on
// write failure. Implements Reporter.
func (h *Hub) Publish(clientID string, ev Event) {
	h.mu.RLock()
	conn, ok := h.conns[clientID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	h.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := conn.WriteJSON(ev)
	h.writeMu.Unlock()
	if err != nil {
		h.logger.Warnw("progress write failed, dropping client", "client", clientID, "error", err)
		h.remove(clientID, conn)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
