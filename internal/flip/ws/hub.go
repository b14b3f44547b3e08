package ws

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"flipmarket/internal/flip/session"
)

const (
	pongWait   = 60 * time.Second
	writeWait  = 5 * time.Second
	readLimit  = 1024
	viewerKey  = "viewer_id"
	viewerHead = "X-Viewer-ID"
)

// Logger is the logging surface the hub needs.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// SessionEvent is pushed to a viewer whenever one of their sessions changes.
type SessionEvent struct {
	Type    string           `json:"type"`
	Session session.Snapshot `json:"session"`
}

// Hub keeps one live connection per viewer.
type Hub struct {
	upgrader websocket.Upgrader
	logger   Logger

	mu    sync.RWMutex
	conns map[string]*websocket.Conn
	wmu   map[string]*sync.Mutex
}

// NewHub constructs a hub.
func NewHub(logger Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		logger:   logger,
		conns:    make(map[string]*websocket.Conn),
		wmu:      make(map[string]*sync.Mutex),
	}
}

// ServeWS upgrades a viewer connection. A newer connection replaces an older one.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	viewerID := strings.TrimSpace(r.URL.Query().Get(viewerKey))
	if viewerID == "" {
		viewerID = strings.TrimSpace(r.Header.Get(viewerHead))
	}
	if viewerID == "" {
		http.Error(w, "missing viewer_id", http.StatusBadRequest)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("viewer ws upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	if old, ok := h.conns[viewerID]; ok {
		_ = old.Close()
	}
	h.conns[viewerID] = conn
	if _, ok := h.wmu[viewerID]; !ok {
		h.wmu[viewerID] = &sync.Mutex{}
	}
	h.mu.Unlock()

	go h.readLoop(viewerID, conn)
}

// Connected reports whether the viewer has a live connection.
func (h *Hub) Connected(viewerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[viewerID]
	return ok
}

func (h *Hub) readLoop(viewerID string, conn *websocket.Conn) {
	defer func() {
		conn.Close()
		h.mu.Lock()
		if h.conns[viewerID] == conn {
			delete(h.conns, viewerID)
			delete(h.wmu, viewerID)
		}
		h.mu.Unlock()
	}()

	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		if mt == websocket.TextMessage && strings.EqualFold(strings.TrimSpace(string(msg)), "ping") {
			h.safeWrite(viewerID, func(c *websocket.Conn) error {
				return c.WriteMessage(websocket.TextMessage, []byte("pong"))
			})
		}
	}
}

func (h *Hub) safeWrite(viewerID string, writer func(*websocket.Conn) error) {
	h.mu.RLock()
	conn := h.conns[viewerID]
	mu := h.wmu[viewerID]
	h.mu.RUnlock()
	if conn == nil || mu == nil {
		return
	}

	mu.Lock()
	defer mu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := writer(conn); err != nil {
		h.logger.Errorf("viewer %s write failed: %v", viewerID, err)
	}
}

// PushSession sends a session snapshot to the viewer if connected.
func (h *Hub) PushSession(viewerID string, snap session.Snapshot) {
	if !h.Connected(viewerID) {
		return
	}
	data, err := json.Marshal(SessionEvent{Type: "session", Session: snap})
	if err != nil {
		h.logger.Errorf("marshal session event: %v", err)
		return
	}
	h.safeWrite(viewerID, func(conn *websocket.Conn) error {
		return conn.WriteMessage(websocket.TextMessage, data)
	})
}

// Disconnect closes the viewer connection, if any.
func (h *Hub) Disconnect(viewerID string) {
	h.mu.Lock()
	conn := h.conns[viewerID]
	delete(h.conns, viewerID)
	delete(h.wmu, viewerID)
	h.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}
