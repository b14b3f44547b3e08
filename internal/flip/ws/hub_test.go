package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"flipmarket/internal/flip/fsm"
	"flipmarket/internal/flip/session"
)

type testLogger struct{}

func (testLogger) Infof(string, ...interface{})  {}
func (testLogger) Errorf(string, ...interface{}) {}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/sessions" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitConnected(t *testing.T, h *Hub, viewerID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !h.Connected(viewerID) {
		if time.Now().After(deadline) {
			t.Fatalf("viewer %s never registered", viewerID)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPushSession(t *testing.T) {
	hub := NewHub(testLogger{})
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()

	conn := dial(t, server, "?viewer_id=v1")
	waitConnected(t, hub, "v1")

	hub.PushSession("v1", session.Snapshot{ItemID: "2", Mode: fsm.ModeFlip, Request: fsm.RequestIdle, Version: 3})
	hub.PushSession("nobody", session.Snapshot{ItemID: "9"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev SessionEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != "session" || ev.Session.ItemID != "2" || ev.Session.Version != 3 {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestTextPing(t *testing.T) {
	hub := NewHub(testLogger{})
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()

	conn := dial(t, server, "?viewer_id=v2")
	if err := conn.WriteMessage(websocket.TextMessage, []byte(" PING ")); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(msg) != "pong" {
		t.Fatalf("expected pong, got %q", msg)
	}
}

func TestServeWSRequiresViewer(t *testing.T) {
	hub := NewHub(testLogger{})
	rec := httptest.NewRecorder()
	hub.ServeWS(rec, httptest.NewRequest(http.MethodGet, "/ws/sessions", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDisconnect(t *testing.T) {
	hub := NewHub(testLogger{})
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()

	dial(t, server, "?viewer_id=v3")
	waitConnected(t, hub, "v3")
	hub.Disconnect("v3")
	if hub.Connected("v3") {
		t.Fatal("viewer must be disconnected")
	}
}
