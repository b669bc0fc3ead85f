package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialWebSocket(t *testing.T, ts *testServer) (*websocket.Conn, *httptest.Server) {
	t.Helper()

	httpServer := httptest.NewServer(ts.server)
	t.Cleanup(httpServer.Close)

	url := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn, httpServer
}

func TestWebSocketReceivesRefreshNotification(t *testing.T) {
	ts := setupTestServer(t)
	conn, _ := dialWebSocket(t, ts)

	// Registration is synchronous within the upgrade handler; wait for
	// the hub to see the connection before broadcasting.
	deadline := time.Now().Add(2 * time.Second)
	for ts.server.hub.Count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Observer never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	delivered := ts.server.hub.Broadcast(map[string]string{"type": "data_refreshed"})
	if delivered != 1 {
		t.Fatalf("Expected broadcast to reach 1 observer, got %d", delivered)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read notification: %v", err)
	}

	var msg map[string]string
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("Notification is not JSON: %v", err)
	}
	if msg["type"] != "data_refreshed" {
		t.Errorf("Expected data_refreshed, got %s", msg["type"])
	}
}

func TestWebSocketAnswersClientMessages(t *testing.T) {
	ts := setupTestServer(t)
	conn, _ := dialWebSocket(t, ts)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatalf("Failed to send message: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read reply: %v", err)
	}

	var msg map[string]string
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("Reply is not JSON: %v", err)
	}
	if msg["type"] != "ping" {
		t.Errorf("Expected ping reply, got %s", msg["type"])
	}
	if _, err := time.Parse(time.RFC3339, msg["timestamp"]); err != nil {
		t.Errorf("Expected RFC3339 timestamp, got %q", msg["timestamp"])
	}
}

func TestWebSocketDisconnectUnregisters(t *testing.T) {
	ts := setupTestServer(t)
	conn, _ := dialWebSocket(t, ts)

	deadline := time.Now().Add(2 * time.Second)
	for ts.server.hub.Count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Observer never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	conn.Close()

	deadline = time.Now().Add(2 * time.Second)
	for ts.server.hub.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("Observer never unregistered after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
