package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"trendgallery/ingest"
)

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func waitForClients(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.clientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", want, h.clientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubBroadcastDelivers(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	t.Cleanup(hub.Shutdown)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleWebSocket(hub, w, r)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitForClients(t, hub, 1)

	hub.SessionUpdate(ingest.Session{ID: "s1", Status: "running"}, "parsing account")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if msg.Type != "session_update" || msg.Session == nil || msg.Session.ID != "s1" {
		t.Fatalf("unexpected frame: %+v", msg)
	}
}

// A client that never drains its send channel must be dropped by the
// broadcast loop, and that removal is a map write on the clients map.
func TestHubDropsStalledClient(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	t.Cleanup(hub.Shutdown)

	stalled := &Client{hub: hub, send: make(chan []byte)}
	hub.register <- stalled
	waitForClients(t, hub, 1)

	hub.Broadcast(Message{Type: "session_update", Message: "x"})
	waitForClients(t, hub, 0)

	select {
	case _, ok := <-stalled.send:
		if ok {
			t.Fatal("send channel should be closed, got a frame")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("send channel not closed")
	}
}
