package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func dialHub(t *testing.T, hub *Hub, channel string) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.AddConnection(channel, conn)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount(channel) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("connection never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return client
}

func TestPublishReachesSubscribers(t *testing.T) {
	hub := NewHub()
	channel := RoomChannel(1)
	client := dialHub(t, hub, channel)

	hub.Publish(channel, "progress_updated", map[string]int{"value": 42})

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != "progress_updated" {
		t.Fatalf("unexpected message type %q", msg.Type)
	}
}

func TestPublishToEmptyChannel(t *testing.T) {
	hub := NewHub()
	// No subscribers: publish must be a silent no-op.
	hub.Publish(CompetitionChannel(9), "ranking_updated", nil)
	if got := hub.SubscriberCount(CompetitionChannel(9)); got != 0 {
		t.Fatalf("expected 0 subscribers, got %d", got)
	}
}
