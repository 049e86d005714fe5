package ws

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub fans messages out to every connection subscribed to a channel.
// Delivery is best-effort: a write error drops the connection and the
// publish never reports failure to the caller.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*websocket.Conn]bool
}

func NewHub() *Hub {
	return &Hub{
		channels: make(map[string]map[*websocket.Conn]bool),
	}
}

func RoomChannel(roomID uint) string {
	return fmt.Sprintf("room:%d", roomID)
}

func CompetitionChannel(competitionID uint) string {
	return fmt.Sprintf("competition:%d", competitionID)
}

func (h *Hub) AddConnection(channel string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.channels[channel] == nil {
		h.channels[channel] = make(map[*websocket.Conn]bool)
	}
	h.channels[channel][conn] = true
	log.Printf("ws: client connected to %s (total: %d)", channel, len(h.channels[channel]))
}

func (h *Hub) RemoveConnection(channel string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.channels[channel]; ok {
		delete(conns, conn)
		conn.Close()
		if len(conns) == 0 {
			delete(h.channels, channel)
		}
		log.Printf("ws: client disconnected from %s", channel)
	}
}

func (h *Hub) Publish(channel, eventType string, payload interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.channels[channel]
	if !ok {
		return
	}

	data, err := json.Marshal(Message{Type: eventType, Data: payload})
	if err != nil {
		log.Printf("ws: marshal error: %v", err)
		return
	}

	for conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("ws: write error on %s: %v", channel, err)
			conn.Close()
			delete(conns, conn)
		}
	}
}

// SubscriberCount reports how many connections a channel currently has.
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}
