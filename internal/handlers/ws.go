package handlers

import (
	"log"
	"net/http"

	"focusroom-backend/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	hub *ws.Hub
}

func NewWSHandler(hub *ws.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleRoomSocket godoc
// @Summary      WebSocket connection for room events
// @Description  Invitation, challenge and presence events for one room
// @Tags         websocket
// @Param        id path int true "Room ID"
// @Router       /ws/rooms/{id} [get]
func (h *WSHandler) HandleRoomSocket(c *gin.Context) {
	roomID, ok := paramID(c, "id")
	if !ok {
		return
	}
	h.serve(c, ws.RoomChannel(roomID))
}

// HandleCompetitionSocket godoc
// @Summary      WebSocket connection for live competition updates
// @Tags         websocket
// @Param        id path int true "Competition ID"
// @Router       /ws/competitions/{id} [get]
func (h *WSHandler) HandleCompetitionSocket(c *gin.Context) {
	competitionID, ok := paramID(c, "id")
	if !ok {
		return
	}
	h.serve(c, ws.CompetitionChannel(competitionID))
}

func (h *WSHandler) serve(c *gin.Context, channel string) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	h.hub.AddConnection(channel, conn)
	defer h.hub.RemoveConnection(channel, conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
