package handlers

import (
	"net/http"

	"focusroom-backend/internal/services"

	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	sessionService *services.SessionService
}

func NewSessionHandler(sessionService *services.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

type CompleteSessionRequest struct {
	DurationMinutes int     `json:"duration_minutes"`
	FocusScore      float64 `json:"focus_score"`
}

func (h *SessionHandler) StartSession(c *gin.Context) {
	userID := c.GetUint("user_id")
	roomID, ok := paramID(c, "id")
	if !ok {
		return
	}

	session, err := h.sessionService.StartSession(roomID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *SessionHandler) CompleteSession(c *gin.Context) {
	userID := c.GetUint("user_id")
	sessionID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req CompleteSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	session, err := h.sessionService.CompleteSession(sessionID, userID, req.DurationMinutes, req.FocusScore)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) ListRoomSessions(c *gin.Context) {
	roomID, ok := paramID(c, "id")
	if !ok {
		return
	}
	sessions, err := h.sessionService.ListRoomSessions(roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}
