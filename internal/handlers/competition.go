package handlers

import (
	"net/http"

	"focusroom-backend/internal/services"

	"github.com/gin-gonic/gin"
)

type CompetitionHandler struct {
	competitionService *services.CompetitionService
}

func NewCompetitionHandler(competitionService *services.CompetitionService) *CompetitionHandler {
	return &CompetitionHandler{competitionService: competitionService}
}

type TickRequest struct {
	FocusScore     float64 `json:"focus_score"`
	FocusedMinutes int     `json:"focused_minutes"`
}

type StartCompetitionRequest struct {
	Mode            string `json:"mode" binding:"required"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes" binding:"required"`
	ParticipantIDs  []uint `json:"participant_ids"`
}

// Start creates a competition directly, bypassing the invitation vote.
// Used by hosts for solo or pre-agreed contests.
func (h *CompetitionHandler) Start(c *gin.Context) {
	userID := c.GetUint("user_id")
	roomID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req StartCompetitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	comp, err := h.competitionService.Start(roomID, userID, req.Mode, req.Name, req.DurationMinutes, req.ParticipantIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comp)
}

func (h *CompetitionHandler) GetCompetition(c *gin.Context) {
	competitionID, ok := paramID(c, "id")
	if !ok {
		return
	}
	comp, err := h.competitionService.GetCompetition(competitionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, comp)
}

func (h *CompetitionHandler) Tick(c *gin.Context) {
	userID := c.GetUint("user_id")
	competitionID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req TickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	participant, err := h.competitionService.Tick(competitionID, userID, req.FocusScore, req.FocusedMinutes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, participant)
}

func (h *CompetitionHandler) End(c *gin.Context) {
	userID := c.GetUint("user_id")
	competitionID, ok := paramID(c, "id")
	if !ok {
		return
	}

	comp, err := h.competitionService.End(competitionID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, comp)
}

// Recover godoc
// @Summary      Re-assert the room's most recent competition after a reconnect
// @Tags         competitions
// @Router       /api/v1/rooms/{id}/competitions/recover [post]
func (h *CompetitionHandler) Recover(c *gin.Context) {
	roomID, ok := paramID(c, "id")
	if !ok {
		return
	}

	comp, err := h.competitionService.Recover(roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"competition": comp})
}

func (h *CompetitionHandler) Leaderboard(c *gin.Context) {
	competitionID, ok := paramID(c, "id")
	if !ok {
		return
	}
	entries, err := h.competitionService.Leaderboard(competitionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}
