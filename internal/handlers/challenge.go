package handlers

import (
	"net/http"

	"focusroom-backend/internal/services"

	"github.com/gin-gonic/gin"
)

type ChallengeHandler struct {
	challengeService *services.ChallengeService
}

func NewChallengeHandler(challengeService *services.ChallengeService) *ChallengeHandler {
	return &ChallengeHandler{challengeService: challengeService}
}

type CreateChallengeRequest struct {
	Title             string  `json:"title" binding:"required"`
	Type              string  `json:"type" binding:"required"`
	TargetValue       float64 `json:"target_value" binding:"required"`
	Unit              string  `json:"unit"`
	MinSessionMinutes int     `json:"min_session_minutes"`
}

type ContributionRequest struct {
	SessionKey      string  `json:"session_key" binding:"required"`
	DurationMinutes int     `json:"duration_minutes"`
	FocusScore      float64 `json:"focus_score"`
	Completed       bool    `json:"completed"`
}

func (h *ChallengeHandler) CreateChallenge(c *gin.Context) {
	userID := c.GetUint("user_id")
	roomID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req CreateChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	challenge, err := h.challengeService.CreateChallenge(roomID, userID,
		req.Title, req.Type, req.TargetValue, req.Unit, req.MinSessionMinutes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, challenge)
}

func (h *ChallengeHandler) ListChallenges(c *gin.Context) {
	roomID, ok := paramID(c, "id")
	if !ok {
		return
	}
	challenges, err := h.challengeService.ListChallenges(roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, challenges)
}

func (h *ChallengeHandler) GetChallenge(c *gin.Context) {
	challengeID, ok := paramID(c, "id")
	if !ok {
		return
	}
	challenge, err := h.challengeService.GetChallenge(challengeID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, challenge)
}

// Apply godoc
// @Summary      Merge one session event into the caller's contribution
// @Description  Duplicate deliveries of the same session key are no-ops
// @Tags         challenges
// @Router       /api/v1/challenges/{id}/contributions [post]
func (h *ChallengeHandler) Apply(c *gin.Context) {
	userID := c.GetUint("user_id")
	challengeID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req ContributionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	challenge, err := h.challengeService.Apply(challengeID, userID, services.ContributionInput{
		SessionKey:      req.SessionKey,
		DurationMinutes: req.DurationMinutes,
		FocusScore:      req.FocusScore,
		Completed:       req.Completed,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, challenge)
}

func (h *ChallengeHandler) DeleteChallenge(c *gin.Context) {
	userID := c.GetUint("user_id")
	challengeID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.challengeService.DeleteChallenge(challengeID, userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "challenge deleted"})
}
