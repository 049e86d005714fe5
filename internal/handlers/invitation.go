package handlers

import (
	"net/http"

	"focusroom-backend/internal/services"

	"github.com/gin-gonic/gin"
)

type InvitationHandler struct {
	invitationService *services.InvitationService
}

func NewInvitationHandler(invitationService *services.InvitationService) *InvitationHandler {
	return &InvitationHandler{invitationService: invitationService}
}

type ProposeRequest struct {
	Mode            string `json:"mode" binding:"required"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes" binding:"required"`
}

type RespondRequest struct {
	Decision string `json:"decision" binding:"required"`
}

// Propose godoc
// @Summary      Propose a competition to every present room member
// @Description  Creates a pending invitation with a 5 minute window; the proposer's accept is implicit
// @Tags         invitations
// @Router       /api/v1/rooms/{id}/invitations [post]
func (h *InvitationHandler) Propose(c *gin.Context) {
	userID := c.GetUint("user_id")
	roomID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req ProposeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	inv, err := h.invitationService.Propose(roomID, userID, req.Mode, req.Name, req.DurationMinutes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

func (h *InvitationHandler) Respond(c *gin.Context) {
	userID := c.GetUint("user_id")
	invitationID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	inv, err := h.invitationService.Respond(invitationID, userID, req.Decision)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (h *InvitationHandler) GetInvitation(c *gin.Context) {
	invitationID, ok := paramID(c, "id")
	if !ok {
		return
	}
	inv, err := h.invitationService.GetInvitation(invitationID)
	if err != nil {
		respondError(c, err)
		return
	}

	responses, _ := h.invitationService.Responses(invitationID)
	c.JSON(http.StatusOK, gin.H{"invitation": inv, "responses": responses})
}

func (h *InvitationHandler) CurrentInvitation(c *gin.Context) {
	roomID, ok := paramID(c, "id")
	if !ok {
		return
	}
	inv, err := h.invitationService.CurrentInvitation(roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}
