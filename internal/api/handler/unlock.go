package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/api/middleware"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/apierr"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/service"
)

// UnlockHandler handles candidate-facing unlock request endpoints.
type UnlockHandler struct {
	unlocks *service.UnlockService
}

// NewUnlockHandler creates a new unlock handler.
// Parameters:
//   - unlocks: unlock service instance.
// Returns:
//   - *UnlockHandler: initialized handler.
func NewUnlockHandler(unlocks *service.UnlockService) *UnlockHandler {
	return &UnlockHandler{
		unlocks: unlocks,
	}
}

// unlockRequest is the body of POST /api/v1/unlock-requests.
type unlockRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Request handles POST /api/v1/unlock-requests.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *UnlockHandler) Request(c *gin.Context) {
	var req unlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierr.InvalidArgument("reason", "reason is required"))
		return
	}

	if err := h.unlocks.RequestUnlock(c.Request.Context(), middleware.CandidateID(c), req.Reason); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status": "pending",
	})
}
