package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/apierr"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/service"
)

// AdminHandler handles operator endpoints for reviewing unlock requests and
// attempt volume.
type AdminHandler struct {
	interviews *service.InterviewService
	unlocks    *service.UnlockService
}

// NewAdminHandler creates a new admin handler.
// Parameters:
//   - interviews: interview service instance.
//   - unlocks: unlock service instance.
// Returns:
//   - *AdminHandler: initialized handler.
func NewAdminHandler(interviews *service.InterviewService, unlocks *service.UnlockService) *AdminHandler {
	return &AdminHandler{
		interviews: interviews,
		unlocks:    unlocks,
	}
}

// Stats handles GET /api/v1/admin/stats.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.interviews.AttemptStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"attempts": stats})
}

// ListUnlockRequests handles GET /api/v1/admin/unlocks.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) ListUnlockRequests(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	pending, err := h.unlocks.ListPending(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"requests": pending,
		"count":    len(pending),
	})
}

// decideRequest is the body of POST /api/v1/admin/unlocks/:candidateId.
type decideRequest struct {
	Decision string `json:"decision" binding:"required"`
}

// DecideUnlockRequest handles POST /api/v1/admin/unlocks/:candidateId.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) DecideUnlockRequest(c *gin.Context) {
	var req decideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierr.InvalidArgument("decision", "decision is required"))
		return
	}
	if req.Decision != "approved" && req.Decision != "denied" {
		respondError(c, apierr.InvalidArgument("decision", "decision must be approved or denied"))
		return
	}

	err := h.unlocks.Decide(c.Request.Context(), c.Param("candidateId"), req.Decision == "approved")
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"candidate_id": c.Param("candidateId"),
		"decision":     req.Decision,
	})
}
