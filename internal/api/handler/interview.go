package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/api/middleware"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/apierr"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/service"
)

// InterviewHandler handles attempt lifecycle endpoints.
type InterviewHandler struct {
	interviews *service.InterviewService
}

// NewInterviewHandler creates a new interview handler.
// Parameters:
//   - interviews: interview service instance.
// Returns:
//   - *InterviewHandler: initialized handler.
func NewInterviewHandler(interviews *service.InterviewService) *InterviewHandler {
	return &InterviewHandler{
		interviews: interviews,
	}
}

// initializeRequest is the body of POST /api/v1/interviews/attempts.
type initializeRequest struct {
	TrackSlug string `json:"track_slug" binding:"required"`
}

// Initialize handles POST /api/v1/interviews/attempts.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *InterviewHandler) Initialize(c *gin.Context) {
	var req initializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierr.InvalidArgument("track_slug", "track_slug is required"))
		return
	}

	result, err := h.interviews.Initialize(c.Request.Context(), middleware.CandidateID(c), req.TrackSlug)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// submitRequest is the body of POST /api/v1/interviews/attempts/:id/submit.
type submitRequest struct {
	Segments     []service.SegmentBoundary `json:"segments" binding:"required"`
	IntegrityLog *service.IntegrityLog     `json:"integrity_log"`
}

// Submit handles POST /api/v1/interviews/attempts/:id/submit.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *InterviewHandler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierr.InvalidArgument("segments", "segments are required"))
		return
	}

	result, err := h.interviews.Submit(
		c.Request.Context(),
		middleware.CandidateID(c),
		c.Param("id"),
		req.Segments,
		req.IntegrityLog,
	)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, result)
}

// Status handles GET /api/v1/interviews/attempts/:id/status.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *InterviewHandler) Status(c *gin.Context) {
	result, err := h.interviews.Status(c.Request.Context(), middleware.CandidateID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// List handles GET /api/v1/interviews/attempts.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *InterviewHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	attempts, err := h.interviews.ListAttempts(c.Request.Context(), middleware.CandidateID(c), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"attempts": attempts,
		"count":    len(attempts),
	})
}
