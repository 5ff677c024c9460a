package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/apierr"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/logger"
)

// respondError converts any error into the uniform JSON error envelope.
// Typed errors keep their status and code; everything else becomes a 500
// with the cause logged server-side only.
func respondError(c *gin.Context, err error) {
	e := apierr.From(err)
	if e.Code == apierr.CodeInternal {
		logger.CtxError(c.Request.Context(), "Request failed: %v", err)
	}
	c.JSON(e.Status, gin.H{"error": e})
}
