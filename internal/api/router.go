package api

import (
	"github.com/gin-gonic/gin"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/api/handler"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/api/middleware"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/config"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/service"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	interviews *service.InterviewService,
	unlocks *service.UnlockService,
	cfg *config.Config,
) *gin.Engine {
	// Set Gin mode
	switch cfg.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(cfg.Server.CORS))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	interviewHandler := handler.NewInterviewHandler(interviews)
	unlockHandler := handler.NewUnlockHandler(unlocks)
	adminHandler := handler.NewAdminHandler(interviews, unlocks)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	v1.Use(middleware.Auth(&cfg.Auth))
	{
		// Attempt lifecycle
		v1.POST("/interviews/attempts", interviewHandler.Initialize)
		v1.POST("/interviews/attempts/:id/submit", interviewHandler.Submit)
		v1.GET("/interviews/attempts/:id/status", interviewHandler.Status)
		v1.GET("/interviews/attempts", interviewHandler.List)

		// Unlock requests
		v1.POST("/unlock-requests", unlockHandler.Request)
	}

	// Operator routes, guarded by the static admin token instead of a JWT
	admin := r.Group("/api/v1/admin")
	admin.Use(middleware.AdminAuth(&cfg.Auth))
	{
		admin.GET("/unlocks", adminHandler.ListUnlockRequests)
		admin.POST("/unlocks/:candidateId", adminHandler.DecideUnlockRequest)
		admin.GET("/stats", adminHandler.Stats)
	}

	return r
}
