package http

import (
	"github.com/gin-gonic/gin"

	httpH "github.com/yungbote/habitloop-backend/internal/http/handlers"
	httpMW "github.com/yungbote/habitloop-backend/internal/http/middleware"
	"github.com/yungbote/habitloop-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	AuthMiddleware *httpMW.AuthMiddleware
	CoachHandler   *httpH.CoachHandler
	HealthHandler  *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpMW.AttachRequestContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api/v1")
	if cfg.AuthMiddleware != nil {
		api.Use(cfg.AuthMiddleware.RequireAuth())
	}

	if cfg.CoachHandler != nil {
		coach := api.Group("/coach")
		coach.POST("/checkin", cfg.CoachHandler.CheckIn)
		coach.POST("/feedback", cfg.CoachHandler.Feedback)
		coach.GET("/interventions", cfg.CoachHandler.ListInterventions)
		coach.POST("/interventions/:id/status", cfg.CoachHandler.UpdateInterventionStatus)
		coach.GET("/stats", cfg.CoachHandler.Stats)
		coach.GET("/snapshot", cfg.CoachHandler.Snapshot)
		coach.GET("/recommendations", cfg.CoachHandler.Recommendations)
		coach.GET("/signals", cfg.CoachHandler.Signals)
		coach.GET("/consent", cfg.CoachHandler.GetConsent)
		coach.POST("/consent", cfg.CoachHandler.SetConsent)
		coach.GET("/policy/export", cfg.CoachHandler.ExportPolicy)
		coach.POST("/policy/import", cfg.CoachHandler.ImportPolicy)
	}

	return r
}
