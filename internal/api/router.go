package api

import (
	"github.com/gin-gonic/gin"
	"github.com/loopforge/strudel-api/internal/api/handlers"
	apimiddleware "github.com/loopforge/strudel-api/internal/api/middleware"
	"github.com/loopforge/strudel-api/internal/llm"
	"github.com/loopforge/strudel-api/internal/session"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRouter(provider llm.Provider, model string, sess *session.Session, version string) *gin.Engine {
	router := gin.New()

	// Recovery middleware (must be first)
	router.Use(apimiddleware.RecoverWithSentry())

	// Sentry middleware for error tracking
	router.Use(apimiddleware.SentryMiddleware())

	// Request tracking and structured logging
	router.Use(apimiddleware.RequestTracking())

	// CORS middleware
	router.Use(apimiddleware.CORS())

	// Health check
	router.GET("/health", handlers.HealthCheck)

	// Runtime metrics (JSON) and Prometheus scrape endpoint
	metricsHandler := handlers.NewMetricsHandler(version, sess)
	router.GET("/api/metrics", metricsHandler.GetMetrics)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Stateless generation
	generateHandler := handlers.NewGenerateHandler(provider, model)
	router.POST("/api/generate", generateHandler.Generate)

	// Session endpoints: generation history, playback, auto-evolve
	sessionHandler := handlers.NewSessionHandler(sess)
	sessionGroup := router.Group("/api/session")
	{
		sessionGroup.POST("/generate", sessionHandler.Generate)
		sessionGroup.POST("/play", sessionHandler.Play)
		sessionGroup.POST("/stop", sessionHandler.Stop)
		sessionGroup.POST("/clear", sessionHandler.Clear)
		sessionGroup.POST("/evolve", sessionHandler.Evolve)
		sessionGroup.GET("/history", sessionHandler.History)
		sessionGroup.GET("/status", sessionHandler.Status)
	}

	return router
}
