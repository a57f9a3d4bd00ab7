package http

import (
	"github.com/gin-gonic/gin"
	"github.com/layer-3/chomp-auth/adapters/backend"
	"github.com/layer-3/chomp-auth/service"
	"github.com/rs/zerolog"
)

// SetupRouter sets up the local agent's Gin router
func SetupRouter(orch *service.Orchestrator, endpoint *backend.Endpoint, logger zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	handlers := NewAuthHandlers(orch, endpoint, logger)

	auth := router.Group("/auth")
	{
		auth.GET("/methods", handlers.Methods)
		auth.GET("/state", handlers.State)
		auth.GET("/session", handlers.Session)
		auth.POST("/login", handlers.Login)
		auth.POST("/retry", handlers.Retry)
		auth.POST("/cancel", handlers.Cancel)
		auth.POST("/dismiss", handlers.Dismiss)
		auth.POST("/logout", handlers.Logout)
		auth.GET("/callback", handlers.Callback)
	}

	router.GET("/backend", handlers.Backend)
	router.PUT("/backend", handlers.SelectBackend)

	// Authenticated pass-through to the selected backend
	api := router.Group("/api")
	api.Use(RequireSession(orch.Sessions()))
	{
		api.Any("/*path", NewBackendProxy(endpoint, orch.Sessions(), logger))
	}

	return router
}
