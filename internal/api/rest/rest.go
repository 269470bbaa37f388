package rest

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler Handler) {
	// Health check endpoint (no version prefix)
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.GET("/stats", handler.GetStats)

		// Static segments are registered before the group id wildcard
		v1.GET("/groups", handler.ListGroups)
		v1.GET("/groups/recent", handler.RecentGroups)
		v1.GET("/groups/:group_id", handler.GetGroup)
		v1.GET("/groups/:group_id/history", handler.GetHistory)

		v1.GET("/search", handler.SearchGroups)
	}
}
