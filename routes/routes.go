package routes

import (
	"sponsor-engagement-api/controllers"
	"sponsor-engagement-api/middleware"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine) {
	// API v1 group
	v1 := router.Group("/api/v1")
	{
		// Public routes
		public := v1.Group("")
		{
			// Health check
			public.GET("/health", func(c *gin.Context) {
				c.JSON(200, gin.H{
					"status":  "ok",
					"message": "Sponsor Engagement API is running",
				})
			})
		}

		// Protected routes (require authentication)
		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware())
		{
			// Registry sync
			sync := protected.Group("/sync")
			{
				sync.POST("/run", controllers.RunRegistrySync)
				sync.GET("/runs", controllers.GetRegistrySyncRuns)
			}

			// Studies
			studies := protected.Group("/studies")
			{
				studies.GET("/due", controllers.GetDueStudies)
				studies.GET("/:cpms_id", controllers.GetStudyByCpmsID)
			}
		}
	}

	// 404 handler
	router.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{"error": "Route not found"})
	})
}
