package routes

import (
	"github.com/gin-gonic/gin"

	"civicsync/controllers"
	"civicsync/middlewares"
)

// AdminRoutes sets up the triage dashboard routes
func AdminRoutes(api *gin.RouterGroup, admin *controllers.AdminController, opts Options) {
	group := api.Group("/admin")
	group.Use(middlewares.AuthMiddleware(opts.JWTSecret), middlewares.AdminOnly())
	{
		group.GET("/analytics", admin.GetAnalytics)
		group.GET("/issues/export.csv", admin.ExportCSV)
		group.PATCH("/issues/:id", admin.TriageIssue)
		group.PATCH("/issues/:id/status", admin.UpdateStatus)
	}
}
