package routes

import (
	"github.com/gin-gonic/gin"

	"civicsync/controllers"
	"civicsync/middlewares"
)

// IssueRoutes sets up the issue routes
func IssueRoutes(api *gin.RouterGroup, issues *controllers.IssueController, changes *controllers.ChangesController, opts Options) {
	optionalAuth := middlewares.OptionalAuth(opts.JWTSecret)
	auth := middlewares.AuthMiddleware(opts.JWTSecret)

	group := api.Group("/issues")
	{
		create := []gin.HandlerFunc{optionalAuth}
		if opts.RateCounter != nil {
			create = append(create, middlewares.IssueRateLimiter(opts.RateCounter, opts.IssueLimitKey, opts.IssueDailyCap))
		}
		group.POST("", append(create, issues.CreateIssue)...)
		group.POST("/images", append(imageGuards(opts), issues.UploadImage)...)

		group.GET("", optionalAuth, issues.GetAllIssues)
		group.GET("/recent", issues.GetRecentIssues)
		group.GET("/mine", auth, issues.GetIssuesByUser)
		group.GET("/changes", changes.StreamChanges)
		group.GET("/:id", optionalAuth, issues.GetIssue)
		group.PUT("/:id", auth, issues.UpdateIssue)
		group.DELETE("/:id", auth, issues.DeleteIssue)
		group.POST("/:id/vote", auth, issues.HandleVoteOnIssue)
	}
}
