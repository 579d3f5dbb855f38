package routes

import (
	"github.com/gin-gonic/gin"

	"civicsync/controllers"
	"civicsync/middlewares"
)

// ModerationRoutes mounts the image gate under its edge function path and
// under the API.
func ModerationRoutes(r *gin.Engine, api *gin.RouterGroup, moderation *controllers.ModerationController, opts Options) {
	validate := append(imageGuards(opts), moderation.ValidateImage)

	functions := r.Group("/functions/v1")
	functions.Use(middlewares.Ginrus("Functions"))
	functions.POST("/validate-image", validate...)

	api.POST("/moderation/validate-image", validate...)
}
