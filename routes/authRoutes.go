package routes

import (
	"github.com/gin-gonic/gin"

	"civicsync/controllers"
	"civicsync/middlewares"
)

// AuthRoutes sets up the authentication routes
func AuthRoutes(api *gin.RouterGroup, auth *controllers.AuthController, opts Options) {
	group := api.Group("/auth")
	{
		group.POST("/register", auth.RegisterUser)
		group.POST("/login", auth.LoginUser)
		group.POST("/logout", auth.LogoutUser)
		group.GET("/me", middlewares.AuthMiddleware(opts.JWTSecret), auth.GetMe)
	}
}
