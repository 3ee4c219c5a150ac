package router

import (
	"github.com/labstack/echo/v4"

	"chatrelay/internal/adapter/api/handler"
	"chatrelay/internal/adapter/api/middleware"
)

func SetupUserRouter(e *echo.Echo, userHandler *handler.UserHandler, authMiddleware *middleware.AuthMiddleware) {
	userGroup := e.Group("/v1/users")
	userGroup.Use(authMiddleware.Authenticate)

	userGroup.GET("/me", userHandler.GetMe)
	userGroup.PUT("/me", userHandler.UpdateProfile)
	userGroup.GET("/search", userHandler.Search)
	userGroup.GET("/:id", userHandler.GetUser)
}
