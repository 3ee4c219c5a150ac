package router

import (
	"github.com/labstack/echo/v4"

	"chatrelay/internal/adapter/api/handler"
	"chatrelay/internal/adapter/api/middleware"
)

func SetupUploadRouter(e *echo.Echo, uploadHandler *handler.UploadHandler, authMiddleware *middleware.AuthMiddleware) {
	uploadGroup := e.Group("/v1/uploads")
	uploadGroup.Use(authMiddleware.Authenticate)

	uploadGroup.POST("/images", uploadHandler.UploadImage)
	uploadGroup.POST("/avatars", uploadHandler.UploadAvatar)
}
