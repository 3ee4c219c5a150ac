package router

import (
	"time"

	"github.com/labstack/echo/v4"

	"chatrelay/internal/adapter/api/handler"
	"chatrelay/internal/adapter/api/middleware"
)

func SetupAuthRouter(e *echo.Echo, authHandler *handler.AuthHandler) {
	// Unauthenticated endpoints get per-IP throttling.
	limiter := middleware.NewIPRateLimiter(10, time.Minute)

	authGroup := e.Group("/v1/auth")
	authGroup.Use(limiter.Middleware())

	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
}
