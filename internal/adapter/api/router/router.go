package router

import (
	"github.com/labstack/echo/v4"

	"chatrelay/internal/adapter/api/handler"
	"chatrelay/internal/adapter/api/middleware"
)

type Handlers struct {
	Auth      *handler.AuthHandler
	User      *handler.UserHandler
	Chat      *handler.ChatHandler
	Group     *handler.GroupHandler
	Upload    *handler.UploadHandler
	WebSocket *handler.WebSocketHandler
	Health    *handler.HealthHandler
	DevToken  *handler.DevTokenHandler
}

func Setup(e *echo.Echo, h Handlers, authMiddleware *middleware.AuthMiddleware, environment string) {
	SetupHealthRouter(e, h.Health)
	SetupAuthRouter(e, h.Auth)
	SetupUserRouter(e, h.User, authMiddleware)
	SetupChatRouter(e, h.Chat, h.Group, authMiddleware)
	SetupUploadRouter(e, h.Upload, authMiddleware)
	SetupWebSocketRouter(e, h.WebSocket)
	SetupDevRouter(e, h.DevToken, environment)
}
