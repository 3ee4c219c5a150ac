package router

import (
	"github.com/labstack/echo/v4"

	"chatrelay/internal/adapter/api/handler"
	"chatrelay/internal/adapter/api/middleware"
)

// SetupChatRouter mounts conversation, message, and group routes. Everything
// under /v1/chats requires authentication.
func SetupChatRouter(e *echo.Echo, chatHandler *handler.ChatHandler, groupHandler *handler.GroupHandler, authMiddleware *middleware.AuthMiddleware) {
	chatGroup := e.Group("/v1/chats")
	chatGroup.Use(authMiddleware.Authenticate)

	chatGroup.POST("", chatHandler.CreateChat)
	chatGroup.POST("/groups", chatHandler.CreateGroup)
	chatGroup.GET("", chatHandler.GetUserChats)
	chatGroup.GET("/:id", chatHandler.GetChatByID)
	chatGroup.PUT("/:id/read", chatHandler.MarkChatAsRead)

	chatGroup.POST("/:id/messages", chatHandler.SendMessage)
	chatGroup.GET("/:id/messages", chatHandler.GetChatMessages)

	chatGroup.POST("/:id/members", groupHandler.AddMember)
	chatGroup.DELETE("/:id/members/:userId", groupHandler.RemoveMember)
	chatGroup.POST("/:id/leave", groupHandler.Leave)
	chatGroup.PUT("/:id/name", groupHandler.Rename)
	chatGroup.PUT("/:id/admin", groupHandler.ChangeAdmin)
}
