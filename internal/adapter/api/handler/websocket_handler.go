package handler

import (
	"net/http"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"chatrelay/internal/adapter/api/middleware"
	ws "chatrelay/internal/infrastructure/websocket"
	"chatrelay/internal/usecase"
	"chatrelay/pkg/errors"
	"chatrelay/pkg/logger"
)

type WebSocketHandler struct {
	hub            *ws.Hub
	dispatcher     *ws.Dispatcher
	events         *usecase.ChatEventHandler
	authMiddleware *middleware.AuthMiddleware
}

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Restrict this in production
	},
}

func NewWebSocketHandler(
	hub *ws.Hub,
	dispatcher *ws.Dispatcher,
	events *usecase.ChatEventHandler,
	authMiddleware *middleware.AuthMiddleware,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:            hub,
		dispatcher:     dispatcher,
		events:         events,
		authMiddleware: authMiddleware,
	}
}

// HandleWebSocket authenticates the handshake and hands the connection to the
// hub. The token arrives via the auth middleware when the client can set
// headers, or via ?token= when it cannot (browser WebSocket API).
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	userID, _ := c.Get("uid").(string)
	if userID == "" {
		token := c.QueryParam("token")
		if token == "" {
			return errors.Unauthorized("Authentication required", nil)
		}

		uid, err := h.authMiddleware.GetUIDFromToken(c.Request().Context(), token)
		if err != nil {
			return errors.Unauthorized("Invalid or expired token", err)
		}
		userID = uid
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return errors.Internal("Failed to upgrade connection", err)
	}

	client := ws.NewClient(userID, conn)
	h.hub.Register(c.Request().Context(), client)

	logger.Debug("WebSocket connected: user %s", userID)

	go client.WritePump()
	go func() {
		client.ReadPump(h.hub, h.dispatcher)
		h.events.Disconnected(userID)
	}()

	return nil
}
