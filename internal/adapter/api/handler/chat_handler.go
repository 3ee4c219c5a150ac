package handler

import (
	"github.com/labstack/echo/v4"

	ws "chatrelay/internal/infrastructure/websocket"
	"chatrelay/internal/usecase"
	"chatrelay/pkg/response"
	"chatrelay/pkg/utils"
)

type ChatHandler struct {
	chatUseCase    *usecase.ChatUseCase
	receiptUseCase *usecase.ReceiptUseCase
}

func NewChatHandler(chatUseCase *usecase.ChatUseCase, receiptUseCase *usecase.ReceiptUseCase) *ChatHandler {
	return &ChatHandler{
		chatUseCase:    chatUseCase,
		receiptUseCase: receiptUseCase,
	}
}

type sendMessageRequest struct {
	Type     string `json:"type" validate:"required,oneof=text image"`
	Content  string `json:"content,omitempty"`
	ImageURL string `json:"image_url,omitempty" validate:"omitempty,url"`
}

// CreateChat creates (or returns) the direct conversation with a recipient.
func (h *ChatHandler) CreateChat(c echo.Context) error {
	var req usecase.CreateDirectChatInput
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	conv, err := h.chatUseCase.CreateDirectChat(c.Request().Context(), userID, req)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, conv)
}

func (h *ChatHandler) CreateGroup(c echo.Context) error {
	var req usecase.CreateGroupChatInput
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	conv, err := h.chatUseCase.CreateGroupChat(c.Request().Context(), userID, req)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, conv)
}

func (h *ChatHandler) GetUserChats(c echo.Context) error {
	userID := c.Get("uid").(string)
	pagination := utils.GetPaginationParams(c)

	convs, total, err := h.chatUseCase.ListConversations(c.Request().Context(), userID, pagination.PageSize, pagination.Offset)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Paginated(c, convs, total, pagination.Page, pagination.PageSize)
}

func (h *ChatHandler) GetChatByID(c echo.Context) error {
	userID := c.Get("uid").(string)

	conv, err := h.chatUseCase.GetConversation(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, conv)
}

func (h *ChatHandler) GetChatMessages(c echo.Context) error {
	userID := c.Get("uid").(string)
	pagination := utils.GetPaginationParams(c)

	messages, total, err := h.chatUseCase.ListMessages(c.Request().Context(), userID, c.Param("id"), pagination.PageSize, pagination.Offset)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Paginated(c, messages, total, pagination.Page, pagination.PageSize)
}

// SendMessage is the HTTP fallback for clients without a live socket. The
// fan-out pipeline is identical to the websocket path.
func (h *ChatHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	err := h.chatUseCase.SendMessage(c.Request().Context(), userID, ws.SendMessagePayload{
		ConversationID: c.Param("id"),
		Type:           req.Type,
		Content:        req.Content,
		ImageURL:       req.ImageURL,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"status": "sent"})
}

func (h *ChatHandler) MarkChatAsRead(c echo.Context) error {
	userID := c.Get("uid").(string)

	if err := h.receiptUseCase.MarkConversationRead(c.Request().Context(), userID, c.Param("id")); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"status": "read"})
}
