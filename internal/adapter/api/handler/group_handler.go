package handler

import (
	"github.com/labstack/echo/v4"

	"chatrelay/internal/usecase"
	"chatrelay/pkg/response"
)

// GroupHandler exposes group mutations over HTTP. Each operation funnels
// into the same GroupUseCase the websocket events use, so both surfaces share
// authorization, serialization, and broadcasting.
type GroupHandler struct {
	groupUseCase *usecase.GroupUseCase
	chatUseCase  *usecase.ChatUseCase
}

func NewGroupHandler(groupUseCase *usecase.GroupUseCase, chatUseCase *usecase.ChatUseCase) *GroupHandler {
	return &GroupHandler{
		groupUseCase: groupUseCase,
		chatUseCase:  chatUseCase,
	}
}

type memberRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

type renameRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

func (h *GroupHandler) AddMember(c echo.Context) error {
	var req memberRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	actorID := c.Get("uid").(string)
	convID := c.Param("id")

	if err := h.groupUseCase.AddMember(c.Request().Context(), actorID, convID, req.UserID); err != nil {
		return response.Error(c, err)
	}

	return h.respondWithConversation(c, actorID, convID)
}

func (h *GroupHandler) RemoveMember(c echo.Context) error {
	actorID := c.Get("uid").(string)
	convID := c.Param("id")

	if err := h.groupUseCase.RemoveMember(c.Request().Context(), actorID, convID, c.Param("userId")); err != nil {
		return response.Error(c, err)
	}

	return h.respondWithConversation(c, actorID, convID)
}

func (h *GroupHandler) Leave(c echo.Context) error {
	actorID := c.Get("uid").(string)

	if err := h.groupUseCase.LeaveGroup(c.Request().Context(), actorID, c.Param("id")); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"status": "left"})
}

func (h *GroupHandler) Rename(c echo.Context) error {
	var req renameRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	actorID := c.Get("uid").(string)
	convID := c.Param("id")

	if err := h.groupUseCase.RenameGroup(c.Request().Context(), actorID, convID, req.Name); err != nil {
		return response.Error(c, err)
	}

	return h.respondWithConversation(c, actorID, convID)
}

func (h *GroupHandler) ChangeAdmin(c echo.Context) error {
	var req memberRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	actorID := c.Get("uid").(string)
	convID := c.Param("id")

	if err := h.groupUseCase.ChangeAdmin(c.Request().Context(), actorID, convID, req.UserID); err != nil {
		return response.Error(c, err)
	}

	return h.respondWithConversation(c, actorID, convID)
}

func (h *GroupHandler) respondWithConversation(c echo.Context, userID, convID string) error {
	conv, err := h.chatUseCase.GetConversation(c.Request().Context(), userID, convID)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, conv)
}
