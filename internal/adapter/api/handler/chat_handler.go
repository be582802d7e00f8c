package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ServicePlayground/sweet-order-sub002/internal/domain/entity"
	"github.com/ServicePlayground/sweet-order-sub002/internal/usecase"
	"github.com/ServicePlayground/sweet-order-sub002/pkg/errors"
	"github.com/ServicePlayground/sweet-order-sub002/pkg/response"
	"github.com/ServicePlayground/sweet-order-sub002/pkg/utils"
)

type ChatHandler struct {
	chatUseCase *usecase.ChatUseCase
}

func NewChatHandler(chatUseCase *usecase.ChatUseCase) *ChatHandler {
	return &ChatHandler{
		chatUseCase: chatUseCase,
	}
}

// participantFromContext rebuilds the authenticated participant set by
// the auth middleware.
func participantFromContext(c echo.Context) entity.Participant {
	uid := c.Get("uid").(string)
	role, _ := c.Get("role").(string)

	p, err := entity.NewParticipant(uid, role)
	if err != nil {
		return entity.Participant{ID: uid, Type: entity.ParticipantUser}
	}
	return p
}

type createRoomRequest struct {
	StoreID string `json:"store_id" validate:"required"`
}

type sendMessageRequest struct {
	Text          string `json:"text" validate:"required"`
	AttachmentURL string `json:"attachment_url,omitempty" validate:"omitempty,url"`
}

// CreateRoom opens (or returns) the caller's room with a store
func (h *ChatHandler) CreateRoom(c echo.Context) error {
	var req createRoomRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	room, err := h.chatUseCase.CreateOrGetRoom(c.Request().Context(), userID, req.StoreID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, room)
}

// ListRooms gets all rooms for the authenticated participant
func (h *ChatHandler) ListRooms(c echo.Context) error {
	caller := participantFromContext(c)

	params := utils.GetPaginationParams(c)

	rooms, total, err := h.chatUseCase.ListRooms(c.Request().Context(), caller, params.PageSize, params.Offset)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Paginated(c, rooms, total, params.Page, params.PageSize)
}

// SendMessage sends a message to a room
func (h *ChatHandler) SendMessage(c echo.Context) error {
	roomID := c.Param("id")
	sender := participantFromContext(c)

	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	message, err := h.chatUseCase.SendMessage(c.Request().Context(), sender, usecase.SendMessageInput{
		RoomID:        roomID,
		Text:          req.Text,
		AttachmentURL: req.AttachmentURL,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, message)
}

// ListMessages gets one page of a room's history, newest first
func (h *ChatHandler) ListMessages(c echo.Context) error {
	roomID := c.Param("id")
	caller := participantFromContext(c)

	limit := 50
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		parsedLimit, err := strconv.Atoi(limitStr)
		if err != nil {
			return response.Error(c, errors.InvalidArgument("Limit must be a number", err))
		}
		limit = parsedLimit
	}

	page, err := h.chatUseCase.ListMessages(c.Request().Context(), caller, roomID, limit, c.QueryParam("cursor"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.CursorPaginated(c, page.Messages, page.HasNext, page.NextCursor)
}

// MarkRead resets the caller's unread counter for a room
func (h *ChatHandler) MarkRead(c echo.Context) error {
	roomID := c.Param("id")
	reader := participantFromContext(c)

	if err := h.chatUseCase.MarkRead(c.Request().Context(), reader, roomID); err != nil {
		return response.Error(c, err)
	}

	return c.NoContent(http.StatusOK)
}
