package router

import (
	"github.com/labstack/echo/v4"

	"github.com/ServicePlayground/sweet-order-sub002/internal/adapter/api/handler"
	"github.com/ServicePlayground/sweet-order-sub002/internal/adapter/api/middleware"
)

// SetupChatRouter sets up all chat-related routes (excluding WebSocket)
func SetupChatRouter(e *echo.Echo, chatHandler *handler.ChatHandler, authMiddleware *middleware.AuthMiddleware) {
	chatGroup := e.Group("/v1/chat/rooms")
	chatGroup.Use(authMiddleware.Authenticate) // All chat endpoints require authentication

	// Room management
	chatGroup.POST("", chatHandler.CreateRoom)       // POST /v1/chat/rooms - Open (or return) a room with a store
	chatGroup.GET("", chatHandler.ListRooms)         // GET /v1/chat/rooms - List the caller's rooms
	chatGroup.PUT("/:id/read", chatHandler.MarkRead) // PUT /v1/chat/rooms/:id/read - Reset own unread counter

	// Message management
	chatGroup.POST("/:id/messages", chatHandler.SendMessage) // POST /v1/chat/rooms/:id/messages - Send message
	chatGroup.GET("/:id/messages", chatHandler.ListMessages) // GET /v1/chat/rooms/:id/messages - Page through history
}
