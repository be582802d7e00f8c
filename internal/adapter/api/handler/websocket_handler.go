package handler

import (
	"net/http"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/ServicePlayground/sweet-order-sub002/internal/adapter/api/middleware"
	ws "github.com/ServicePlayground/sweet-order-sub002/internal/infrastructure/websocket"
	"github.com/ServicePlayground/sweet-order-sub002/pkg/errors"
)

type WebSocketHandler struct {
	wsManager      *ws.Manager
	authMiddleware *middleware.AuthMiddleware
}

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // You should restrict this in production
	},
}

func NewWebSocketHandler(wsManager *ws.Manager, authMiddleware *middleware.AuthMiddleware) *WebSocketHandler {
	return &WebSocketHandler{
		wsManager:      wsManager,
		authMiddleware: authMiddleware,
	}
}

// HandleWebSocket authenticates the handshake and hands the connection
// to the manager. The token rides in a query parameter because the
// browser WebSocket API cannot set headers.
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return errors.Unauthorized("Authentication required", nil)
	}

	participant, err := h.authMiddleware.ParticipantFromToken(c.Request().Context(), token)
	if err != nil {
		return errors.Unauthorized("Invalid or expired token", err)
	}

	// Upgrade HTTP connection to WebSocket
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return errors.Internal("Failed to upgrade connection", err)
	}

	client := &ws.Client{
		Participant: participant,
		Conn:        conn,
		Send:        make(chan []byte, 256),
	}

	// Register client with manager
	h.wsManager.Register <- client

	// Start goroutines for reading and writing
	go client.ReadPump(h.wsManager)
	go client.WritePump()

	return nil
}
