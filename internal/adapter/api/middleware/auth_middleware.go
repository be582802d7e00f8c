package middleware

import (
	"context"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"

	"github.com/ServicePlayground/sweet-order-sub002/internal/domain/entity"
)

type AuthMiddleware struct {
	authClient *auth.Client
}

func NewAuthMiddleware(authClient *auth.Client) *AuthMiddleware {
	return &AuthMiddleware{
		authClient: authClient,
	}
}

func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		// Get the Authorization header
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Authorization header is required")
		}

		// Check if the Authorization header has the right format
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization format")
		}

		// Verify the token
		token, err := m.authClient.VerifyIDToken(c.Request().Context(), parts[1])
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
		}

		// Add the authenticated identity to the context
		c.Set("uid", token.UID)
		c.Set("role", roleFromClaims(token))

		// Call the next handler
		return next(c)
	}
}

// ParticipantFromToken verifies a raw ID token and returns the chat
// participant it identifies. WebSocket upgrades use this because a
// browser cannot set an Authorization header on the handshake.
func (m *AuthMiddleware) ParticipantFromToken(ctx context.Context, idToken string) (entity.Participant, error) {
	token, err := m.authClient.VerifyIDToken(ctx, idToken)
	if err != nil {
		return entity.Participant{}, err
	}

	return entity.NewParticipant(token.UID, roleFromClaims(token))
}

// roleFromClaims maps the Firebase custom claim to a participant side.
// Store accounts carry role=store; everyone else chats as a user.
func roleFromClaims(token *auth.Token) string {
	if role, ok := token.Claims["role"].(string); ok && role == string(entity.ParticipantStore) {
		return string(entity.ParticipantStore)
	}
	return string(entity.ParticipantUser)
}
