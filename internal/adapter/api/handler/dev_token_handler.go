package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ServicePlayground/sweet-order-sub002/internal/infrastructure/firebase"
	"github.com/ServicePlayground/sweet-order-sub002/pkg/response"
)

// DevTokenHandler mints custom tokens for local testing of the REST
// and WebSocket endpoints. Only routed in the development environment.
type DevTokenHandler struct {
	firebaseAuth *firebase.FirebaseAuthClient
}

var devTokenHandler *DevTokenHandler

func SetupDevTokenHandler(firebaseAuth *firebase.FirebaseAuthClient) {
	devTokenHandler = &DevTokenHandler{firebaseAuth: firebaseAuth}
}

func GetDevTokenHandler() *DevTokenHandler {
	return devTokenHandler
}

// GenerateUserToken mints a token for the given uid on the user side.
func (h *DevTokenHandler) GenerateUserToken(c echo.Context) error {
	return h.generate(c, "user")
}

// GenerateStoreToken mints a token carrying the store role claim.
func (h *DevTokenHandler) GenerateStoreToken(c echo.Context) error {
	return h.generate(c, "store")
}

func (h *DevTokenHandler) generate(c echo.Context, role string) error {
	uid := c.QueryParam("uid")
	if uid == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "uid query parameter is required"})
	}

	token, err := h.firebaseAuth.GenerateToken(c.Request().Context(), uid, role)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return response.Success(c, map[string]string{
		"uid":   uid,
		"role":  role,
		"token": token,
	})
}
