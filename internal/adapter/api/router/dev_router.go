package router

import (
	"github.com/labstack/echo/v4"

	"github.com/ServicePlayground/sweet-order-sub002/internal/adapter/api/handler"
)

func SetupDevRouter(e *echo.Echo, environment string) {
	if environment != "development" {
		return
	}
	devTokenHandler := handler.GetDevTokenHandler()

	e.GET("/_dev/token/user", devTokenHandler.GenerateUserToken)
	e.GET("/_dev/token/store", devTokenHandler.GenerateStoreToken)
}
