package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HomeHandler answers the root path so platform health probes and curious
// visitors get something other than a 404.
type HomeHandler struct{}

func NewHomeHandler() *HomeHandler {
	return &HomeHandler{}
}

func (h *HomeHandler) Register(e *echo.Echo) {
	e.GET("/", h.Home)
}

func (h *HomeHandler) Home(c echo.Context) error {
	return c.String(http.StatusOK, "IPA Forge bot is running. Talk to the bot on Telegram to rename a package.\n")
}
