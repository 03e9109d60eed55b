package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/choir/internal/capability"
)

// FunctionsHandler exposes the function registry.
type FunctionsHandler struct {
	Registry *capability.Registry
}

func (h *FunctionsHandler) Register(g *echo.Group, mw ...echo.MiddlewareFunc) {
	g.GET("", h.list, mw...)
}

func (h *FunctionsHandler) list(c echo.Context) error {
	return c.JSON(http.StatusOK, Success(h.Registry.List(), ""))
}
