package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/choir/internal/conversation"
	"github.com/mohammad-safakhou/choir/internal/logging"
)

// ChatHandler exposes the interactive tool-calling loop.
type ChatHandler struct {
	Loop   *conversation.Loop
	Logger logging.Logger
}

type chatRequest struct {
	Prompt string `json:"prompt"`
}

func (h *ChatHandler) Register(g *echo.Group, mw ...echo.MiddlewareFunc) {
	g.POST("", h.chat, mw...)
}

func (h *ChatHandler) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "prompt must not be empty")
	}
	res, err := h.Loop.Run(context.WithoutCancel(c.Request().Context()), req.Prompt)
	if err != nil {
		h.Logger.WithError(err).WithField("request_id", requestID(c)).Error("conversation failed")
		return c.JSON(http.StatusInternalServerError, Failure(msgInternal))
	}
	return c.JSON(http.StatusOK, Success(res, msgValidResp))
}
