package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/choir/internal/choir"
	"github.com/mohammad-safakhou/choir/internal/logging"
)

// ChoirHandler exposes the multi-agent pipeline.
type ChoirHandler struct {
	Service *choir.Service
	Logger  logging.Logger
}

func (h *ChoirHandler) Register(g *echo.Group, mw ...echo.MiddlewareFunc) {
	g.POST("", h.run, mw...)
}

func (h *ChoirHandler) run(c echo.Context) error {
	var req choir.Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	// The pipeline runs to completion even if the client goes away.
	ctx := context.WithoutCancel(c.Request().Context())
	res, err := h.Service.Run(ctx, req)
	if err != nil {
		if errors.Is(err, choir.ErrEmptyQuery) || errors.Is(err, choir.ErrInvalidSchema) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		h.Logger.WithError(err).WithField("request_id", requestID(c)).Error("choir pipeline failed")
		return c.JSON(http.StatusInternalServerError, Failure(msgInternal))
	}
	return c.JSON(http.StatusOK, Success(res.Answer, msgValidResp))
}

func requestID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}
