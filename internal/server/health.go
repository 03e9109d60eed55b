package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/choir/internal/logging"
	"github.com/mohammad-safakhou/choir/models"
	"github.com/mohammad-safakhou/choir/provider"
)

const healthSystemPrompt = "You are a fake health check endpoint. You make fake data. You respond with strictly json data only."

// HealthHandler serves liveness and a provider round-trip check.
type HealthHandler struct {
	Provider provider.Provider
	Model    string
	Timeout  time.Duration
	Logger   logging.Logger
}

// HealthReport is the schema the deep check asks the model to fill.
type HealthReport struct {
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func healthSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"status":  map[string]any{"type": "string"},
			"code":    map[string]any{"type": "integer"},
			"message": map[string]any{"type": "string"},
		},
		"required":             []any{"status", "code", "message"},
		"additionalProperties": false,
	}
}

func (h *HealthHandler) Register(e *echo.Echo, deep ...echo.MiddlewareFunc) {
	e.GET("/health", h.live)
	e.GET("/health/deep", h.deep, deep...)
}

func (h *HealthHandler) live(c echo.Context) error {
	return c.JSON(http.StatusOK, Success("Endpoints are healthy!", "Server is healthy!"))
}

func (h *HealthHandler) deep(c echo.Context) error {
	ctx := c.Request().Context()
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}
	resp, err := h.Provider.Complete(ctx, models.CompletionRequest{
		Stage: "health",
		Model: h.Model,
		Messages: []models.Message{
			models.SystemMessage(healthSystemPrompt),
			models.UserMessage("What is the status of the server?"),
		},
		Schema: healthSchema(),
	})
	if err != nil {
		h.Logger.WithError(err).Warn("deep health check failed")
		return c.JSON(http.StatusServiceUnavailable, Failure("provider unavailable"))
	}
	var report HealthReport
	if err := json.Unmarshal([]byte(resp.Content), &report); err != nil {
		h.Logger.WithError(err).Warn("deep health check returned malformed json")
		return c.JSON(http.StatusServiceUnavailable, Failure("provider returned malformed health report"))
	}
	return c.JSON(http.StatusOK, Success(report, "Server is healthy!"))
}
