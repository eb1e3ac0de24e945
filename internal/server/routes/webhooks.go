package routes

import (
	"github.com/labstack/echo/v4"

	ipnwebhook "github.com/paybridge/ipn/internal/webhooks/ipn"
)

// WebhookRoutes registers webhook endpoints.
type WebhookRoutes struct {
	ipn *ipnwebhook.Handler
}

// NewWebhookRoutes constructs webhook routes.
func NewWebhookRoutes(handler *ipnwebhook.Handler) *WebhookRoutes {
	return &WebhookRoutes{ipn: handler}
}

// RegisterRoutes registers webhook endpoints.
func (w *WebhookRoutes) RegisterRoutes(s *echo.Echo) {
	s.POST("/webhooks/ipn", w.handleIPN)
	s.GET("/webhooks/ipn/health", w.handleHealth)
	s.GET("/healthz", w.handleHealth)
}

func (w *WebhookRoutes) handleIPN(c echo.Context) error {
	return w.ipn.Handle(c.Response(), c.Request())
}

func (w *WebhookRoutes) handleHealth(c echo.Context) error {
	return w.ipn.Health(c.Response(), c.Request())
}
