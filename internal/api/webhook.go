package api

import (
	"errors"
	"io"
	"net/http"

	"premium-referral-go/internal/models"
	"premium-referral-go/internal/webhook"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// handleGatewayWebhook authenticates the delivery, acknowledges every event the
// reconciler accepted, and answers 500 on failures so the gateway retries. Unsigned,
// forged or stale deliveries and malformed envelopes are rejected with 400 before
// anything is applied.
func (s *Server) handleGatewayWebhook(c echo.Context) error {
	ctx := c.Request().Context()

	limit := int64(s.deps.MaxBodyKB) * 1024
	body, err := io.ReadAll(http.MaxBytesReader(c.Response(), c.Request().Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return c.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{Error: "payload too large"})
		}
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "unreadable body"})
	}

	event, err := s.deps.Verifier.Verify(body, c.Request().Header.Get(webhook.SignatureHeader))
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			zap.L().Warn("Rejected unauthenticated gateway delivery",
				zap.String("client_ip", c.RealIP()),
				zap.Error(err))
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid signature"})
		}
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
	}

	outcome, err := s.deps.Webhooks.HandleGatewayEvent(ctx, event)
	if err != nil {
		if errors.Is(err, webhook.ErrMalformedEvent) {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		}
		zap.L().Error("Webhook delivery failed, gateway will retry", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "internal error"})
	}

	zap.L().Debug("Webhook delivery acknowledged",
		zap.String("event_id", event.ID),
		zap.String("outcome", string(outcome)))
	return c.JSON(http.StatusOK, models.WebhookAck{Received: true})
}
