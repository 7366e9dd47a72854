package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/provider/stripe"
)

// StripeWebhook verifies and reconciles a processor delivery.
//
// Only a signature failure is answered with 400. Everything else, including
// unhandled kinds and store failures, is acknowledged so the processor does
// not retry into the same outcome.
func (h *Handler) StripeWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBytes)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.Warn("webhook body too large", "limit", tooLarge.Limit)
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
			return
		}
		h.logger.Warn("webhook body read failed", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	res, err := h.ledger.HandleWebhook(c.Request.Context(), payload, c.GetHeader(stripe.SignatureHeader))
	switch {
	case errors.Is(err, credits.ErrInvalidSignature):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	case errors.Is(err, credits.ErrMissingConfiguration):
		h.logger.Error("webhook received without verifier configured", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook not configured"})
		return
	case err != nil && res != nil:
		h.logger.Error("webhook acknowledged after failure",
			"event_id", res.EventID,
			"type", res.EventType,
			"error", err,
		)
	case err != nil:
		h.logger.Error("webhook acknowledged after failure", "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
