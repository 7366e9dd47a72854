package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	credits "github.com/xraph/credits"
)

// UseCredits debits the caller's balance by the configured cost.
func (h *Handler) UseCredits(c *gin.Context) {
	claims, ok := h.userKey(c)
	if !ok {
		return
	}

	d, err := h.ledger.Debit(c.Request.Context(), claims.Subject)
	if err != nil {
		if ie, ok := credits.Insufficient(err); ok {
			c.JSON(http.StatusConflict, gin.H{
				"error":     "insufficient credits",
				"remaining": ie.Remaining,
			})
			return
		}
		switch {
		case errors.Is(err, credits.ErrAccountNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		case errors.Is(err, credits.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("debit failed", "user_key", claims.Subject, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"deducted":  d.Deducted,
		"remaining": d.Remaining,
	})
}

// GetCredits returns the caller's ledger row, or the free row when they have
// none yet.
func (h *Handler) GetCredits(c *gin.Context) {
	claims, ok := h.userKey(c)
	if !ok {
		return
	}

	a, err := h.ledger.Balance(c.Request.Context(), claims.Subject)
	if err != nil {
		h.logger.Error("balance lookup failed", "user_key", claims.Subject, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, a)
}
