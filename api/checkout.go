package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/checkout"
)

type checkoutRequest struct {
	Plan string `json:"plan"`
}

// CreateCheckout starts a hosted checkout for the caller.
func (h *Handler) CreateCheckout(c *gin.Context) {
	claims, ok := h.userKey(c)
	if !ok {
		return
	}
	if h.checkout == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}

	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	sess, err := h.checkout.Start(c.Request.Context(), checkout.Request{
		UserKey: claims.Subject,
		Email:   claims.Email,
		Plan:    req.Plan,
	})
	switch {
	case errors.Is(err, credits.ErrInvalidPlan):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid plan"})
	case errors.Is(err, credits.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "no email found"})
	case errors.Is(err, credits.ErrMissingConfiguration):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create checkout session"})
	default:
		c.JSON(http.StatusOK, gin.H{"url": sess.URL})
	}
}
