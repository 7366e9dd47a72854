// Package api exposes the credits engine over HTTP with gin.
//
// Routes:
//
//	POST /api/stripe/webhook    processor deliveries (signature checked, no bearer auth)
//	POST /api/credits/use       debit the caller's balance
//	GET  /api/credits           the caller's ledger row
//	POST /api/stripe/checkout   start a hosted checkout for {plan}
//	GET  /health                store ping
//	GET  /metrics               when a metrics handler is configured
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/auth"
	"github.com/xraph/credits/checkout"
)

// maxWebhookBytes caps the webhook body. Larger deliveries get 413.
const maxWebhookBytes = 1 << 20

// Handler serves the credits HTTP surface.
type Handler struct {
	ledger       *credits.Ledger
	checkout     *checkout.Initiator
	verifier     *auth.Verifier
	authCfg      auth.MiddlewareConfig
	metrics      http.Handler
	allowOrigins []string
	logger       *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithCheckout enables POST /api/stripe/checkout.
func WithCheckout(i *checkout.Initiator) Option {
	return func(h *Handler) { h.checkout = i }
}

// WithAuth sets the bearer verifier and middleware config for user routes.
func WithAuth(v *auth.Verifier, cfg auth.MiddlewareConfig) Option {
	return func(h *Handler) {
		h.verifier = v
		h.authCfg = cfg
	}
}

// WithMetrics serves mh at GET /metrics.
func WithMetrics(mh http.Handler) Option {
	return func(h *Handler) { h.metrics = mh }
}

// WithAllowedOrigins sets the CORS origins. Defaults to any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(h *Handler) { h.allowOrigins = origins }
}

// New creates a Handler over l.
func New(l *credits.Ledger, opts ...Option) *Handler {
	h := &Handler{
		ledger:       l,
		allowOrigins: []string{"*"},
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.authCfg.Logger == nil {
		h.authCfg.Logger = h.logger
	}
	return h
}

// Router builds a standalone gin engine with CORS and every route mounted.
func (h *Handler) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: h.allowOrigins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	h.Register(router)
	return router
}

// Register mounts the routes on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/health", h.Health)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics))
	}
	r.POST("/api/stripe/webhook", h.StripeWebhook)

	protected := r.Group("/api")
	protected.Use(auth.Middleware(h.verifier, h.authCfg))
	protected.POST("/credits/use", h.UseCredits)
	protected.GET("/credits", h.GetCredits)
	protected.POST("/stripe/checkout", h.CreateCheckout)
}

// Health reports whether the store is reachable.
func (h *Handler) Health(c *gin.Context) {
	if err := h.ledger.Ping(c.Request.Context()); err != nil {
		h.logger.Warn("health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) userKey(c *gin.Context) (*auth.Claims, bool) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok || claims.Subject == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	return claims, true
}
