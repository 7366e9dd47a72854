package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// LocalDevSubject is the user key injected when auth is disabled.
const LocalDevSubject = "local-dev"

// MiddlewareConfig controls auth enforcement.
type MiddlewareConfig struct {
	// DisableAuth injects LocalDevSubject claims instead of checking tokens.
	DisableAuth bool
	// LocalDevEmail is the email on the injected claims.
	LocalDevEmail string
	Logger        *slog.Logger
}

// Middleware enforces bearer token auth and stores the claims in the request
// context.
func Middleware(verifier *Verifier, cfg MiddlewareConfig) gin.HandlerFunc {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(c *gin.Context) {
		if cfg.DisableAuth {
			claims := &Claims{
				Subject: LocalDevSubject,
				Email:   cfg.LocalDevEmail,
				Issuer:  "local",
				Raw:     map[string]any{"sub": LocalDevSubject},
			}
			c.Request = c.Request.WithContext(WithClaims(c.Request.Context(), claims))
			c.Next()
			return
		}

		if verifier == nil {
			respondUnauthorized(c, "auth verifier not configured")
			return
		}

		header := c.GetHeader("Authorization")
		if header == "" {
			logger.Debug("auth failure: missing authorization header", "path", c.Request.URL.Path)
			respondUnauthorized(c, "unauthorized")
			return
		}

		token, ok := extractBearerToken(header)
		if !ok {
			logger.Debug("auth failure: malformed authorization header", "path", c.Request.URL.Path)
			respondUnauthorized(c, "unauthorized")
			return
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			logger.Info("auth failure: token rejected", "path", c.Request.URL.Path, "error", err)
			respondUnauthorized(c, "unauthorized")
			return
		}

		c.Request = c.Request.WithContext(WithClaims(c.Request.Context(), claims))
		c.Next()
	}
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

func respondUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message})
}
