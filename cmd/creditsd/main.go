// Command creditsd serves the credits HTTP API backed by Postgres or memory.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/api"
	audithook "github.com/xraph/credits/audit_hook"
	"github.com/xraph/credits/auth"
	"github.com/xraph/credits/checkout"
	"github.com/xraph/credits/config"
	"github.com/xraph/credits/observability"
	"github.com/xraph/credits/provider/stripe"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/memory"
	"github.com/xraph/credits/store/sqldb"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "creditsd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	metrics := observability.NewPrometheusFactory()
	ledgerOpts := []credits.Option{
		credits.WithLogger(logger),
		credits.WithPlugin(observability.NewMetricsExtension(metrics)),
		credits.WithPlugin(audithook.New(auditLog(logger), audithook.WithLogger(logger))),
		credits.WithVerifier(stripe.NewVerifier(cfg.StripeWebhookSecret, stripe.WithTolerance(cfg.StripeWebhookTolerance))),
		credits.WithDebitCost(cfg.DebitCost),
		credits.WithFailurePolicy(cfg.FailurePolicy),
	}

	var client *stripe.Client
	if cfg.StripeSecretKey != "" {
		client = stripe.NewClient(cfg.StripeSecretKey, stripe.WithLogger(logger))
		ledgerOpts = append(ledgerOpts, credits.WithSubscriptionResolver(client))
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set: renewals without subscription metadata cannot be attributed and checkout is disabled")
	}

	l, err := startLedger(ctx, s, logger, ledgerOpts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := l.Stop(); err != nil {
			logger.Error("ledger stop failed", "error", err)
		}
	}()

	apiOpts := []api.Option{
		api.WithLogger(logger),
		api.WithMetrics(metrics.Handler()),
		api.WithAllowedOrigins(cfg.AllowedOrigins...),
	}
	authCfg := auth.MiddlewareConfig{DisableAuth: cfg.AuthDisabled, Logger: logger}
	if cfg.AuthDisabled {
		logger.Warn("auth disabled: every request acts as " + auth.LocalDevSubject)
		apiOpts = append(apiOpts, api.WithAuth(nil, authCfg))
	} else {
		v, err := auth.NewVerifier(cfg.AuthJWTSecret, cfg.AuthIssuer, cfg.AuthAudience)
		if err != nil {
			return err
		}
		apiOpts = append(apiOpts, api.WithAuth(v, authCfg))
	}
	if client != nil && cfg.CheckoutEnabled() {
		apiOpts = append(apiOpts, api.WithCheckout(checkout.NewInitiator(cfg.Checkout, client, checkout.WithLogger(logger))))
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.New(l, apiOpts...).Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("creditsd listening", "addr", srv.Addr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// startLedger starts a ledger over s and closes s when start fails.
func startLedger(ctx context.Context, s store.Store, logger *slog.Logger, opts ...credits.Option) (*credits.Ledger, error) {
	l := credits.New(s, opts...)
	if err := l.Start(ctx); err != nil {
		if cerr := s.Close(); cerr != nil {
			logger.Error("store close failed", "error", cerr)
		}
		return nil, fmt.Errorf("start ledger: %w", err)
	}
	return l, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		s, err := sqldb.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return s, nil
	default:
		return memory.New(), nil
	}
}

// auditLog writes audit events to the structured log.
func auditLog(logger *slog.Logger) audithook.Recorder {
	return audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
		logger.LogAttrs(ctx, slog.LevelInfo, "audit",
			slog.String("action", evt.Action),
			slog.String("resource", evt.Resource),
			slog.String("resource_id", evt.ResourceID),
			slog.String("outcome", evt.Outcome),
			slog.String("severity", evt.Severity),
			slog.Any("metadata", evt.Metadata),
		)
		return nil
	})
}
