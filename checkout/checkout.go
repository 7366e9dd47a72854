// Package checkout starts hosted checkout sessions for paid plans.
//
// The session carries the user key and plan as metadata on both the session
// and the subscription it creates. Completion and renewal events echo that
// metadata back, which is how the reconciliation engine recovers the user
// without a session lookup table.
package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/event"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/plan"
)

// DefaultAppURL is used when Config.AppURL is empty.
const DefaultAppURL = "http://localhost:3000"

// Config holds the processor price ids and the public app URL.
type Config struct {
	StarterPriceID string `json:"starter_price_id" yaml:"starter_price_id" mapstructure:"starter_price_id"`
	ProPriceID     string `json:"pro_price_id"     yaml:"pro_price_id"     mapstructure:"pro_price_id"`
	AppURL         string `json:"app_url"          yaml:"app_url"          mapstructure:"app_url"`
}

// PriceID returns the configured price for p.
func (c Config) PriceID(p plan.Plan) string {
	switch p {
	case plan.Starter:
		return c.StarterPriceID
	case plan.Pro:
		return c.ProPriceID
	default:
		return ""
	}
}

func (c Config) appURL() string {
	if c.AppURL == "" {
		return DefaultAppURL
	}
	return strings.TrimRight(c.AppURL, "/")
}

// SuccessURL is where the processor redirects after payment.
func (c Config) SuccessURL() string { return c.appURL() + "/dashboard?checkout=success" }

// CancelURL is where the processor redirects when the user backs out.
func (c Config) CancelURL() string { return c.appURL() + "/pricing?checkout=cancel" }

// SessionRequest is what a Processor needs to create a hosted session.
type SessionRequest struct {
	// ID doubles as the idempotency key.
	ID            id.CheckoutID
	PriceID       string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// Session is a created hosted checkout session.
type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Processor creates hosted checkout sessions.
type Processor interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
}

// Request asks for a session on behalf of an authenticated user.
type Request struct {
	UserKey string
	Email   string
	Plan    string
}

// Initiator validates checkout requests and hands them to a Processor.
type Initiator struct {
	cfg       Config
	processor Processor
	logger    *slog.Logger
}

// Option configures an Initiator.
type Option func(*Initiator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Initiator) { i.logger = logger }
}

// NewInitiator creates an Initiator.
func NewInitiator(cfg Config, processor Processor, opts ...Option) *Initiator {
	i := &Initiator{
		cfg:       cfg,
		processor: processor,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Start creates a hosted session for req.
//
// It fails with credits.ErrInvalidPlan for anything but a purchasable tier,
// credits.ErrInvalidInput when the user or email is missing,
// credits.ErrMissingConfiguration when either price id is unset, and
// credits.ErrUpstream when the processor call fails.
func (i *Initiator) Start(ctx context.Context, req Request) (*Session, error) {
	p, ok := plan.Parse(req.Plan)
	if !ok || !p.IsPaid() {
		return nil, fmt.Errorf("%w: %q", credits.ErrInvalidPlan, req.Plan)
	}
	if req.UserKey == "" {
		return nil, credits.ValidationError{Field: "user_key", Message: "required"}
	}
	if req.Email == "" {
		return nil, credits.ValidationError{Field: "email", Message: "no email found"}
	}
	if err := i.validate(); err != nil {
		return nil, err
	}

	sr := SessionRequest{
		ID:            id.NewCheckoutID(),
		PriceID:       i.cfg.PriceID(p),
		CustomerEmail: req.Email,
		SuccessURL:    i.cfg.SuccessURL(),
		CancelURL:     i.cfg.CancelURL(),
		Metadata: map[string]string{
			event.MetadataUserKey: req.UserKey,
			event.MetadataPlan:    string(p),
		},
	}

	sess, err := i.processor.CreateSession(ctx, sr)
	if err != nil {
		i.logger.Error("checkout session failed",
			"user_key", req.UserKey,
			"plan", p,
			"checkout_id", sr.ID.String(),
			"error", err,
		)
		return nil, fmt.Errorf("%w: %w", credits.ErrUpstream, err)
	}

	i.logger.Info("checkout session created",
		"user_key", req.UserKey,
		"plan", p,
		"checkout_id", sr.ID.String(),
		"session_id", sess.ID,
	)
	return sess, nil
}

// validate requires every purchasable tier to have a price id.
func (i *Initiator) validate() error {
	var missing []string
	for _, p := range plan.Purchasable() {
		if i.cfg.PriceID(p) == "" {
			missing = append(missing, string(p)+" price id")
		}
	}
	if i.processor == nil {
		missing = append(missing, "processor")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", credits.ErrMissingConfiguration, strings.Join(missing, ", "))
	}
	return nil
}
