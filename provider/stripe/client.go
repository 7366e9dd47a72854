package stripe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	stripelib "github.com/stripe/stripe-go/v82"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	stripesub "github.com/stripe/stripe-go/v82/subscription"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/checkout"
	"github.com/xraph/credits/event"
)

// compile-time interface checks
var (
	_ event.SubscriptionResolver = (*Client)(nil)
	_ checkout.Processor         = (*Client)(nil)
)

// Client calls the Stripe API for subscription lookups and hosted checkout
// sessions.
type Client struct {
	logger *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient sets the process-wide Stripe API key and returns a client.
func NewClient(secretKey string, opts ...ClientOption) *Client {
	stripelib.Key = secretKey
	c := &Client{logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResolveSubscription fetches a subscription and the checkout metadata
// attached to it.
func (c *Client) ResolveSubscription(ctx context.Context, subscriptionID string) (*event.Subscription, error) {
	if subscriptionID == "" {
		return nil, credits.ValidationError{Field: "subscription_id", Message: "required"}
	}

	params := &stripelib.SubscriptionParams{}
	params.Context = ctx
	sub, err := stripesub.Get(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("%w: retrieve subscription %s: %w", credits.ErrUpstream, subscriptionID, err)
	}

	out := &event.Subscription{
		ID:      sub.ID,
		Status:  string(sub.Status),
		UserKey: sub.Metadata[event.MetadataUserKey],
		Plan:    sub.Metadata[event.MetadataPlan],
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}

	c.logger.Debug("subscription resolved",
		"subscription_id", out.ID,
		"status", out.Status,
		"user_key", out.UserKey,
	)
	return out, nil
}

// CreateSession creates a subscription-mode hosted checkout session. The
// metadata is copied onto the subscription so renewals carry it too.
func (c *Client) CreateSession(ctx context.Context, req checkout.SessionRequest) (*checkout.Session, error) {
	metadata := make(map[string]string, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	if !req.ID.IsNil() {
		metadata["checkout_id"] = req.ID.String()
	}

	params := &stripelib.CheckoutSessionParams{
		Mode: stripelib.String(string(stripelib.CheckoutSessionModeSubscription)),
		LineItems: []*stripelib.CheckoutSessionLineItemParams{
			{
				Price:    stripelib.String(req.PriceID),
				Quantity: stripelib.Int64(1),
			},
		},
		SuccessURL: stripelib.String(req.SuccessURL),
		CancelURL:  stripelib.String(req.CancelURL),
		Metadata:   metadata,
		SubscriptionData: &stripelib.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripelib.String(req.CustomerEmail)
	}
	if userKey := req.Metadata[event.MetadataUserKey]; userKey != "" {
		params.ClientReferenceID = stripelib.String(userKey)
	}
	params.Context = ctx
	if !req.ID.IsNil() {
		params.SetIdempotencyKey(req.ID.String())
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		var serr *stripelib.Error
		if errors.As(err, &serr) {
			return nil, fmt.Errorf("create checkout session: %s (%s)", serr.Msg, serr.Code)
		}
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	if sess.URL == "" {
		return nil, errors.New("create checkout session: no url returned")
	}

	return &checkout.Session{ID: sess.ID, URL: sess.URL}, nil
}
