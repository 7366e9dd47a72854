package stripe

import (
	"bytes"
	"encoding/json"

	"github.com/xraph/credits/event"
)

// expandable holds the id of a field Stripe sends either as a bare id or as
// an expanded object.
type expandable string

func (e *expandable) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*e = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = expandable(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*e = expandable(obj.ID)
	return nil
}

// checkoutSession is the part of a Checkout Session the ledger reads.
type checkoutSession struct {
	ID                string     `json:"id"`
	Mode              string     `json:"mode"`
	Customer          expandable `json:"customer"`
	Subscription      expandable `json:"subscription"`
	ClientReferenceID string     `json:"client_reference_id"`
	CustomerEmail     string     `json:"customer_email"`
	CustomerDetails   *struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	Metadata map[string]string `json:"metadata"`
}

func (s checkoutSession) email() string {
	if s.CustomerDetails != nil && s.CustomerDetails.Email != "" {
		return s.CustomerDetails.Email
	}
	return s.CustomerEmail
}

func (s checkoutSession) toEvent(meta event.Meta) event.CheckoutCompleted {
	userKey := s.Metadata[event.MetadataUserKey]
	if userKey == "" {
		userKey = s.ClientReferenceID
	}
	return event.CheckoutCompleted{
		Meta:           meta,
		UserKey:        userKey,
		Email:          s.email(),
		Plan:           s.Metadata[event.MetadataPlan],
		CustomerID:     string(s.Customer),
		SubscriptionID: string(s.Subscription),
	}
}

type subscriptionDetails struct {
	Subscription expandable        `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

// invoice covers both the pre-2025 shape (top-level subscription) and the
// current one, where the subscription hangs off parent.subscription_details.
type invoice struct {
	ID                  string               `json:"id"`
	Customer            expandable           `json:"customer"`
	Subscription        expandable           `json:"subscription"`
	AttemptCount        int64                `json:"attempt_count"`
	SubscriptionDetails *subscriptionDetails `json:"subscription_details"`
	Parent              *struct {
		SubscriptionDetails *subscriptionDetails `json:"subscription_details"`
	} `json:"parent"`
}

func (in invoice) details() *subscriptionDetails {
	if in.Parent != nil && in.Parent.SubscriptionDetails != nil {
		return in.Parent.SubscriptionDetails
	}
	return in.SubscriptionDetails
}

func (in invoice) subscriptionID() string {
	if d := in.details(); d != nil && d.Subscription != "" {
		return string(d.Subscription)
	}
	return string(in.Subscription)
}

func (in invoice) metadata(key string) string {
	if d := in.details(); d != nil {
		return d.Metadata[key]
	}
	return ""
}

// subscription is the part of a Subscription the ledger reads.
type subscription struct {
	ID       string            `json:"id"`
	Customer expandable        `json:"customer"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}
