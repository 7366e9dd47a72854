package stripe_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/event"
	"github.com/xraph/credits/provider/stripe"
)

const testSecret = "whsec_test_secret"

func sign(t *testing.T, secret, payload string) ([]byte, string) {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return signed.Payload, signed.Header
}

func envelope(id, kind, object string) string {
	return `{"id":"` + id + `","object":"event","type":"` + kind + `","created":1767225600,"api_version":"2025-03-31.basil","data":{"object":` + object + `}}`
}

func TestVerifyDecodesKinds(t *testing.T) {
	tests := []struct {
		name  string
		kind  string
		obj   string
		check func(t *testing.T, evt event.Event)
	}{
		{
			name: "checkout completed",
			kind: "checkout.session.completed",
			obj: `{"id":"cs_1","object":"checkout.session","mode":"subscription","customer":"cus_1","subscription":"sub_1",
				"customer_details":{"email":"buyer@example.com"},"customer_email":"other@example.com",
				"metadata":{"user_key":"user_1","plan":"pro"}}`,
			check: func(t *testing.T, evt event.Event) {
				c, ok := evt.(event.CheckoutCompleted)
				if !ok {
					t.Fatalf("got %T", evt)
				}
				if c.UserKey != "user_1" || c.Plan != "pro" || c.CustomerID != "cus_1" || c.SubscriptionID != "sub_1" {
					t.Errorf("event = %+v", c)
				}
				if c.Email != "buyer@example.com" {
					t.Errorf("email = %q, want customer_details email", c.Email)
				}
			},
		},
		{
			name: "checkout with client reference and expanded customer",
			kind: "checkout.session.completed",
			obj:  `{"id":"cs_2","client_reference_id":"user_2","customer":{"id":"cus_2","object":"customer"},"customer_email":"fallback@example.com","metadata":{}}`,
			check: func(t *testing.T, evt event.Event) {
				c := evt.(event.CheckoutCompleted)
				if c.UserKey != "user_2" || c.CustomerID != "cus_2" || c.Email != "fallback@example.com" {
					t.Errorf("event = %+v", c)
				}
			},
		},
		{
			name: "invoice paid with parent details",
			kind: "invoice.paid",
			obj: `{"id":"in_1","object":"invoice","customer":"cus_1",
				"parent":{"subscription_details":{"subscription":"sub_1","metadata":{"user_key":"user_1","plan":"starter"}}}}`,
			check: func(t *testing.T, evt event.Event) {
				p, ok := evt.(event.InvoicePaid)
				if !ok {
					t.Fatalf("got %T", evt)
				}
				if p.SubscriptionID != "sub_1" || p.UserKey != "user_1" || p.Plan != "starter" || p.InvoiceID != "in_1" {
					t.Errorf("event = %+v", p)
				}
			},
		},
		{
			name: "invoice paid legacy shape",
			kind: "invoice.paid",
			obj:  `{"id":"in_2","customer":"cus_1","subscription":"sub_9"}`,
			check: func(t *testing.T, evt event.Event) {
				p := evt.(event.InvoicePaid)
				if p.SubscriptionID != "sub_9" || p.UserKey != "" {
					t.Errorf("event = %+v", p)
				}
			},
		},
		{
			name: "payment failed",
			kind: "invoice.payment_failed",
			obj:  `{"id":"in_3","customer":"cus_1","attempt_count":3,"subscription_details":{"subscription":"sub_1","metadata":{"user_key":"user_1"}}}`,
			check: func(t *testing.T, evt event.Event) {
				f, ok := evt.(event.InvoicePaymentFailed)
				if !ok {
					t.Fatalf("got %T", evt)
				}
				if f.AttemptCount != 3 || f.UserKey != "user_1" || f.SubscriptionID != "sub_1" {
					t.Errorf("event = %+v", f)
				}
			},
		},
		{
			name: "subscription deleted",
			kind: "customer.subscription.deleted",
			obj:  `{"id":"sub_1","object":"subscription","customer":"cus_1","status":"canceled","metadata":{"user_key":"user_1"}}`,
			check: func(t *testing.T, evt event.Event) {
				c, ok := evt.(event.SubscriptionCanceled)
				if !ok {
					t.Fatalf("got %T", evt)
				}
				if c.UserKey != "user_1" || c.SubscriptionID != "sub_1" {
					t.Errorf("event = %+v", c)
				}
			},
		},
		{
			name: "other kind",
			kind: "customer.created",
			obj:  `{"id":"cus_1","object":"customer"}`,
			check: func(t *testing.T, evt event.Event) {
				if _, ok := evt.(event.Other); !ok {
					t.Fatalf("got %T", evt)
				}
			},
		},
	}

	v := stripe.NewVerifier(testSecret)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, header := sign(t, testSecret, envelope("evt_"+strings.ReplaceAll(tt.name, " ", "_"), tt.kind, tt.obj))
			evt, err := v.Verify(payload, header)
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			meta := evt.Header()
			if meta.Provider != stripe.Provider || string(meta.Type) != tt.kind || meta.ID == "" {
				t.Errorf("meta = %+v", meta)
			}
			if !meta.Created.Equal(time.Unix(1767225600, 0)) {
				t.Errorf("created = %v", meta.Created)
			}
			tt.check(t, evt)
		})
	}
}

func TestVerifyRejectsBadSignatures(t *testing.T) {
	body := envelope("evt_1", "invoice.paid", `{"id":"in_1"}`)
	payload, header := sign(t, testSecret, body)

	tests := []struct {
		name    string
		payload []byte
		header  string
	}{
		{"wrong secret", payload, func() string { _, h := sign(t, "whsec_other", body); return h }()},
		{"tampered body", []byte(strings.Replace(string(payload), "in_1", "in_2", 1)), header},
		{"empty header", payload, ""},
		{"garbage header", payload, "not-a-signature"},
		{"missing v1", payload, "t=1767225600"},
	}

	v := stripe.NewVerifier(testSecret)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, err := v.Verify(tt.payload, tt.header)
			if !errors.Is(err, credits.ErrInvalidSignature) {
				t.Fatalf("err = %v, want ErrInvalidSignature", err)
			}
			if evt != nil {
				t.Errorf("event returned with bad signature: %+v", evt)
			}
		})
	}
}

func TestVerifyExpiredTimestamp(t *testing.T) {
	body := envelope("evt_1", "invoice.paid", `{"id":"in_1"}`)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(body),
		Secret:    testSecret,
		Timestamp: time.Now().Add(-time.Hour),
		Scheme:    "v1",
	})

	_, err := stripe.NewVerifier(testSecret, stripe.WithTolerance(time.Minute)).Verify(signed.Payload, signed.Header)
	if !errors.Is(err, credits.ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyMalformedObject(t *testing.T) {
	payload, header := sign(t, testSecret, envelope("evt_bad", "checkout.session.completed", `{"id":"cs_1","metadata":"not-a-map"}`))

	evt, err := stripe.NewVerifier(testSecret).Verify(payload, header)
	if !errors.Is(err, credits.ErrMalformedEvent) {
		t.Fatalf("err = %v, want ErrMalformedEvent", err)
	}
	if evt == nil || evt.Header().ID != "evt_bad" {
		t.Fatalf("envelope not returned: %+v", evt)
	}
	if _, ok := evt.(event.Other); !ok {
		t.Errorf("got %T, want event.Other", evt)
	}
}

func TestVerifyMissingSecret(t *testing.T) {
	_, err := stripe.NewVerifier("").Verify([]byte("{}"), "t=1,v1=abc")
	if !errors.Is(err, credits.ErrMissingConfiguration) {
		t.Fatalf("err = %v, want ErrMissingConfiguration", err)
	}
}
