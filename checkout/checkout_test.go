package checkout_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/checkout"
)

type fakeProcessor struct {
	got  []checkout.SessionRequest
	err  error
	sess *checkout.Session
}

func (f *fakeProcessor) CreateSession(_ context.Context, req checkout.SessionRequest) (*checkout.Session, error) {
	f.got = append(f.got, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.sess, nil
}

var fullConfig = checkout.Config{
	StarterPriceID: "price_starter",
	ProPriceID:     "price_pro",
	AppURL:         "https://app.example.com/",
}

func newInitiator(cfg checkout.Config, p checkout.Processor) *checkout.Initiator {
	return checkout.NewInitiator(cfg, p, checkout.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestStartCarriesIdentityMetadata(t *testing.T) {
	proc := &fakeProcessor{sess: &checkout.Session{ID: "cs_1", URL: "https://checkout.example.com/cs_1"}}
	i := newInitiator(fullConfig, proc)

	sess, err := i.Start(context.Background(), checkout.Request{UserKey: "u1", Email: "u1@example.com", Plan: "pro"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sess.URL != "https://checkout.example.com/cs_1" {
		t.Errorf("url = %q", sess.URL)
	}
	if len(proc.got) != 1 {
		t.Fatalf("processor called %d times", len(proc.got))
	}

	req := proc.got[0]
	if req.PriceID != "price_pro" {
		t.Errorf("price = %q", req.PriceID)
	}
	if req.Metadata["user_key"] != "u1" || req.Metadata["plan"] != "pro" {
		t.Errorf("metadata = %v", req.Metadata)
	}
	if req.CustomerEmail != "u1@example.com" {
		t.Errorf("email = %q", req.CustomerEmail)
	}
	if req.SuccessURL != "https://app.example.com/dashboard?checkout=success" {
		t.Errorf("success url = %q", req.SuccessURL)
	}
	if req.CancelURL != "https://app.example.com/pricing?checkout=cancel" {
		t.Errorf("cancel url = %q", req.CancelURL)
	}
	if req.ID.IsNil() {
		t.Error("request id not set")
	}
}

func TestStartErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  checkout.Config
		proc *fakeProcessor
		req  checkout.Request
		want error
	}{
		{
			name: "unknown plan",
			cfg:  fullConfig,
			proc: &fakeProcessor{},
			req:  checkout.Request{UserKey: "u1", Email: "e@x", Plan: "enterprise"},
			want: credits.ErrInvalidPlan,
		},
		{
			name: "free plan",
			cfg:  fullConfig,
			proc: &fakeProcessor{},
			req:  checkout.Request{UserKey: "u1", Email: "e@x", Plan: "free"},
			want: credits.ErrInvalidPlan,
		},
		{
			name: "missing email",
			cfg:  fullConfig,
			proc: &fakeProcessor{},
			req:  checkout.Request{UserKey: "u1", Plan: "starter"},
			want: credits.ErrInvalidInput,
		},
		{
			name: "missing price id",
			cfg:  checkout.Config{StarterPriceID: "price_starter"},
			proc: &fakeProcessor{},
			req:  checkout.Request{UserKey: "u1", Email: "e@x", Plan: "starter"},
			want: credits.ErrMissingConfiguration,
		},
		{
			name: "processor failure",
			cfg:  fullConfig,
			proc: &fakeProcessor{err: errors.New("card_declined")},
			req:  checkout.Request{UserKey: "u1", Email: "e@x", Plan: "starter"},
			want: credits.ErrUpstream,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newInitiator(tt.cfg, tt.proc).Start(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if tt.want != credits.ErrUpstream && len(tt.proc.got) != 0 {
				t.Error("processor called on a rejected request")
			}
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg checkout.Config
	if got := cfg.SuccessURL(); got != checkout.DefaultAppURL+"/dashboard?checkout=success" {
		t.Errorf("SuccessURL() = %q", got)
	}
	if cfg.PriceID("free") != "" {
		t.Error("free has no price")
	}
}
