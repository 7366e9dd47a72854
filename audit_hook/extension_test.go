package audithook_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/xraph/credits/account"
	audithook "github.com/xraph/credits/audit_hook"
	"github.com/xraph/credits/event"
	"github.com/xraph/credits/plan"
)

type memRecorder struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (r *memRecorder) Record(_ context.Context, evt *audithook.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *memRecorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Action
	}
	return out
}

var pro = &account.Account{
	UserKey:          "user_1",
	Plan:             plan.Pro,
	MonthlyCredits:   30,
	RemainingCredits: 30,
	Status:           account.StatusActive,
	SubscriptionID:   "sub_1",
}

func TestHooksRecordActions(t *testing.T) {
	ctx := context.Background()
	meta := event.Meta{Provider: "stripe", ID: "evt_1", Type: event.KindInvoicePaid}

	tests := []struct {
		name   string
		call   func(e *audithook.Extension) error
		action string
		id     string
	}{
		{"received", func(e *audithook.Extension) error { return e.OnWebhookReceived(ctx, meta) }, audithook.ActionWebhookReceived, "evt_1"},
		{"activated", func(e *audithook.Extension) error { return e.OnAccountActivated(ctx, pro) }, audithook.ActionAccountActivated, "user_1"},
		{"reset", func(e *audithook.Extension) error { return e.OnCreditsReset(ctx, pro) }, audithook.ActionCreditsReset, "user_1"},
		{"canceled", func(e *audithook.Extension) error { return e.OnSubscriptionCanceled(ctx, pro) }, audithook.ActionSubscriptionCanceled, "sub_1"},
		{"payment failed", func(e *audithook.Extension) error {
			return e.OnPaymentFailed(ctx, event.InvoicePaymentFailed{InvoiceID: "in_1", UserKey: "user_1"}, nil)
		}, audithook.ActionPaymentFailed, "in_1"},
		{"ignored", func(e *audithook.Extension) error { return e.OnEventIgnored(ctx, meta, "unhandled") }, audithook.ActionWebhookIgnored, "evt_1"},
		{"debited", func(e *audithook.Extension) error { return e.OnCreditsDebited(ctx, "user_1", 2, 28) }, audithook.ActionCreditsDebited, "user_1"},
		{"insufficient", func(e *audithook.Extension) error { return e.OnInsufficientCredits(ctx, "user_1", 2, 0) }, audithook.ActionCreditsInsufficient, "user_1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &memRecorder{}
			ext := audithook.New(rec)
			if err := tt.call(ext); err != nil {
				t.Fatalf("hook returned %v", err)
			}
			if len(rec.events) != 1 {
				t.Fatalf("recorded %d events", len(rec.events))
			}
			got := rec.events[0]
			if got.Action != tt.action || got.ResourceID != tt.id {
				t.Errorf("event = %+v", got)
			}
		})
	}
}

func TestReconcileFailedCarriesReason(t *testing.T) {
	rec := &memRecorder{}
	ext := audithook.New(rec)

	_ = ext.OnReconcileFailed(context.Background(), event.Meta{ID: "evt_9"}, errors.New("db down"))

	got := rec.events[0]
	if got.Severity != audithook.SeverityCritical || got.Outcome != audithook.OutcomeFailure {
		t.Errorf("event = %+v", got)
	}
	if got.Reason != "db down" || got.Metadata["error"] != "db down" {
		t.Errorf("reason = %q metadata = %v", got.Reason, got.Metadata)
	}
}

func TestActionFilters(t *testing.T) {
	ctx := context.Background()

	rec := &memRecorder{}
	ext := audithook.New(rec, audithook.WithEnabledActions(audithook.ActionCreditsDebited))
	_ = ext.OnCreditsDebited(ctx, "u", 2, 0)
	_ = ext.OnInsufficientCredits(ctx, "u", 2, 0)
	if got := rec.actions(); len(got) != 1 || got[0] != audithook.ActionCreditsDebited {
		t.Errorf("enabled filter recorded %v", got)
	}

	rec = &memRecorder{}
	ext = audithook.New(rec, audithook.WithDisabledActions(audithook.ActionWebhookReceived))
	_ = ext.OnWebhookReceived(ctx, event.Meta{ID: "evt_1"})
	_ = ext.OnCreditsDebited(ctx, "u", 2, 0)
	if got := rec.actions(); len(got) != 1 || got[0] != audithook.ActionCreditsDebited {
		t.Errorf("disabled filter recorded %v", got)
	}
}

func TestRecorderErrorIsSwallowed(t *testing.T) {
	failing := audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("backend unavailable")
	})
	ext := audithook.New(failing, audithook.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err := ext.OnCreditsDebited(context.Background(), "u", 2, 0); err != nil {
		t.Fatalf("hook error = %v, want nil", err)
	}
}
