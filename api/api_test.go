package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v82/webhook"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/api"
	"github.com/xraph/credits/auth"
	"github.com/xraph/credits/checkout"
	"github.com/xraph/credits/plan"
	"github.com/xraph/credits/provider/stripe"
	"github.com/xraph/credits/store/memory"
)

const webhookSecret = "whsec_api_test"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeProcessor struct {
	err error
}

func (f *fakeProcessor) CreateSession(_ context.Context, req checkout.SessionRequest) (*checkout.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &checkout.Session{ID: "cs_1", URL: "https://pay.example.com/" + req.Metadata["plan"]}, nil
}

type env struct {
	store  *memory.Store
	ledger *credits.Ledger
	router *gin.Engine
}

func newEnv(t *testing.T, email string, proc checkout.Processor) *env {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := memory.New()
	l := credits.New(s,
		credits.WithLogger(logger),
		credits.WithVerifier(stripe.NewVerifier(webhookSecret)),
	)

	opts := []api.Option{
		api.WithLogger(logger),
		api.WithAuth(nil, auth.MiddlewareConfig{DisableAuth: true, LocalDevEmail: email}),
		api.WithMetrics(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "# metrics\n")
		})),
	}
	if proc != nil {
		opts = append(opts, api.WithCheckout(checkout.NewInitiator(checkout.Config{
			StarterPriceID: "price_starter",
			ProPriceID:     "price_pro",
		}, proc, checkout.WithLogger(logger))))
	}

	return &env{store: s, ledger: l, router: api.New(l, opts...).Router()}
}

func (e *env) do(t *testing.T, method, path string, body []byte, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *env) seed(t *testing.T, remaining int64) {
	t.Helper()
	_, err := e.store.UpsertAccount(context.Background(), &account.Account{
		UserKey:          auth.LocalDevSubject,
		Plan:             plan.Starter,
		MonthlyCredits:   10,
		UsedCredits:      10 - remaining,
		RemainingCredits: remaining,
		Status:           account.StatusActive,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func signedDelivery(t *testing.T, payload string) ([]byte, http.Header) {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    webhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	h := http.Header{}
	h.Set("Stripe-Signature", signed.Header)
	h.Set("Content-Type", "application/json")
	return signed.Payload, h
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	e := newEnv(t, "", nil)
	body := `{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{"metadata":{"user_key":"u1","plan":"pro"}}}}`
	h := http.Header{}
	h.Set("Stripe-Signature", "t=1,v1=deadbeef")

	rec := e.do(t, http.MethodPost, "/api/stripe/webhook", []byte(body), h)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decode(t, rec)["error"]; got != "invalid signature" {
		t.Errorf("error = %v", got)
	}
	if _, err := e.store.GetAccount(context.Background(), "u1"); !errors.Is(err, credits.ErrAccountNotFound) {
		t.Errorf("row written on bad signature: %v", err)
	}
}

func TestWebhookAppliesCheckout(t *testing.T) {
	e := newEnv(t, "", nil)
	payload, h := signedDelivery(t, `{"id":"evt_1","object":"event","type":"checkout.session.completed","created":1767225600,
		"data":{"object":{"id":"cs_1","customer":"cus_1","subscription":"sub_1","metadata":{"user_key":"u1","plan":"pro"}}}}`)

	for i := range 2 {
		rec := e.do(t, http.MethodPost, "/api/stripe/webhook", payload, h)
		if rec.Code != http.StatusOK || decode(t, rec)["received"] != true {
			t.Fatalf("delivery %d: status = %d body = %s", i, rec.Code, rec.Body.String())
		}
	}

	a, err := e.store.GetAccount(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if a.Plan != plan.Pro || a.RemainingCredits != 30 {
		t.Errorf("row = %+v", a)
	}
}

func TestWebhookBodySize(t *testing.T) {
	checkoutWithPadding := func(n int) string {
		return `{"id":"evt_big","object":"event","type":"checkout.session.completed",
		"data":{"object":{"id":"cs_1","customer":"cus_1","subscription":"sub_1",
		"description":"` + strings.Repeat("x", n) + `","metadata":{"user_key":"u1","plan":"starter"}}}}`
	}
	tests := []struct {
		name       string
		padding    int
		wantStatus int
		wantRow    bool
	}{
		{"signed event over 64 KiB", 70 << 10, http.StatusOK, true},
		{"body over the limit", 1 << 20, http.StatusRequestEntityTooLarge, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, "", nil)
			payload, h := signedDelivery(t, checkoutWithPadding(tt.padding))

			rec := e.do(t, http.MethodPost, "/api/stripe/webhook", payload, h)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
			}

			a, err := e.store.GetAccount(context.Background(), "u1")
			switch {
			case tt.wantRow && err != nil:
				t.Fatalf("row not written: %v", err)
			case tt.wantRow && (a.Plan != plan.Starter || a.RemainingCredits != 10):
				t.Errorf("row = %+v", a)
			case !tt.wantRow && !errors.Is(err, credits.ErrAccountNotFound):
				t.Errorf("row written for rejected body: %v", err)
			}
		})
	}
}

func TestWebhookAcknowledgesUnhandledAndUnresolved(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unhandled kind", `{"id":"evt_2","object":"event","type":"customer.created","data":{"object":{"id":"cus_1"}}}`},
		{"no user key", `{"id":"evt_3","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_1","metadata":{}}}}`},
		{"renewal for unknown user", `{"id":"evt_4","object":"event","type":"invoice.paid","data":{"object":{"id":"in_1","subscription_details":{"subscription":"sub_1","metadata":{"user_key":"ghost"}}}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, "", nil)
			payload, h := signedDelivery(t, tt.body)
			rec := e.do(t, http.MethodPost, "/api/stripe/webhook", payload, h)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestUseCredits(t *testing.T) {
	e := newEnv(t, "", nil)
	e.seed(t, 3)

	rec := e.do(t, http.MethodPost, "/api/credits/use", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["deducted"] != float64(2) || body["remaining"] != float64(1) {
		t.Errorf("body = %v", body)
	}

	rec = e.do(t, http.MethodPost, "/api/credits/use", nil, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	body = decode(t, rec)
	if body["error"] != "insufficient credits" || body["remaining"] != float64(1) {
		t.Errorf("body = %v", body)
	}
}

func TestUseCreditsUnknownUser(t *testing.T) {
	e := newEnv(t, "", nil)
	rec := e.do(t, http.MethodPost, "/api/credits/use", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGetCredits(t *testing.T) {
	e := newEnv(t, "", nil)

	rec := e.do(t, http.MethodGet, "/api/credits", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decode(t, rec); body["plan"] != "free" || body["remaining_credits"] != float64(0) {
		t.Errorf("implicit body = %v", body)
	}

	e.seed(t, 7)
	rec = e.do(t, http.MethodGet, "/api/credits", nil, nil)
	if body := decode(t, rec); body["plan"] != "starter" || body["remaining_credits"] != float64(7) {
		t.Errorf("body = %v", body)
	}
}

func TestCreateCheckout(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		proc     checkout.Processor
		body     string
		want     int
		wantBody string
	}{
		{"ok", "dev@localhost", &fakeProcessor{}, `{"plan":"pro"}`, http.StatusOK, "https://pay.example.com/pro"},
		{"invalid plan", "dev@localhost", &fakeProcessor{}, `{"plan":"gold"}`, http.StatusBadRequest, "invalid plan"},
		{"missing email", "", &fakeProcessor{}, `{"plan":"starter"}`, http.StatusBadRequest, "no email found"},
		{"bad json", "dev@localhost", &fakeProcessor{}, `{`, http.StatusBadRequest, "invalid request body"},
		{"upstream failure", "dev@localhost", &fakeProcessor{err: errors.New("boom")}, `{"plan":"pro"}`, http.StatusInternalServerError, "failed to create checkout session"},
		{"not configured", "dev@localhost", nil, `{"plan":"pro"}`, http.StatusInternalServerError, "billing not configured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, tt.email, tt.proc)
			h := http.Header{}
			h.Set("Content-Type", "application/json")
			rec := e.do(t, http.MethodPost, "/api/stripe/checkout", []byte(tt.body), h)
			if rec.Code != tt.want {
				t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %s, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	l := credits.New(memory.New(), credits.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	v, err := auth.NewVerifier("secret", "", "")
	if err != nil {
		t.Fatal(err)
	}
	router := api.New(l, api.WithAuth(v, auth.MiddlewareConfig{})).Router()

	for _, path := range []string{"/api/credits/use", "/api/stripe/checkout"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t, "", nil)

	if rec := e.do(t, http.MethodGet, "/health", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, "/metrics", nil, nil); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "# metrics") {
		t.Fatalf("metrics status = %d body = %s", rec.Code, rec.Body.String())
	}

	if err := e.ledger.Stop(); err != nil {
		t.Fatal(err)
	}
	if rec := e.do(t, http.MethodGet, "/health", nil, nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("health after stop = %d", rec.Code)
	}
}
