package plan_test

import (
	"testing"

	"github.com/xraph/credits/plan"
)

func TestCredits(t *testing.T) {
	tests := []struct {
		id   string
		want int64
	}{
		{"starter", 10},
		{"pro", 30},
		{"free", 0},
		{"", 0},
		{"enterprise", 0},
		{"Pro", 0},
		{" pro", 0},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := plan.Credits(tt.id); got != tt.want {
				t.Errorf("Credits(%q) = %d, want %d", tt.id, got, tt.want)
			}
		})
	}
}

func TestPlanCreditsMatchesCatalog(t *testing.T) {
	for _, p := range []plan.Plan{plan.Free, plan.Starter, plan.Pro} {
		if p.Credits() != plan.Credits(string(p)) {
			t.Errorf("%s: method and catalog disagree", p)
		}
	}
}

func TestParse(t *testing.T) {
	for _, id := range []string{"free", "starter", "pro"} {
		p, ok := plan.Parse(id)
		if !ok {
			t.Fatalf("Parse(%q) failed", id)
		}
		if p.String() != id {
			t.Errorf("Parse(%q) = %q", id, p)
		}
	}

	if _, ok := plan.Parse("gold"); ok {
		t.Error("expected unknown plan to be rejected")
	}
}

func TestNormalize(t *testing.T) {
	if got := plan.Normalize("pro"); got != plan.Pro {
		t.Errorf("Normalize(pro) = %q", got)
	}
	if got := plan.Normalize("gold"); got != plan.Free {
		t.Errorf("Normalize(gold) = %q, want free", got)
	}
	if got := plan.Normalize(""); got != plan.Free {
		t.Errorf("Normalize(\"\") = %q, want free", got)
	}
}

func TestPurchasable(t *testing.T) {
	for _, p := range plan.Purchasable() {
		if !p.IsPaid() {
			t.Errorf("%s listed as purchasable but not paid", p)
		}
	}
	if plan.Free.IsPaid() {
		t.Error("free must not be paid")
	}
}
