// Package plan holds the subscription tiers and the catalog of monthly
// credit allotments they grant.
package plan

// Plan identifies a subscription tier.
type Plan string

const (
	Free    Plan = "free"
	Starter Plan = "starter"
	Pro     Plan = "pro"
)

// catalog is the single source of monthly allotments. Tiers not listed here
// are worth zero credits.
var catalog = map[Plan]int64{
	Starter: 10,
	Pro:     30,
}

// Credits returns the monthly credit allotment for a plan identifier.
// It is total: unknown identifiers, including "" and "free", return 0.
func Credits(id string) int64 {
	return catalog[Plan(id)]
}

// Credits returns the monthly allotment for p.
func (p Plan) Credits() int64 { return catalog[p] }

func (p Plan) String() string { return string(p) }

// IsPaid reports whether p is a purchasable tier.
func (p Plan) IsPaid() bool {
	_, ok := catalog[p]
	return ok
}

// Parse returns the plan named by id. Only known tiers parse.
func Parse(id string) (Plan, bool) {
	switch p := Plan(id); p {
	case Free, Starter, Pro:
		return p, true
	default:
		return "", false
	}
}

// Normalize maps id onto a known tier, falling back to Free.
func Normalize(id string) Plan {
	if p, ok := Parse(id); ok {
		return p
	}
	return Free
}

// Purchasable lists the tiers a checkout may be started for.
func Purchasable() []Plan {
	return []Plan{Starter, Pro}
}
