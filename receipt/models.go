// Package receipt records which processor deliveries have already been
// reconciled, so a redelivered event is acknowledged without being applied
// twice.
package receipt

import (
	"time"

	"github.com/xraph/credits/id"
)

// Receipt marks one processor event as handled.
type Receipt struct {
	ID          id.ReceiptID `json:"id"`
	Provider    string       `json:"provider"`
	EventID     string       `json:"event_id"`
	EventType   string       `json:"event_type"`
	UserKey     string       `json:"user_key,omitempty"`
	Outcome     string       `json:"outcome"`
	ProcessedAt time.Time    `json:"processed_at"`
}

// Key is the dedupe key of a delivery.
func Key(provider, eventID string) string {
	return provider + ":" + eventID
}
