// Package id defines the TypeID-based identifiers minted by the credits
// engine: webhook receipts, debits and checkout requests.
//
// User accounts are keyed by the identity provider's subject and never get a
// TypeID. Everything the engine creates itself does, so logs and audit
// records can be correlated by a sortable "prefix_suffix" string.
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Prefix constants for engine-minted identifiers.
const (
	PrefixReceipt  Prefix = "rcpt" // Processed webhook delivery
	PrefixDebit    Prefix = "dbt"  // Credit debit
	PrefixCheckout Prefix = "chk"  // Checkout session request
)

// ID wraps a TypeID. The zero value is Nil and stores as SQL NULL.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new globally unique ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string (e.g., "rcpt_01h2xcejqtf2nbrexx3vqjhp41")
// into an ID. Returns an error if the string is not valid.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses a TypeID string and validates that its prefix
// matches the expected value.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}

	return parsed, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded ID values.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}

	return parsed
}

// ReceiptID identifies a processed webhook delivery (prefix: "rcpt").
type ReceiptID = ID

// DebitID identifies a single credit debit (prefix: "dbt").
type DebitID = ID

// CheckoutID identifies a checkout request (prefix: "chk"). It doubles as the
// processor idempotency key.
type CheckoutID = ID

// NewReceiptID generates a new receipt ID.
func NewReceiptID() ID { return New(PrefixReceipt) }

// NewDebitID generates a new debit ID.
func NewDebitID() ID { return New(PrefixDebit) }

// NewCheckoutID generates a new checkout request ID.
func NewCheckoutID() ID { return New(PrefixCheckout) }

// ParseReceiptID parses a string and validates the "rcpt" prefix.
func ParseReceiptID(s string) (ID, error) { return ParseWithPrefix(s, PrefixReceipt) }

// ParseDebitID parses a string and validates the "dbt" prefix.
func ParseDebitID(s string) (ID, error) { return ParseWithPrefix(s, PrefixDebit) }

// ParseCheckoutID parses a string and validates the "chk" prefix.
func ParseCheckoutID(s string) (ID, error) { return ParseWithPrefix(s, PrefixCheckout) }

// String returns the "prefix_suffix" form, or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the prefix component, or "" for Nil.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether i is the zero value.
func (i ID) IsNil() bool { return !i.valid }

// MarshalText implements encoding.TextMarshaler. Nil marshals to "".
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. "" unmarshals to Nil.
func (i *ID) UnmarshalText(data []byte) error {
	return i.set(string(data))
}

// Value implements driver.Valuer. Nil is stored as NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // NULL column
	}
	return i.inner.String(), nil
}

// Scan implements sql.Scanner for TEXT and BLOB columns.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.set(v)
	case []byte:
		return i.set(string(v))
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}

func (i *ID) set(s string) error {
	if s == "" {
		*i = Nil
		return nil
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
