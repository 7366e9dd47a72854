package credits

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound     = errors.New("credits: not found")
	ErrInvalidInput = errors.New("credits: invalid input")

	// Webhook errors
	ErrInvalidSignature   = errors.New("credits: invalid webhook signature")
	ErrMalformedEvent     = errors.New("credits: malformed webhook event")
	ErrUnresolvedIdentity = errors.New("credits: event carries no resolvable user identity")

	// Ledger errors
	ErrAccountNotFound     = errors.New("credits: account not found")
	ErrInsufficientCredits = errors.New("credits: insufficient credits")

	// Checkout errors
	ErrInvalidPlan          = errors.New("credits: invalid plan")
	ErrMissingConfiguration = errors.New("credits: missing configuration")
	ErrUpstream             = errors.New("credits: payment processor request failed")

	// Store errors
	ErrStoreNotReady   = errors.New("credits: store not ready")
	ErrStoreClosed     = errors.New("credits: store is closed")
	ErrMigrationFailed = errors.New("credits: migration failed")
)

// InsufficientCreditsError carries the balance observed when a debit was
// refused. It matches ErrInsufficientCredits with errors.Is.
type InsufficientCreditsError struct {
	Remaining int64
	Required  int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("credits: insufficient credits: %d remaining, %d required", e.Remaining, e.Required)
}

// Is reports whether target is ErrInsufficientCredits.
func (e *InsufficientCreditsError) Is(target error) bool {
	return target == ErrInsufficientCredits
}

// Insufficient returns the refusal details carried by err, if any.
func Insufficient(err error) (*InsufficientCreditsError, bool) {
	var ie *InsufficientCreditsError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("credits: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets validation failures match ErrInvalidInput.
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "credits: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("credits: %d errors occurred: %v", len(e.Errors), e.Errors[0])
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// ErrOrNil returns e when it holds errors, nil otherwise.
func (e MultiError) ErrOrNil() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAccountNotFound)
}

// IsClientError reports whether err was caused by the caller's input rather
// than by the engine or its collaborators.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidPlan) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrInsufficientCredits) ||
		IsNotFound(err)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrUpstream)
}
