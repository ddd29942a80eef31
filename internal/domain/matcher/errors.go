package matcher

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is matched by every InvalidInputError via errors.Is
var ErrInvalidInput = errors.New("invalid input")

// InvalidInputError reports a structurally malformed payment.
// It stops the single request; callers should not retry it unchanged.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrInvalidInput) match any InvalidInputError
func (e *InvalidInputError) Is(target error) bool {
	return target == ErrInvalidInput
}

// ValidatePayment checks the mandatory payment fields
func ValidatePayment(p Payment) error {
	if !p.Amount.Valid {
		return &InvalidInputError{Field: "payment.amount", Reason: "is required"}
	}
	if normalizeCurrency(p.Currency) == "" {
		return &InvalidInputError{Field: "payment.currency", Reason: "is required"}
	}
	return nil
}
