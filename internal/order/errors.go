package order

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound           = errors.New("order not found")
	ErrForbidden               = errors.New("actor is not allowed to access this order")
	ErrValidation              = errors.New("validation failed")
	ErrInvalidTransition       = errors.New("invalid order status transition")
	ErrPaymentMismatch         = errors.New("amount received does not match order total")
	ErrPaymentAlreadyCompleted = errors.New("payment is already completed")
	ErrConcurrentUpdate        = errors.New("order was modified concurrently")
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries field-level detail about rejected input.
type ValidationError struct {
	Fields []FieldError
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (e *ValidationError) empty() bool {
	return len(e.Fields) == 0
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

type TransitionError struct {
	From   Status
	To     Status
	Role   string
	Reason string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("invalid order status transition %s -> %s for %s", e.From, e.To, e.Role)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

type PaymentMismatchError struct {
	Expected decimal.Decimal
	Received decimal.Decimal
}

func (e *PaymentMismatchError) Error() string {
	return fmt.Sprintf("amount received %s does not match order total %s", e.Received.StringFixed(2), e.Expected.StringFixed(2))
}

func (e *PaymentMismatchError) Is(target error) bool {
	return target == ErrPaymentMismatch
}
