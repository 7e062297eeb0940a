package services

import (
	"errors"
	"fmt"

	"github.com/jjudge-oj/judgeserver/internal/store"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a problem, contest or submission does not
	// exist.
	ErrNotFound = store.ErrNotFound

	ErrForbidden           = errors.New("forbidden")
	ErrContestNotActive    = errors.New("contest is not active")
	ErrConcurrencyConflict = errors.New("concurrent submission conflict, please resubmit")
	ErrAlreadyRegistered   = errors.New("already registered for contest")
	ErrRegistrationClosed  = errors.New("contest registration is closed")
	ErrContestFull         = errors.New("contest has reached its participant limit")
)

// ValidationError describes invalid caller input. No state is changed when
// one is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
