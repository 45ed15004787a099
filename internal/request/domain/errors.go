package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrRequestNotFound возвращается когда заявка не найдена
	ErrRequestNotFound = errors.New("service request not found")

	// ErrValidation — некорректный ввод, отклонен до записи
	ErrValidation = errors.New("validation failed")

	// ErrConflict — условие перехода не выполнено (гонка проиграна, терминальный статус, чужая заявка)
	ErrConflict = errors.New("conflict")

	// ErrTransport — хранилище или сеть недоступны
	ErrTransport = errors.New("transport failure")

	// ErrForbidden — роль не допускает операцию
	ErrForbidden = errors.New("forbidden")

	// ErrInvariant — строка нарушает инварианты жизненного цикла
	ErrInvariant = errors.New("invariant violated")
)

// ValidationError names the offending input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ConflictError — conditional write matched zero rows.
type ConflictError struct {
	RequestID string
	Op        string
	Expected  string // предусловие, например "status=pending"
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s: precondition %s not met", e.Op, e.RequestID, e.Expected)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// TransportError wraps a store/network failure. OutcomeUnknown is set when a
// write may have landed despite the error; callers re-fetch instead of retrying.
type TransportError struct {
	Op             string
	Err            error
	OutcomeUnknown bool
}

func (e *TransportError) Error() string {
	if e.OutcomeUnknown {
		return fmt.Sprintf("%s: outcome unknown: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// ForbiddenError — роль не может выполнить операцию
type ForbiddenError struct {
	Role Role
	Op   string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("role %q may not %s", e.Role, e.Op)
}

func (e *ForbiddenError) Is(target error) bool { return target == ErrForbidden }

// InvariantError is returned by CheckInvariants.
type InvariantError struct {
	RequestID string
	Rule      string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("request %s violates %q", e.RequestID, e.Rule)
}

func (e *InvariantError) Is(target error) bool { return target == ErrInvariant }

// Expected preconditions of each conditional write.
const (
	ExpectAcceptable  = "status=pending"
	ExpectCompletable = "status=accepted and worker=caller"
	ExpectCancellable = "status in (pending, accepted) and requester=caller"
	ExpectRateable    = "status=completed and requester=caller and not yet rated"
)
