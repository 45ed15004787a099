package sqlite

import (
	"context"
	"errors"
	"fmt"

	"roadside/internal/request/domain"

	sqlite3 "github.com/mattn/go-sqlite3"
)

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique
}

// classify maps go-sqlite3 errors onto the domain taxonomy.
func classify(op string, write bool, err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			// оператор не выполнен — исход известен
			return &domain.TransportError{Op: op, Err: err}
		case sqlite3.ErrIoErr, sqlite3.ErrFull, sqlite3.ErrCantOpen:
			return &domain.TransportError{Op: op, Err: err, OutcomeUnknown: write}
		default:
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if errors.Is(err, context.Canceled) && !write {
		return &domain.TransportError{Op: op, Err: err}
	}
	// deadline, closed db и прочее: запись могла успеть примениться
	return &domain.TransportError{Op: op, Err: err, OutcomeUnknown: write}
}
