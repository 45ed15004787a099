package repo

import (
	"context"
	"errors"
	"fmt"

	"roadside/internal/request/domain"

	"github.com/jackc/pgx/v5/pgconn"
)

// Коды PostgreSQL, которые мапятся в доменные ошибки
const (
	pgUniqueViolation      = "23505"
	pgInvalidTextRep       = "22P02"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgAdminShutdown        = "57P01"
	pgCannotConnectNow     = "57P03"
)

// classify maps a driver error onto the domain taxonomy. write marks
// operations whose outcome is unknown when the connection fails mid-flight.
func classify(op, id string, write bool, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgUniqueViolation:
			return &domain.ConflictError{RequestID: id, Op: op, Expected: "id is new"}
		case pgErr.Code == pgInvalidTextRep:
			return &domain.ValidationError{Field: "id", Reason: "malformed"}
		case pgErr.Code == pgSerializationFailure, pgErr.Code == pgDeadlockDetected:
			// сервер откатил оператор — исход известен
			return &domain.TransportError{Op: op, Err: err}
		case pgErr.Code == pgAdminShutdown, pgErr.Code == pgCannotConnectNow, len(pgErr.Code) == 5 && pgErr.Code[:2] == "08":
			return &domain.TransportError{Op: op, Err: err, OutcomeUnknown: write}
		default:
			return fmt.Errorf("%s %s: %w", op, id, err)
		}
	}

	// запрос не ушел на сервер — повтор безопасен, исход известен
	if pgconn.SafeToRetry(err) {
		return &domain.TransportError{Op: op, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || pgconn.Timeout(err) {
		return &domain.TransportError{Op: op, Err: err, OutcomeUnknown: write}
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return &domain.TransportError{Op: op, Err: err}
	}

	return &domain.TransportError{Op: op, Err: err, OutcomeUnknown: write}
}
