package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"roadside/internal/request/domain"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		write       bool
		sentinel    error
		unknownOut  bool
		isTransport bool
	}{
		{"unique", &pgconn.PgError{Code: pgUniqueViolation}, true, domain.ErrConflict, false, false},
		{"bad uuid", &pgconn.PgError{Code: pgInvalidTextRep}, false, domain.ErrValidation, false, false},
		{"serialization", &pgconn.PgError{Code: pgSerializationFailure}, true, domain.ErrTransport, false, true},
		{"connection exception", &pgconn.PgError{Code: "08006"}, true, domain.ErrTransport, true, true},
		{"timeout on write", fmt.Errorf("wrap: %w", context.DeadlineExceeded), true, domain.ErrTransport, true, true},
		{"timeout on read", context.DeadlineExceeded, false, domain.ErrTransport, false, true},
		{"unknown driver error", errors.New("broken pipe"), true, domain.ErrTransport, true, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := classify("accept", "r-1", c.write, c.err)
			if !errors.Is(err, c.sentinel) {
				t.Fatalf("err = %v, want %v", err, c.sentinel)
			}
			var te *domain.TransportError
			if errors.As(err, &te) != c.isTransport {
				t.Fatalf("transport = %v", !c.isTransport)
			}
			if te != nil && te.OutcomeUnknown != c.unknownOut {
				t.Fatalf("OutcomeUnknown = %v, want %v", te.OutcomeUnknown, c.unknownOut)
			}
		})
	}

	if err := classify("x", "", true, nil); err != nil {
		t.Fatalf("nil classified as %v", err)
	}

	other := &pgconn.PgError{Code: "23514"}
	err := classify("complete", "r-1", true, other)
	if errors.Is(err, domain.ErrTransport) || !errors.As(err, new(*pgconn.PgError)) {
		t.Fatalf("check violation = %v", err)
	}
}

func TestCols(t *testing.T) {
	if got := cols("s"); got[:5] != "s.id," {
		t.Fatalf("cols(s) = %s", got)
	}
	if got := cols(""); got[:3] != "id," {
		t.Fatalf("cols() = %s", got)
	}
}
