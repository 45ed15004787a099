package repo

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"

	"roadside/internal/request/adapters/out/storetest"
	"roadside/internal/request/application/ports/out"
	"roadside/internal/shared/db"
	"roadside/internal/shared/logger"

	"github.com/sirupsen/logrus"
)

func TestPgConformance(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires postgres)")
	}
	dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	log := logger.NewWithWriter("test", logrus.WarnLevel, &bytes.Buffer{})
	pool, err := db.NewPoolFromDSN(ctx, dsn, "DATABASE_URL", log)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := db.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	storetest.Run(t, func(t *testing.T) out.RequestRepository {
		if _, err := pool.Exec(ctx, `TRUNCATE service_requests`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return NewRequestPgRepository(pool, log)
	})
}
