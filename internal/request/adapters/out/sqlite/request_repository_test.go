package sqlite

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"roadside/internal/request/adapters/out/storetest"
	"roadside/internal/request/application/ports/out"
	"roadside/internal/request/domain"
	"roadside/internal/shared/logger"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func openTemp(t *testing.T) *RequestRepository {
	t.Helper()
	log := logger.NewWithWriter("test", logrus.WarnLevel, &bytes.Buffer{})
	repo, err := Open(context.Background(), filepath.Join(t.TempDir(), "roadside.db"), log)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) out.RequestRepository {
		return openTemp(t)
	})
}

func TestCreateDuplicateIsConflict(t *testing.T) {
	repo := openTemp(t)
	r := domain.NewServiceRequest(uuid.NewString(), "u-1", domain.NewRequestInput{
		ServiceType: "battery",
		Location:    domain.Location{Address: "1 Elm St"},
	}, time.Now())

	if err := repo.Create(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	if err := repo.Create(context.Background(), r); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate create = %v", err)
	}
}

func TestSchemaRejectsInconsistentRow(t *testing.T) {
	repo := openTemp(t)
	// accepted без worker_id нарушает CHECK
	_, err := repo.db.Exec(`INSERT INTO service_requests (id, requester_id, service_type, location, status, created_at, updated_at)
		VALUES ('x', 'u', 'towing', '{"address":"a"}', 'accepted', 1, 1)`)
	if err == nil {
		t.Fatal("schema accepted an accepted row without worker")
	}
}

func TestReopenKeepsData(t *testing.T) {
	log := logger.NewWithWriter("test", logrus.WarnLevel, &bytes.Buffer{})
	path := filepath.Join(t.TempDir(), "persist.db")
	ctx := context.Background()

	repo, err := Open(ctx, path, log)
	if err != nil {
		t.Fatal(err)
	}
	r := domain.NewServiceRequest(uuid.NewString(), "u-1", domain.NewRequestInput{
		ServiceType: "lockout",
		Location:    domain.Location{Address: "9 Oak Ave"},
	}, time.Now())
	if err := repo.Create(ctx, r); err != nil {
		t.Fatal(err)
	}
	_ = repo.Close()

	repo, err = Open(ctx, path, log)
	if err != nil {
		t.Fatal(err)
	}
	defer repo.Close()
	got, err := repo.FindByID(ctx, r.ID)
	if err != nil || got.Location.Address != "9 Oak Ave" {
		t.Fatalf("reopen = %+v, %v", got, err)
	}
}
