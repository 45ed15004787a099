package db

import (
	"strings"
	"testing"
)

func TestMigrationNamesSorted(t *testing.T) {
	names, err := MigrationNames()
	if err != nil {
		t.Fatalf("MigrationNames: %v", err)
	}
	if len(names) == 0 || names[0] != "001_service_requests.sql" {
		t.Fatalf("names = %v", names)
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Fatalf("not sorted: %v", names)
		}
	}
}

func TestMigrationCarriesInvariantChecks(t *testing.T) {
	b, err := MigrationsFS.ReadFile("migrations/001_service_requests.sql")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	sql := string(b)
	for _, want := range []string{
		"service_requests_worker_chk",
		"service_requests_completed_chk",
		"CREATE TABLE IF NOT EXISTS service_requests",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("migration missing %q", want)
		}
	}
	if strings.Contains(strings.ToUpper(sql), "BEGIN;") {
		t.Error("migration must not manage its own transaction")
	}
}
