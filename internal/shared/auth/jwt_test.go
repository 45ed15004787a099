package auth

import (
	"errors"
	"testing"
	"time"

	"roadside/internal/shared/config"
)

func newTestService(t *testing.T, now time.Time) *JWTService {
	t.Helper()
	s := NewJWTService(config.JWTConfig{Secret: "test-secret", ExpiryMinutes: 10})
	s.now = func() time.Time { return now }
	return s
}

func TestGenerateAndValidate(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := newTestService(t, now)

	tok, err := s.GenerateToken("w-1", "w1@example.com", "WORKER")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := s.ValidateToken(tok)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != "w-1" || claims.Role != RoleWorker {
		t.Fatalf("claims = %+v", claims)
	}

	uid, role, err := s.ExtractUserID(tok)
	if err != nil || uid != "w-1" || role != RoleWorker {
		t.Fatalf("ExtractUserID = %q %q %v", uid, role, err)
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := newTestService(t, now)
	tok, err := s.GenerateToken("u-1", "", RoleUser)
	if err != nil {
		t.Fatal(err)
	}
	s.now = func() time.Time { return now.Add(11 * time.Minute) }
	if _, err := s.ValidateToken(tok); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	now := time.Now()
	a := newTestService(t, now)
	b := NewJWTService(config.JWTConfig{Secret: "other", ExpiryMinutes: 10})
	tok, _ := a.GenerateToken("u-1", "", RoleUser)
	if _, err := b.ValidateToken(tok); err == nil {
		t.Fatal("expected signature mismatch")
	}
}

func TestGenerateRejectsUnknownRole(t *testing.T) {
	s := newTestService(t, time.Now())
	if _, err := s.GenerateToken("a-1", "", "admin"); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("err = %v, want ErrUnknownRole", err)
	}
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer   xyz ", "xyz", true},
		{"Basic abc", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := BearerToken(c.in)
		if got != c.want || ok != c.ok {
			t.Errorf("BearerToken(%q) = %q,%v want %q,%v", c.in, got, ok, c.want, c.ok)
		}
	}
}
