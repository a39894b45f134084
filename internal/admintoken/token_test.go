package admintoken

import (
	"errors"
	"testing"
	"time"
)

func TestMintAndVerify(t *testing.T) {
	m, err := New("test-secret", time.Minute)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, err := m.Mint("user-1", "admin")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	claims, err := m.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.Role != "admin" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	a, _ := New("secret-a", time.Minute)
	b, _ := New("secret-b", time.Minute)
	token, err := a.Mint("user-1", "admin")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := b.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got: %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	m, _ := New("test-secret", time.Minute)
	if _, err := m.Verify("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got: %v", err)
	}
}

func TestNewRequiresSecret(t *testing.T) {
	if _, err := New("  ", time.Minute); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
