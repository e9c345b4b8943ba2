package security_test

import (
	"strings"
	"testing"

	"github.com/civicconnect/civic-backend/pkg/config"
	"github.com/civicconnect/civic-backend/pkg/security"
)

func TestHashAndVerifyPassword(t *testing.T) {
	cfg := config.PasswordConfig{
		ArgonMemoryKB:    32768,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	}

	hash, err := security.HashPassword("very-secure-password", cfg)
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if hash == "" {
		t.Fatal("HashPassword returned empty string")
	}

	ok, err := security.VerifyPassword("very-secure-password", hash)
	if err != nil {
		t.Fatalf("VerifyPassword returned error for valid hash: %v", err)
	}
	if !ok {
		t.Fatal("VerifyPassword failed for the correct password")
	}

	ok, err = security.VerifyPassword("bogus-password", hash)
	if err != nil {
		t.Fatalf("VerifyPassword returned error for invalid password: %v", err)
	}
	if ok {
		t.Fatal("VerifyPassword returned true for incorrect password")
	}
}

func TestVerifyPasswordBadHash(t *testing.T) {
	if _, err := security.VerifyPassword("irrelevant", "not-a-hash"); err == nil {
		t.Fatal("expected error for malformed hash")
	}
}

func TestNeedsRehash(t *testing.T) {
	weak := config.PasswordConfig{ArgonMemoryKB: 8192, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32}
	strong := config.PasswordConfig{ArgonMemoryKB: 32768, ArgonTime: 2, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32}

	hash, err := security.HashPassword("very-secure-password", weak)
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if security.NeedsRehash(hash, weak) {
		t.Fatal("hash produced with current params should not need rehash")
	}
	if !security.NeedsRehash(hash, strong) {
		t.Fatal("expected rehash when params are strengthened")
	}
	if !security.NeedsRehash("garbage", weak) {
		t.Fatal("expected malformed hash to need rehash")
	}
}

func TestGenerateTempPassword(t *testing.T) {
	for i := 0; i < 50; i++ {
		pw, err := security.GenerateTempPassword(14)
		if err != nil {
			t.Fatalf("GenerateTempPassword returned error: %v", err)
		}
		if len(pw) != 14 {
			t.Fatalf("expected 14 characters, got %d", len(pw))
		}
		if !strings.ContainsAny(pw, "ABCDEFGHJKLMNPQRSTUVWXYZ") ||
			!strings.ContainsAny(pw, "abcdefghijkmnopqrstuvwxyz") ||
			!strings.ContainsAny(pw, "23456789") {
			t.Fatalf("password %q is missing a character class", pw)
		}
		if strings.ContainsAny(pw, "0O1lI") {
			t.Fatalf("password %q contains a look-alike character", pw)
		}
	}
}

func TestGenerateTempPasswordRejectsShortLength(t *testing.T) {
	if _, err := security.GenerateTempPassword(4); err == nil {
		t.Fatal("expected error for short length")
	}
}
