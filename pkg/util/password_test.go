package util

import "testing"

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("password123")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !IsBcryptHash(hash) {
		t.Fatalf("hash %q not recognised as bcrypt", hash)
	}
	if !CheckPassword("password123", hash) {
		t.Fatal("correct password rejected")
	}
	if CheckPassword("wrong", hash) {
		t.Fatal("wrong password accepted")
	}
}

func TestCheckPasswordPlaintext(t *testing.T) {
	if !CheckPassword("admin", "admin") {
		t.Fatal("legacy plaintext rejected")
	}
	if CheckPassword("admin", "Admin") {
		t.Fatal("plaintext compare is case-insensitive")
	}
	if CheckPassword("", "admin") {
		t.Fatal("empty password accepted")
	}
}
