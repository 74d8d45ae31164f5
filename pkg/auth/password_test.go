package auth

import (
	"errors"
	"testing"
)

func TestHashPasswordAndCheckPasswordBcrypt(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if hash == "" || hash == "s3cret" {
		t.Fatalf("expected an opaque hash")
	}
	if !CheckPassword("s3cret", hash) {
		t.Fatalf("expected bcrypt password check to pass")
	}
	if CheckPassword("wrong", hash) {
		t.Fatalf("expected bcrypt password check to fail")
	}
	if CheckPassword("s3cret", "") {
		t.Fatalf("empty hash must never match")
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		ok       bool
	}{
		{"valid", "Str0ng#Password!", true},
		{"too short", "Sh0rt!Aa", false},
		{"no uppercase", "alllowercase123!", false},
		{"no lowercase", "ALLUPPERCASE123!", false},
		{"no digits", "NoDigitsHere!!!", false},
		{"no specials", "NoSpecials1234", false},
		{"space counts as special", "Has Space 1234", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePassword(tc.password)
			if tc.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrWeakPassword) {
				t.Fatalf("expected ErrWeakPassword, got %v", err)
			}
		})
	}
}

func TestOpaqueToken(t *testing.T) {
	plain, hash, err := NewOpaqueToken()
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	if plain == "" || hash == "" || plain == hash {
		t.Fatalf("unexpected token pair %q / %q", plain, hash)
	}
	if HashToken(plain) != hash {
		t.Fatalf("token should hash to the stored value")
	}
	if HashToken(plain+"x") == hash {
		t.Fatalf("different tokens must hash differently")
	}
}
