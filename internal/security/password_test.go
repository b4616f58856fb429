package security_test

import (
	"errors"
	"testing"

	"github.com/geocoder89/medledger/internal/security"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerify(t *testing.T) {
	h := security.BcryptHasher{Cost: bcrypt.MinCost}

	hash, err := h.Hash("correct horse")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	if hash == "correct horse" {
		t.Fatal("hash must not equal the plaintext")
	}

	if err := h.Verify("correct horse", hash); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if err := h.Verify("battery staple", hash); !errors.Is(err, security.ErrPasswordMismatch) {
		t.Fatalf("got %v, want ErrPasswordMismatch", err)
	}
}
