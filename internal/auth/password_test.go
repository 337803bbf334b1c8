package auth

import "testing"

func TestHashVerifyRoundTrip(t *testing.T) {
	passwords := []string{"longenough1", "correct horse battery staple", "密码password"}
	for _, password := range passwords {
		hash, err := HashPassword(password)
		if err != nil {
			t.Fatalf("HashPassword(%q): %v", password, err)
		}
		if !VerifyPassword(password, hash) {
			t.Fatalf("VerifyPassword failed for %q", password)
		}
		if VerifyPassword(password+"x", hash) {
			t.Fatalf("VerifyPassword accepted wrong password for %q", password)
		}
	}
}

func TestHashIsSalted(t *testing.T) {
	first, err := HashPassword("longenough1")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	second, err := HashPassword("longenough1")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct hashes for repeated input")
	}
}

func TestVerifyMalformedHash(t *testing.T) {
	if VerifyPassword("anything", "not-a-bcrypt-hash") {
		t.Fatalf("expected malformed hash to fail verification")
	}
	if VerifyPassword("anything", "") {
		t.Fatalf("expected empty hash to fail verification")
	}
}
