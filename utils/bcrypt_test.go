package utils

import "testing"

func TestHashPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("MangoSimba123")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if string(hash) == "MangoSimba123" {
		t.Fatal("hash must not equal the cleartext password")
	}
	if err := ComparePassword(string(hash), "MangoSimba123"); err != nil {
		t.Errorf("correct password rejected: %v", err)
	}
	if err := ComparePassword(string(hash), "WrongPassword1"); err == nil {
		t.Error("wrong password accepted")
	}
}
