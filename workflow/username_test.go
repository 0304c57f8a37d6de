package workflow

import (
	"regexp"
	"testing"
)

func TestDeriveUsernameFromPhone(t *testing.T) {
	got := DeriveUsername("+255712345678", "Amina", "Juma", "+255", "0")
	if got != "0712345678" {
		t.Errorf("username = %q, want 0712345678", got)
	}
}

func TestDeriveUsernameFromNames(t *testing.T) {
	cases := []struct {
		phone, first, last, want string
	}{
		{"", "Amina", "Juma", "amju"},
		{"0712345678", "Amina", "Juma", "amju"}, // already local form, no prefix match
		{"", "Al", "Ng'ombe", "alng"},
		{"", "A", "B", "ab"},
	}
	for _, c := range cases {
		got := DeriveUsername(c.phone, c.first, c.last, "+255", "0")
		if got != c.want {
			t.Errorf("DeriveUsername(%q, %q, %q) = %q, want %q", c.phone, c.first, c.last, got, c.want)
		}
	}
}

func TestGeneratePasswordShape(t *testing.T) {
	shape := regexp.MustCompile(`^[A-Z][a-z]*[A-Z][a-z]*\d{3}$`)
	words := []string{"mango", "simba", "pweza"}
	for i := 0; i < 50; i++ {
		pw := GeneratePassword(words)
		if !shape.MatchString(pw) {
			t.Fatalf("password %q does not match word+word+3digits shape", pw)
		}
	}
}

func TestGeneratePasswordEmptyWordList(t *testing.T) {
	if pw := GeneratePassword(nil); pw == "" {
		t.Fatal("empty word list must still produce a password")
	}
}
