package workflow

import (
	"errors"
	"testing"
)

func TestBirthdateFromNIN(t *testing.T) {
	cases := []struct {
		nin    string
		want   string
		wantOk bool
	}{
		{"19570716-42150-00010-77", "1957-07-16", true},
		{"19900115-12345-12345-12", "1990-01-15", true},
		{"20001231-00000-00000-00", "2000-12-31", true},
		{"19571316-42150-00010-77", "", false}, // month 13
		{"1957071-42150-00010-77", "", false},  // short first group
		{"19570716-42150-00010", "", false},    // missing last group
		{"19570716421500001077", "", false},    // no separators
		{"", "", false},
	}
	for _, c := range cases {
		got, err := BirthdateFromNIN(c.nin)
		if c.wantOk {
			if err != nil {
				t.Errorf("BirthdateFromNIN(%q) errored: %v", c.nin, err)
				continue
			}
			if got != c.want {
				t.Errorf("BirthdateFromNIN(%q) = %q, want %q", c.nin, got, c.want)
			}
			continue
		}
		if err == nil {
			t.Errorf("BirthdateFromNIN(%q) should fail", c.nin)
			continue
		}
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("BirthdateFromNIN(%q) error %T, want *ValidationError", c.nin, err)
		}
	}
}
