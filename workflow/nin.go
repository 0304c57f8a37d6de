package workflow

import (
	"regexp"
	"time"
)

// National IDs look like 19570716-42150-00010-77; the first group encodes
// the holder's birthdate.
var ninPattern = regexp.MustCompile(`^(\d{8})-\d{5}-\d{5}-\d{2}$`)

// BirthdateFromNIN extracts the birthdate (YYYY-MM-DD) from a national ID.
func BirthdateFromNIN(nin string) (string, error) {
	m := ninPattern.FindStringSubmatch(nin)
	if m == nil {
		return "", &ValidationError{Field: "nin", Reason: "does not match the 4-group national ID pattern"}
	}
	t, err := time.Parse("20060102", m[1])
	if err != nil {
		return "", &ValidationError{Field: "nin", Reason: "encodes an invalid birthdate"}
	}
	return t.Format("2006-01-02"), nil
}
