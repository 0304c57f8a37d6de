package workflow

import "strings"

// DeriveUsername produces the deterministic account username. A phone number
// starting with the country prefix is rewritten to the local trunk form
// ("+255712345678" -> "0712345678"); otherwise the first two characters of
// the first and last name are concatenated and lower-cased.
func DeriveUsername(phone, firstName, lastName, countryPrefix, trunkPrefix string) string {
	phone = strings.TrimSpace(phone)
	if phone != "" && countryPrefix != "" && strings.HasPrefix(phone, countryPrefix) {
		return trunkPrefix + strings.TrimPrefix(phone, countryPrefix)
	}
	return strings.ToLower(firstTwo(firstName) + firstTwo(lastName))
}

func firstTwo(s string) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) > 2 {
		runes = runes[:2]
	}
	return string(runes)
}
