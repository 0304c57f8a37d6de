package workflow

import (
	"fmt"
	"math/rand"
	"strings"
)

// GeneratePassword builds a password from two capitalized dictionary words
// and a 3-digit number, e.g. "MangoSimba482".
func GeneratePassword(words []string) string {
	if len(words) == 0 {
		words = []string{"afya", "kazi"}
	}
	first := capitalize(words[rand.Intn(len(words))])
	second := capitalize(words[rand.Intn(len(words))])
	return fmt.Sprintf("%s%s%d", first, second, 100+rand.Intn(900))
}

func capitalize(word string) string {
	word = strings.TrimSpace(word)
	if word == "" {
		return word
	}
	return strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
}
