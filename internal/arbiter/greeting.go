package arbiter

import (
	"strings"

	"github.com/qchat-dev/qchat-go/internal/textutil"
)

var greetingWords = map[string]struct{}{
	"hi": {}, "hello": {}, "hey": {}, "hii": {}, "sup": {},
	"what's": {}, "whats": {}, "up": {}, "there": {},
}

var greetingPunct = strings.NewReplacer("!", "", "?", "", ".", "", ",", "", ":", "", ";", "")

// IsGreeting reports whether message is nothing but one to three greeting
// words, ignoring punctuation.
func IsGreeting(message string) bool {
	words := strings.Fields(greetingPunct.Replace(textutil.Normalize(message)))
	if len(words) == 0 || len(words) > 3 {
		return false
	}
	for _, w := range words {
		if _, ok := greetingWords[w]; !ok {
			return false
		}
	}
	return true
}
