package agent

import (
	"strings"
	"unicode/utf8"
)

// MinConfidentLength is the shortest answer, in characters, that can pass
// the confidence gate.
const MinConfidentLength = 50

// uncertaintyPhrases are matched case-insensitively anywhere in an answer.
var uncertaintyPhrases = []string{
	"i don't know",
	"i'm not sure",
	"i'm uncertain",
	"i can't answer",
}

// IsLowConfidence reports whether answer is too short or admits uncertainty.
// Only the ASCII apostrophe is recognised in the phrases.
func IsLowConfidence(answer string) bool {
	if utf8.RuneCountInString(answer) < MinConfidentLength {
		return true
	}
	lower := strings.ToLower(answer)
	for _, phrase := range uncertaintyPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
