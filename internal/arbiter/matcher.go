// Package arbiter decides whether a player's message reveals the hidden word.
//
// A local deterministic matcher always runs first. An external oracle is
// consulted only when the matcher does not fire and the oracle is healthy.
package arbiter

import "strings"

// normalize lowercases s, turns every rune outside [a-z0-9] into a space and
// collapses the result to single-space separated tokens.
func normalize(s string) string {
	lower := strings.ToLower(s)
	mapped := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return ' '
	}, lower)
	return strings.Join(strings.Fields(mapped), " ")
}

// ContainsWordGuess reports whether any token of text equals word or one of
// its naive plurals (word+"s", word+"es"). Substrings do not count.
func ContainsWordGuess(text, word string) bool {
	w := normalize(word)
	if w == "" {
		return false
	}
	variants := map[string]struct{}{w: {}, w + "s": {}, w + "es": {}}
	for _, tok := range strings.Fields(normalize(text)) {
		if _, ok := variants[tok]; ok {
			return true
		}
	}
	return false
}

var directAskPhrases = []string{
	"what is the word",
	"tell me the word",
	"reveal the word",
	"give me the word",
}

// IsDirectAsk reports whether text asks for the hidden word outright.
func IsDirectAsk(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range directAskPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
