package postgres

import (
	"strings"
)

// stopWords is the fixed set excluded during tokenization for lexical
// matching in SearchMemories.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "does": true, "for": true,
	"from": true, "how": true, "i": true, "in": true, "is": true, "it": true,
	"me": true, "my": true, "of": true, "on": true, "or": true, "our": true,
	"personal": true, "preference": true, "preferences": true, "the": true,
	"to": true, "user": true, "users": true, "what": true, "where": true,
	"who": true, "why": true, "you": true, "your": true,
}

// tokenize lowercases, strips non-alphanumerics, splits on whitespace, drops
// short/stop tokens, dedupes, and caps to 10 tokens.
func tokenize(q string) []string {
	lowered := strings.ToLower(q)
	var b strings.Builder
	for _, r := range lowered {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	seen := make(map[string]bool)
	tokens := make([]string, 0, 10)
	for _, tok := range strings.Fields(b.String()) {
		if len(tok) < 2 || stopWords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		tokens = append(tokens, tok)
		if len(tokens) == 10 {
			break
		}
	}
	return tokens
}

// lexicalBonus implements the spec's substring-match scoring bonus: 20 if
// the whole query appears verbatim in text, 16 if any non-stop token does,
// else 0.
func lexicalBonus(query, text string) float64 {
	if query == "" {
		return 0
	}
	lowerText := strings.ToLower(text)
	lowerQuery := strings.ToLower(query)
	if strings.Contains(lowerText, lowerQuery) {
		return 20
	}
	for _, tok := range tokenize(query) {
		if strings.Contains(lowerText, tok) {
			return 16
		}
	}
	return 0
}

// matchesSubstring reports whether the whole query or any non-stop token of
// it is a substring of text.
func matchesSubstring(query, text string) bool {
	if query == "" {
		return true
	}
	lowerText := strings.ToLower(text)
	if strings.Contains(lowerText, strings.ToLower(query)) {
		return true
	}
	for _, tok := range tokenize(query) {
		if strings.Contains(lowerText, tok) {
			return true
		}
	}
	return false
}

// effectiveScore implements spec §4.A's weighted fusion.
func effectiveScore(similarity, importance, confidence, bonus float64) float64 {
	return 0.60*similarity + 0.25*importance + 0.15*confidence*100 + bonus
}

// rankOnlyScore is the fallback ranking used when no query embedding is
// present: 0.25*importance + 0.15*confidence*100, no similarity component.
func rankOnlyScore(importance, confidence float64) float64 {
	return 0.25*importance + 0.15*confidence*100
}
