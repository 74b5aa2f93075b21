package extraction

import (
	"regexp"
	"strings"

	"github.com/mnexium/memory-substrate/pkg/model"
)

const maxMemoryTextLength = 2000

var trivialPattern = regexp.MustCompile(`(?i)^(hi|hello|hey|thanks|thank you|ok|okay|yes|no|sure|bye|goodbye)[.!?]*$`)

var claimPatterns = []struct {
	re        *regexp.Regexp
	predicate string // "" means derive from a capture group (favorite_Y)
	claimType model.ClaimType
	confidence float64
}{
	{regexp.MustCompile(`(?i)my name is ([^.,!?\n]+)`), "name", model.ClaimTypeFact, 0.9},
	{regexp.MustCompile(`(?i)i live in ([^.,!?\n]+)`), "lives_in", model.ClaimTypeFact, 0.85},
	{regexp.MustCompile(`(?i)i work at ([^.,!?\n]+)`), "works_at", model.ClaimTypeFact, 0.85},
	{regexp.MustCompile(`(?i)my favorite (\w+(?:\s+\w+)?) is ([^.,!?\n]+)`), "", model.ClaimTypePreference, 0.85},
	{regexp.MustCompile(`(?i)i like ([^.,!?\n]+)`), "likes", model.ClaimTypePreference, 0.70},
}

var nonAlnumUnderscore = regexp.MustCompile(`[^a-z0-9_]+`)
var whitespaceRun = regexp.MustCompile(`\s+`)

func normalizePredicate(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	p = whitespaceRun.ReplaceAllString(p, "_")
	p = nonAlnumUnderscore.ReplaceAllString(p, "")
	return p
}

// Heuristic is the deterministic fallback variant of spec §4.C.
type Heuristic struct{}

func (Heuristic) Extract(req Request) Result {
	trimmed := collapseWhitespace(strings.TrimSpace(req.Text))

	if !req.Force && len(trimmed) < 40 && trivialPattern.MatchString(trimmed) {
		return Result{Memories: nil}
	}

	if len(trimmed) > maxMemoryTextLength {
		trimmed = trimmed[:maxMemoryTextLength]
	}

	claims := extractClaims(trimmed)

	kind := model.KindNote
	if len(claims) > 0 {
		kind = model.KindFact
	}

	return Result{Memories: []MemoryDraft{{
		Text:       trimmed,
		Kind:       kind,
		Importance: 50,
		Confidence: 0.8,
		Visibility: model.VisibilityPrivate,
		Claims:     claims,
	}}}
}

func extractClaims(text string) []ClaimDraft {
	type key struct{ predicate, object string }
	seen := make(map[key]bool)
	var out []ClaimDraft

	for _, p := range claimPatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}

		var predicate, object string
		if p.predicate == "" {
			// favorite_Y pattern: capture groups are (Y, X).
			y := normalizePredicate(m[1])
			predicate = "favorite_" + y
			object = strings.TrimSpace(m[2])
		} else {
			predicate = p.predicate
			object = strings.TrimSpace(m[1])
		}

		predicate = normalizePredicate(predicate)
		k := key{predicate, strings.ToLower(object)}
		if seen[k] {
			continue
		}
		seen[k] = true

		out = append(out, ClaimDraft{
			Predicate:   predicate,
			ObjectValue: object,
			ClaimType:   p.claimType,
			Confidence:  p.confidence,
		})
	}
	return out
}

func collapseWhitespace(s string) string {
	return whitespaceRun.ReplaceAllString(s, " ")
}
