package retrieval

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

const classifyDeadline = 2 * time.Second

const classifySystemPrompt = `Classify the user's retrieval query.
Respond with exactly one JSON object:
{"mode":"broad|direct|indirect","predicates":["..."],"search_hints":["..."],"expanded_queries":["..."]}
"broad" means the user wants a general dump of what's known about them.
"direct" means the query names specific facts or predicates to look up.
"indirect" means the query needs semantic search and expansion.
predicates, search_hints and expanded_queries each hold at most 3 items.`

type classification struct {
	Mode            Mode     `json:"mode"`
	Predicates      []string `json:"predicates"`
	SearchHints     []string `json:"search_hints"`
	ExpandedQueries []string `json:"expanded_queries"`
}

func defaultClassification() classification {
	return classification{Mode: ModeIndirect, Predicates: []string{}, SearchHints: []string{}, ExpandedQueries: []string{}}
}

// classify runs the classify JSON call of spec §4.D step 1, defaulting to
// {mode=indirect} on any failure or invalid mode.
func (s *Service) classify(ctx context.Context, req Request) classification {
	ctx, cancel := context.WithTimeout(ctx, classifyDeadline)
	defer cancel()

	userPrompt := buildClassifyPrompt(req)
	raw, err := s.capability.CallJSON(ctx, classifySystemPrompt, userPrompt)
	if err != nil {
		return defaultClassification()
	}

	var c classification
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return defaultClassification()
	}

	switch c.Mode {
	case ModeBroad, ModeDirect, ModeIndirect:
	default:
		return defaultClassification()
	}

	c.Predicates = capStrings(c.Predicates, 3)
	c.SearchHints = capStrings(c.SearchHints, 3)
	c.ExpandedQueries = capStrings(c.ExpandedQueries, 3)
	return c
}

func buildClassifyPrompt(req Request) string {
	var b strings.Builder
	if len(req.ConversationContext) > 0 {
		ctx := req.ConversationContext
		if len(ctx) > ConversationCap {
			ctx = ctx[len(ctx)-ConversationCap:]
		}
		b.WriteString("Conversation context:\n")
		for _, line := range ctx {
			b.WriteString("- ")
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	b.WriteString("Query: ")
	b.WriteString(req.Query)
	return b.String()
}

func capStrings(ss []string, n int) []string {
	if len(ss) > n {
		return ss[:n]
	}
	return ss
}
