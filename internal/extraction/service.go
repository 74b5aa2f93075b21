package extraction

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/mnexium/memory-substrate/internal/llm"
)

const extractDeadline = 4 * time.Second
const maxConversationContext = 5

const systemPrompt = `You extract durable memories and structured claims from a user message.
Respond with exactly one JSON object of the form:
{"memories":[{"text":"...","kind":"fact|preference|context|note|event|trait","importance":0-100,"confidence":0-1,"is_temporal":bool,"visibility":"private|shared|public","tags":["..."],"claims":[{"predicate":"...","object_value":"...","claim_type":"fact|preference|goal|event","confidence":0-1}]}]}
Return {"memories":[]} if nothing durable is worth remembering.`

// Service runs the LLM variant of spec §4.C, falling through to Heuristic
// on timeout, network failure, unparseable JSON, an empty-memories
// response, or schema validation failure.
type Service struct {
	capability llm.Capability
	heuristic  Heuristic
}

func New(capability llm.Capability) *Service {
	return &Service{capability: capability}
}

func (s *Service) Extract(ctx context.Context, req Request) Result {
	if !s.capability.Available() {
		return s.heuristic.Extract(req)
	}

	result, ok := s.extractViaLLM(ctx, req)
	if !ok {
		return s.heuristic.Extract(req)
	}
	return result
}

func (s *Service) extractViaLLM(ctx context.Context, req Request) (Result, bool) {
	ctx, cancel := context.WithTimeout(ctx, extractDeadline)
	defer cancel()

	userPrompt := buildUserPrompt(req)
	raw, err := s.capability.CallJSON(ctx, systemPrompt, userPrompt)
	if err != nil {
		return Result{}, false
	}

	var result Result
	if err := json.Unmarshal([]byte(extractJSON(raw)), &result); err != nil {
		return Result{}, false
	}

	if len(result.Memories) == 0 {
		return Result{}, false
	}

	if !validate(result) {
		return Result{}, false
	}

	return result, true
}

func buildUserPrompt(req Request) string {
	var b strings.Builder
	if len(req.ConversationContext) > 0 {
		ctx := req.ConversationContext
		if len(ctx) > maxConversationContext {
			ctx = ctx[len(ctx)-maxConversationContext:]
		}
		b.WriteString("Conversation context:\n")
		for _, line := range ctx {
			b.WriteString("- ")
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	b.WriteString("Force: ")
	if req.Force {
		b.WriteString("true\n")
	} else {
		b.WriteString("false\n")
	}
	b.WriteString("Message: ")
	b.WriteString(req.Text)
	return b.String()
}

// validate enforces the minimal schema the orchestrators depend on: every
// memory needs non-empty text, and every claim needs a predicate and
// object_value.
func validate(r Result) bool {
	for _, m := range r.Memories {
		if strings.TrimSpace(m.Text) == "" {
			return false
		}
		for _, c := range m.Claims {
			if c.Predicate == "" || c.ObjectValue == "" {
				return false
			}
		}
	}
	return true
}

// extractJSON strips markdown code fences and isolates the first top-level
// JSON object, tolerating explanatory text an LLM adds despite instructions.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text
	}

	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return text[start:]
}
