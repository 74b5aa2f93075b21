// Package retrieval resolves a conversational query into ranked memories,
// with a simple single-embedding variant and an LLM-expanded classify →
// dispatch → rerank variant.
package retrieval

import "github.com/mnexium/memory-substrate/pkg/model"

// Mode is the retrieval strategy that produced a Result.
type Mode string

const (
	ModeBroad    Mode = "broad"
	ModeDirect   Mode = "direct"
	ModeIndirect Mode = "indirect"
	ModeSimple   Mode = "simple"
)

// Candidate is a memory annotated with the two scores spec §4.A defines.
type Candidate struct {
	Memory         model.Memory `json:"memory"`
	Score          float64      `json:"score"`
	EffectiveScore float64      `json:"effective_score"`
}

// Result is the response shape both retrieval variants share.
type Result struct {
	Memories    []Candidate `json:"memories"`
	Mode        Mode        `json:"mode"`
	UsedQueries []string    `json:"used_queries"`
	Predicates  []string    `json:"predicates"`
}

// Request parameterizes a retrieval call.
type Request struct {
	ProjectID            string
	SubjectID            string
	Query                string
	Limit                int
	MinScore             float64
	ConversationContext  []string
}

const (
	QuerySetCap        = 6
	ConversationCap    = 5
	DefaultSearchLimit = 25
	MaxSearchLimit     = 200
)
