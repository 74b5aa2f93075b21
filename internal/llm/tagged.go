package llm

import (
	"context"
	"fmt"
)

// Mode selects which tagged capability variant backs the service, mirroring
// spec §6's ai_mode configuration value.
type Mode string

const (
	ModeAuto         Mode = "auto"
	ModePrimaryLLM   Mode = "primary_llm"
	ModeSecondaryLLM Mode = "secondary_llm"
	ModeSimple       Mode = "simple"
)

// tag discriminates which provider, if any, backs a Capability.
type tag int

const (
	tagNone tag = iota
	tagPrimary
	tagSecondary
)

func (t tag) String() string {
	switch t {
	case tagPrimary:
		return "primary"
	case tagSecondary:
		return "secondary"
	default:
		return "none"
	}
}

// Capability is a tagged union over the two LLM-backed providers the
// orchestrators consume: embedding and structured JSON completion. Rather
// than branch on concrete provider types, callers ask Capability which tag
// is active and fall back accordingly — spec §9 asks for tagged values over
// a subclass hierarchy here.
type Capability struct {
	tag        tag
	name       string
	embedder   Embedder
	jsonCaller JSONCaller
	breaker    *CircuitBreaker
}

// None is the zero capability: every call reports "unavailable" so callers
// take their documented fallback path.
func None() Capability {
	return Capability{tag: tagNone, name: "none"}
}

// NewPrimary wraps a provider as the primary tagged capability.
func NewPrimary(name string, embedder Embedder, caller JSONCaller) Capability {
	return Capability{tag: tagPrimary, name: name, embedder: embedder, jsonCaller: caller, breaker: NewCircuitBreaker()}
}

// NewSecondary wraps a provider as the secondary tagged capability.
func NewSecondary(name string, embedder Embedder, caller JSONCaller) Capability {
	return Capability{tag: tagSecondary, name: name, embedder: embedder, jsonCaller: caller, breaker: NewCircuitBreaker()}
}

// Available reports whether this capability can serve calls at all.
func (c Capability) Available() bool { return c.tag != tagNone }

// Name is a display string for observability; orchestrators never branch on it.
func (c Capability) Name() string {
	if c.name == "" {
		return c.tag.String()
	}
	return c.name
}

// Embed runs the embedder through the circuit breaker. Returns (nil, err)
// when unavailable or the breaker is open; callers treat this as "no
// embedding" per spec §4.E step 2.
func (c Capability) Embed(ctx context.Context, text string) ([]float64, error) {
	if c.tag == tagNone || c.embedder == nil {
		return nil, fmt.Errorf("llm: embed unavailable (%s)", c.tag)
	}
	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return c.embedder.Embed(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	vec, _ := result.([]float64)
	return vec, nil
}

// CallJSON runs the JSON caller through the circuit breaker.
func (c Capability) CallJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.tag == tagNone || c.jsonCaller == nil {
		return "", fmt.Errorf("llm: call_json unavailable (%s)", c.tag)
	}
	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return c.jsonCaller.CallJSON(ctx, systemPrompt, userPrompt)
	})
	if err != nil {
		return "", err
	}
	text, _ := result.(string)
	return text, nil
}

// Selector resolves ai_mode into the active Capability, preferring primary
// then secondary then none (spec §6: "auto prefers primary, then secondary,
// then simple").
type Selector struct {
	Primary   Capability
	Secondary Capability
}

// Select returns the capability to use for mode. An unset/unavailable
// primary or secondary is skipped rather than returned, so "auto" degrades
// all the way to None() when nothing is configured.
func (s Selector) Select(mode Mode) Capability {
	switch mode {
	case ModePrimaryLLM:
		return s.Primary
	case ModeSecondaryLLM:
		return s.Secondary
	case ModeSimple:
		return None()
	default: // auto
		if s.Primary.Available() {
			return s.Primary
		}
		if s.Secondary.Available() {
			return s.Secondary
		}
		return None()
	}
}
