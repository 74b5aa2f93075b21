package llm

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when a capability's breaker is open and rejects
// the call to avoid hammering a provider that is already failing.
var ErrCircuitOpen = errors.New("llm: circuit open")

// breakerMaxFailures/breakerTimeout/breakerHalfOpenMax tune how fast a tagged
// capability trips and how long it waits before probing the provider again.
// Fixed rather than configurable: the two providers behind a Capability
// (primary/secondary) are never tuned independently in practice.
const (
	breakerMaxFailures = 3
	breakerTimeout     = 30 * time.Second
	breakerHalfOpenMax = 2
)

// CircuitBreaker guards one tagged Capability's calls to its provider.
// Closed passes calls through; after breakerMaxFailures consecutive
// failures it opens and rejects calls with ErrCircuitOpen until Timeout
// elapses, then half-opens to let breakerHalfOpenMax probes through before
// closing again.
type CircuitBreaker struct {
	breaker *gobreaker.CircuitBreaker
}

// NewCircuitBreaker builds a breaker with the package's fixed trip/reset
// thresholds.
func NewCircuitBreaker() *CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        "llm-capability",
		MaxRequests: breakerHalfOpenMax,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerMaxFailures
		},
	}
	return &CircuitBreaker{breaker: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn through the breaker, translating gobreaker's open-state
// error into ErrCircuitOpen so callers can match it with errors.Is.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	result, err := cb.breaker.Execute(func() (interface{}, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) {
		return nil, ErrCircuitOpen
	}
	return result, err
}
