// Package storage defines the storage facade: the single capability
// interface the rest of the system uses to reach persistent state, plus the
// option and error types that contract depends on.
package storage

import (
	"errors"

	"github.com/mnexium/memory-substrate/pkg/model"
)

// Sentinel errors surfaced by facade implementations. Callers unwrap with
// errors.Is to drive the HTTP error taxonomy in internal/httpapi.
var (
	ErrNotFound      = errors.New("storage: not found")
	ErrInvalidInput  = errors.New("storage: invalid input")
	ErrAlreadyExists = errors.New("storage: already exists")
)

// CodedError pairs one of the sentinels above with the specific wire code
// spec §7's error taxonomy enumerates (e.g. "text_too_long",
// "memory_deleted"). errors.Is still matches against Sentinel, so existing
// dispatch on the bare sentinels keeps working; errors.As recovers Code for
// callers that want the precise wire value.
type CodedError struct {
	Sentinel error
	Code     string
	Detail   string
}

func (e *CodedError) Error() string {
	if e.Detail == "" {
		return e.Code
	}
	return e.Code + ": " + e.Detail
}

func (e *CodedError) Unwrap() error { return e.Sentinel }

// NotFoundf builds a CodedError over ErrNotFound with the given wire code.
func NotFoundf(code, detail string) error {
	return &CodedError{Sentinel: ErrNotFound, Code: code, Detail: detail}
}

// InvalidInputf builds a CodedError over ErrInvalidInput with the given wire
// code, reported as 400. Used for request validation codes and for
// memory_deleted on restore, a not-found-shaped code reported as 400
// rather than 404.
func InvalidInputf(code, detail string) error {
	return &CodedError{Sentinel: ErrInvalidInput, Code: code, Detail: detail}
}

// WrapNotFound recodes a bare ErrNotFound into a CodedError carrying code,
// leaving nil errors, already-coded errors, and other error kinds untouched.
// Storage methods that only know "not found" in general (GetMemory, GetClaim,
// ...) return the bare sentinel; the caller knows which resource it asked
// for, so it supplies the specific code here.
func WrapNotFound(err error, code string) error {
	if err == nil {
		return nil
	}
	var coded *CodedError
	if errors.As(err, &coded) {
		return err
	}
	if errors.Is(err, ErrNotFound) {
		return NotFoundf(code, err.Error())
	}
	return err
}

// ListOptions bounds ListMemories / ListSupersededMemories calls.
type ListOptions struct {
	ProjectID          string
	SubjectID          string
	Limit              int
	Offset             int
	IncludeDeleted     bool
	IncludeSuperseded  bool
}

const (
	defaultListLimit = 25
	maxListLimit     = 200
	maxListOffset    = 1_000_000
)

// Normalize clamps Limit/Offset to the ranges spec.md §4.A requires.
func (o *ListOptions) Normalize() {
	if o.Limit <= 0 {
		o.Limit = defaultListLimit
	}
	if o.Limit > maxListLimit {
		o.Limit = maxListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	if o.Offset > maxListOffset {
		o.Offset = maxListOffset
	}
}

// SearchOptions parameterizes SearchMemories.
type SearchOptions struct {
	ProjectID      string
	SubjectID      string
	Query          string
	QueryEmbedding []float64
	Limit          int
	MinScore       float64
}

const defaultSearchLimit = 25
const maxSearchLimit = 200

// Normalize clamps Limit to the range spec.md §4.D's constraint table requires.
func (o *SearchOptions) Normalize() {
	if o.Limit <= 0 {
		o.Limit = defaultSearchLimit
	}
	if o.Limit > maxSearchLimit {
		o.Limit = maxSearchLimit
	}
}

// PaginatedResult is a generic page of items plus a total count.
type PaginatedResult[T any] struct {
	Items   []T  `json:"items"`
	Total   int  `json:"total"`
	HasMore bool `json:"has_more"`
}

// ScoredMemory pairs a Memory with the two ranking scores SearchMemories
// must return (spec §4.A).
type ScoredMemory struct {
	Memory         model.Memory `json:"memory"`
	Score          float64      `json:"score"`
	EffectiveScore float64      `json:"effective_score"`
}
