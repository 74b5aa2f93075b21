// Package ids generates the prefixed identifiers used throughout the
// memory and claim substrate (mem_, clm_, ca_, edge_).
package ids

import "github.com/google/uuid"

const (
	PrefixMemory    = "mem"
	PrefixClaim     = "clm"
	PrefixAssertion = "ca"
	PrefixEdge      = "edge"
)

// New generates a new id of the form "<prefix>_<uuid>".
func New(prefix string) string {
	return prefix + "_" + uuid.New().String()
}
