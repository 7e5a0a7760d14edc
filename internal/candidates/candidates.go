// Package candidates looks up the match-candidate sets that detection jobs
// run against. Lookups are expensive and scope-wide, so callers fetch once
// per scope group; results are advisory and staleness-tolerant within the
// cache TTL.
package candidates

import "context"

// Candidate is one entry of a scope's candidate set.
type Candidate struct {
	Pattern string  `json:"pattern"`
	Kind    string  `json:"kind"`
	Weight  float64 `json:"weight,omitempty"`
}

// Set is the candidate set for one scope.
type Set []Candidate

// Provider returns the candidate set for a scope. The heuristic pattern
// mining behind it is an external concern; this package only transports and
// caches its output.
type Provider interface {
	Candidates(ctx context.Context, primary, secondary string) (Set, error)
}
