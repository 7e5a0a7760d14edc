// Package batch groups pending documents by shared scope so that per-scope
// candidate lookups are performed once per group instead of once per
// document, and bounds the size of each submitted job.
package batch

import (
	"sort"

	"github.com/redline-docs/redline/internal/annotation"
)

// Scope is the grouping key: values of the configured scope properties.
type Scope struct {
	Primary   string
	Secondary string
}

// Group is one scope's pending documents, split into submission-sized
// sub-batches. The final partial sub-batch is always flushed.
type Group struct {
	Scope   Scope
	Batches [][]annotation.State
}

// ScopeOf derives a document's scope from its metadata using the configured
// scope property names. Missing properties yield empty components, which is
// a valid (catch-all) scope rather than an error.
func ScopeOf(s annotation.State, properties []string) Scope {
	var scope Scope
	if len(properties) > 0 {
		scope.Primary = s.Meta[properties[0]]
	}
	if len(properties) > 1 {
		scope.Secondary = s.Meta[properties[1]]
	}
	return scope
}

// Partition groups states by scope and caps each sub-batch at maxBatchSize.
// Output order is deterministic: scopes sorted lexically, documents within a
// scope sorted by id, so repeated runs over the same pending set produce the
// same jobs.
func Partition(states []annotation.State, properties []string, maxBatchSize int) []Group {
	if maxBatchSize <= 0 {
		maxBatchSize = 1
	}

	byScope := make(map[Scope][]annotation.State)
	for _, s := range states {
		scope := ScopeOf(s, properties)
		byScope[scope] = append(byScope[scope], s)
	}

	scopes := make([]Scope, 0, len(byScope))
	for scope := range byScope {
		scopes = append(scopes, scope)
	}
	sort.Slice(scopes, func(i, j int) bool {
		if scopes[i].Primary != scopes[j].Primary {
			return scopes[i].Primary < scopes[j].Primary
		}
		return scopes[i].Secondary < scopes[j].Secondary
	})

	groups := make([]Group, 0, len(scopes))
	for _, scope := range scopes {
		docs := byScope[scope]
		sort.Slice(docs, func(i, j int) bool {
			return docs[i].DocumentID < docs[j].DocumentID
		})

		var batches [][]annotation.State
		for start := 0; start < len(docs); start += maxBatchSize {
			end := start + maxBatchSize
			if end > len(docs) {
				end = len(docs)
			}
			batches = append(batches, docs[start:end])
		}
		groups = append(groups, Group{Scope: scope, Batches: batches})
	}
	return groups
}
