package batch

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/redline-docs/redline/internal/annotation"
)

func stateWithScope(id, collection, group string) annotation.State {
	s := annotation.NewState(id)
	s.Meta = map[string]string{"collection": collection, "group": group}
	return s
}

var scopeProps = []string{"collection", "group"}

func TestPartitionGroupsByScope(t *testing.T) {
	states := []annotation.State{
		stateWithScope("doc-3", "beta", ""),
		stateWithScope("doc-1", "alpha", "x"),
		stateWithScope("doc-4", "alpha", "y"),
		stateWithScope("doc-2", "alpha", "x"),
	}

	groups := Partition(states, scopeProps, 10)
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}

	wantScopes := []Scope{
		{"alpha", "x"},
		{"alpha", "y"},
		{"beta", ""},
	}
	for i, g := range groups {
		if g.Scope != wantScopes[i] {
			t.Errorf("group[%d].Scope = %+v, want %+v", i, g.Scope, wantScopes[i])
		}
	}

	// Documents within a scope sort by id.
	first := groups[0].Batches[0]
	if first[0].DocumentID != "doc-1" || first[1].DocumentID != "doc-2" {
		t.Errorf("alpha/x batch order = [%s %s]", first[0].DocumentID, first[1].DocumentID)
	}
}

func TestPartitionCapsBatchesAndFlushesRemainder(t *testing.T) {
	var states []annotation.State
	for i := 0; i < 7; i++ {
		states = append(states, stateWithScope(fmt.Sprintf("doc-%d", i), "alpha", ""))
	}

	groups := Partition(states, scopeProps, 3)
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	sizes := make([]int, 0, len(groups[0].Batches))
	for _, b := range groups[0].Batches {
		sizes = append(sizes, len(b))
	}
	if !reflect.DeepEqual(sizes, []int{3, 3, 1}) {
		t.Errorf("batch sizes = %v, want [3 3 1]", sizes)
	}
}

func TestPartitionIsDeterministic(t *testing.T) {
	states := []annotation.State{
		stateWithScope("doc-b", "beta", "x"),
		stateWithScope("doc-a", "alpha", "x"),
		stateWithScope("doc-c", "alpha", "x"),
	}
	reversed := []annotation.State{states[2], states[1], states[0]}

	flatten := func(groups []Group) []string {
		var ids []string
		for _, g := range groups {
			for _, b := range g.Batches {
				for _, s := range b {
					ids = append(ids, s.DocumentID)
				}
			}
		}
		return ids
	}

	if !reflect.DeepEqual(flatten(Partition(states, scopeProps, 2)), flatten(Partition(reversed, scopeProps, 2))) {
		t.Error("partition order must not depend on input order")
	}
}

func TestScopeOfMissingProperties(t *testing.T) {
	s := annotation.NewState("doc-1")
	if got := ScopeOf(s, scopeProps); got != (Scope{}) {
		t.Errorf("ScopeOf without metadata = %+v, want empty scope", got)
	}

	s.Meta = map[string]string{"collection": "alpha"}
	if got := ScopeOf(s, []string{"collection"}); got != (Scope{Primary: "alpha"}) {
		t.Errorf("ScopeOf single property = %+v", got)
	}
}

func TestPartitionZeroBatchSizeDefended(t *testing.T) {
	groups := Partition([]annotation.State{stateWithScope("doc-1", "a", "")}, scopeProps, 0)
	if len(groups) != 1 || len(groups[0].Batches) != 1 || len(groups[0].Batches[0]) != 1 {
		t.Fatalf("unexpected partition: %+v", groups)
	}
}
