package claim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redline-docs/redline/internal/annotation"
	"github.com/redline-docs/redline/internal/store"
)

func seedJob(m *store.Memory, jobID string, docIDs ...string) []annotation.State {
	var states []annotation.State
	claimed := time.Now().Add(-10 * time.Minute)
	for _, id := range docIDs {
		s := annotation.NewState(id)
		s.Status = annotation.StatusProcessing
		s.JobID = jobID
		s.ClaimedAt = claimed
		m.Seed(s)
		states = append(states, s)
	}
	return states
}

func TestTakeClaimsAllDocuments(t *testing.T) {
	m := store.NewMemory()
	docs := seedJob(m, "job-1", "doc-1", "doc-2", "doc-3")

	c, outcome, err := Take(context.Background(), m, "run-a", docs)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if outcome != Claimed {
		t.Fatalf("outcome = %s, want claimed", outcome)
	}
	if len(c.States) != 3 {
		t.Fatalf("claimed %d states, want 3", len(c.States))
	}
	for _, o := range c.States {
		stored, _ := m.Get(o.State.DocumentID)
		if stored.Owner != "run-a" {
			t.Errorf("document %s owner = %q, want run-a", o.State.DocumentID, stored.Owner)
		}
		if o.State.Version != stored.Version {
			t.Errorf("document %s claim version %d != stored %d",
				o.State.DocumentID, o.State.Version, stored.Version)
		}
		if o.OriginalClaim.IsZero() || !o.OriginalClaim.Before(o.State.ClaimedAt) {
			t.Errorf("document %s original claim stamp not preserved", o.State.DocumentID)
		}
	}
}

func TestTakeAtMostOneWinner(t *testing.T) {
	m := store.NewMemory()
	docs := seedJob(m, "job-1", "doc-1", "doc-2")

	var wg sync.WaitGroup
	outcomes := make([]Outcome, 2)
	for i, runID := range []string{"run-a", "run-b"} {
		wg.Add(1)
		go func(i int, runID string) {
			defer wg.Done()
			_, outcome, err := Take(context.Background(), m, runID, docs)
			if err != nil {
				t.Errorf("Take(%s): %v", runID, err)
			}
			outcomes[i] = outcome
		}(i, runID)
	}
	wg.Wait()

	claimed, conflicted := 0, 0
	for _, o := range outcomes {
		switch o {
		case Claimed:
			claimed++
		case Conflict:
			conflicted++
		}
	}
	if claimed != 1 || conflicted != 1 {
		t.Fatalf("outcomes = %v, want exactly one claimed and one conflict", outcomes)
	}

	// The loser made no state mutation: both documents carry one owner.
	owners := map[string]bool{}
	for _, id := range []string{"doc-1", "doc-2"} {
		s, _ := m.Get(id)
		owners[s.Owner] = true
		if s.Version != 1 {
			t.Errorf("document %s version = %d, want 1 (single claim write)", id, s.Version)
		}
	}
	if len(owners) != 1 {
		t.Errorf("documents claimed by different runs: %v", owners)
	}
}

func TestTakeStoreTimeoutIsRetryable(t *testing.T) {
	m := store.NewMemory()
	docs := seedJob(m, "job-1", "doc-1")
	m.ApplyErr = store.ErrUnavailable

	_, outcome, err := Take(context.Background(), m, "run-a", docs)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if outcome != Retryable {
		t.Fatalf("outcome = %s, want retryable", outcome)
	}

	s, _ := m.Get("doc-1")
	if s.Owner != "" {
		t.Error("store timeout must leave documents untouched")
	}
}

func TestTakeEmptySetIsConflict(t *testing.T) {
	m := store.NewMemory()
	_, outcome, err := Take(context.Background(), m, "run-a", nil)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if outcome != Conflict {
		t.Fatalf("outcome = %s, want conflict", outcome)
	}
}
