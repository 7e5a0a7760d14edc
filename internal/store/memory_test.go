package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redline-docs/redline/internal/annotation"
)

func TestMemoryApplyCAS(t *testing.T) {
	m := NewMemory()
	s := annotation.NewState("doc-1")
	m.Seed(s)

	// First writer wins.
	s.Status = annotation.StatusProcessing
	s.JobID = "job-1"
	if err := m.Apply(context.Background(), []Update{{State: s}}); err != nil {
		t.Fatalf("first apply: %v", err)
	}

	// Second writer holds the stale version and must lose.
	stale := s
	stale.JobID = "job-2"
	err := m.Apply(context.Background(), []Update{{State: stale}})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("stale apply error = %v, want ErrConflict", err)
	}

	got, _ := m.Get("doc-1")
	if got.JobID != "job-1" {
		t.Errorf("job id = %s, want job-1", got.JobID)
	}
	if got.Version != 1 {
		t.Errorf("version = %d, want 1", got.Version)
	}
}

func TestMemoryApplyIsAtomic(t *testing.T) {
	m := NewMemory()
	a := annotation.NewState("doc-a")
	b := annotation.NewState("doc-b")
	m.Seed(a)
	m.Seed(b)

	a.Status = annotation.StatusProcessing
	bStale := b
	bStale.Version = 99 // wrong version: whole batch must abort

	err := m.Apply(context.Background(), []Update{{State: a}, {State: bStale}})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("error = %v, want ErrConflict", err)
	}
	got, _ := m.Get("doc-a")
	if got.Status != annotation.StatusNew {
		t.Errorf("doc-a mutated despite batch conflict: %s", got.Status)
	}
}

func TestMemoryListStatesFilterUnion(t *testing.T) {
	m := NewMemory()

	fresh := annotation.NewState("doc-new")
	m.Seed(fresh)

	retry := annotation.NewState("doc-retry")
	retry.Status = annotation.StatusRetry
	m.Seed(retry)

	stuck := annotation.NewState("doc-stuck")
	stuck.Status = annotation.StatusProcessing
	stuck.LastUpdated = time.Now().Add(-2 * time.Hour)
	m.Seed(stuck)

	active := annotation.NewState("doc-active")
	active.Status = annotation.StatusProcessing
	m.Seed(active)

	done := annotation.NewState("doc-done")
	done.Status = annotation.StatusAnnotated
	m.Seed(done)

	states, err := m.ListStates(context.Background(), PendingFilter(time.Now(), 30*time.Minute))
	if err != nil {
		t.Fatalf("ListStates: %v", err)
	}
	want := map[string]bool{"doc-new": true, "doc-retry": true, "doc-stuck": true}
	if len(states) != len(want) {
		t.Fatalf("got %d states, want %d", len(states), len(want))
	}
	for _, s := range states {
		if !want[s.DocumentID] {
			t.Errorf("unexpected document %s in pending set", s.DocumentID)
		}
	}
}

func TestMemoryListStatesOrdering(t *testing.T) {
	m := NewMemory()

	older := annotation.NewState("doc-b")
	older.Status = annotation.StatusProcessing
	older.JobID = "job-1"
	older.ClaimedAt = time.Now().Add(-time.Hour)
	m.Seed(older)

	newer := annotation.NewState("doc-a")
	newer.Status = annotation.StatusProcessing
	newer.JobID = "job-2"
	newer.ClaimedAt = time.Now()
	m.Seed(newer)

	states, err := m.ListStates(context.Background(), OutstandingFilter())
	if err != nil {
		t.Fatalf("ListStates: %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("got %d states, want 2", len(states))
	}
	if states[0].DocumentID != "doc-b" {
		t.Errorf("oldest claim must sort first, got %s", states[0].DocumentID)
	}
}

func TestMemoryEnsureStatesIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for _, id := range []string{"doc-1", "doc-2"} {
		if err := m.UpsertDocument(ctx, Document{ID: id, Meta: map[string]string{"collection": "c"}}); err != nil {
			t.Fatalf("UpsertDocument: %v", err)
		}
	}

	created, err := m.EnsureStates(ctx)
	if err != nil {
		t.Fatalf("EnsureStates: %v", err)
	}
	if created != 2 {
		t.Errorf("created = %d, want 2", created)
	}

	created, err = m.EnsureStates(ctx)
	if err != nil {
		t.Fatalf("EnsureStates second run: %v", err)
	}
	if created != 0 {
		t.Errorf("second run created = %d, want 0", created)
	}

	s, ok := m.Get("doc-1")
	if !ok || s.Status != annotation.StatusNew {
		t.Errorf("state not initialized: %+v", s)
	}
	if s.Meta["collection"] != "c" {
		t.Errorf("metadata not carried onto state: %v", s.Meta)
	}
}
