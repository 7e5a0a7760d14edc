package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redline-docs/redline/internal/annotation"
)

// Memory is an in-memory Store used by tests. It enforces the same versioned
// CAS semantics as the Postgres implementation so claim races and batch
// atomicity are exercisable without a database.
type Memory struct {
	mu     sync.Mutex
	docs   map[string]Document
	states map[string]annotation.State

	// Failure injection for coordinator tests.
	ListErr  error
	ApplyErr error
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		docs:   make(map[string]Document),
		states: make(map[string]annotation.State),
	}
}

func (m *Memory) UpsertDocument(ctx context.Context, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	m.docs[doc.ID] = doc
	return nil
}

func (m *Memory) EnsureStates(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	created := 0
	for id, doc := range m.docs {
		if _, ok := m.states[id]; ok {
			continue
		}
		s := annotation.NewState(id)
		s.Meta = doc.Meta
		s.SourceRef = doc.SourcePath
		m.states[id] = s
		created++
	}
	return created, nil
}

// Seed inserts a state directly, registering a matching document. Test setup
// helper; not part of the Store contract.
func (m *Memory) Seed(s annotation.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[s.DocumentID]; !ok {
		m.docs[s.DocumentID] = Document{ID: s.DocumentID, Meta: s.Meta, CreatedAt: time.Now().UTC()}
	}
	if s.LastUpdated.IsZero() {
		s.LastUpdated = time.Now().UTC()
	}
	m.states[s.DocumentID] = s
}

// Get returns a copy of the stored state. Test helper.
func (m *Memory) Get(documentID string) (annotation.State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[documentID]
	return s, ok
}

func (m *Memory) ListStates(ctx context.Context, f Filter) ([]annotation.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}

	var out []annotation.State
	for _, s := range m.states {
		if !matches(s, f) {
			continue
		}
		if doc, ok := m.docs[s.DocumentID]; ok {
			if s.Meta == nil {
				s.Meta = doc.Meta
			}
			if s.SourceRef == "" {
				s.SourceRef = doc.SourcePath
			}
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ClaimedAt.Equal(out[j].ClaimedAt) {
			return out[i].ClaimedAt.Before(out[j].ClaimedAt)
		}
		return out[i].DocumentID < out[j].DocumentID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matches(s annotation.State, f Filter) bool {
	if f.JobID != "" && s.JobID != f.JobID {
		return false
	}
	if len(f.Statuses) == 0 && f.StuckBefore.IsZero() {
		return true
	}
	for _, st := range f.Statuses {
		if s.Status == st {
			return true
		}
	}
	if !f.StuckBefore.IsZero() && s.Status == annotation.StatusProcessing && s.LastUpdated.Before(f.StuckBefore) {
		return true
	}
	return false
}

func (m *Memory) Apply(ctx context.Context, updates []Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ApplyErr != nil {
		return m.ApplyErr
	}

	// Validate the whole batch before touching anything: all-or-nothing.
	for _, u := range updates {
		current, ok := m.states[u.State.DocumentID]
		if !ok {
			return fmt.Errorf("%w: document %s not found", ErrConflict, u.State.DocumentID)
		}
		if current.Version != u.State.Version {
			return fmt.Errorf("%w: document %s at version %d", ErrConflict, u.State.DocumentID, u.State.Version)
		}
	}
	for _, u := range updates {
		next := u.State
		next.Version++
		next.LastUpdated = time.Now().UTC()
		m.states[next.DocumentID] = next
	}
	return nil
}

func (m *Memory) CountByStatus(ctx context.Context) (map[annotation.Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[annotation.Status]int)
	for _, s := range m.states {
		counts[s.Status]++
	}
	return counts, nil
}

func (m *Memory) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = make(map[string]annotation.State)
	return nil
}

var _ Store = (*Memory)(nil)
