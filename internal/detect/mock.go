package detect

import (
	"context"
	"fmt"
	"sync"
)

// Mock is an in-memory detection service for tests. Jobs are recorded on
// Submit and resolved by test code via Finish / Fail / Pending.
type Mock struct {
	mu       sync.Mutex
	jobs     map[string]SubmitRequest
	results  map[string]Result
	pollErr  map[string]error
	seq      int
	SubErr   error
	Submits  []SubmitRequest
	PollsFor []string
}

// NewMock returns an empty mock service.
func NewMock() *Mock {
	return &Mock{
		jobs:    make(map[string]SubmitRequest),
		results: make(map[string]Result),
		pollErr: make(map[string]error),
	}
}

func (m *Mock) Submit(ctx context.Context, req SubmitRequest) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubErr != nil {
		return Job{}, m.SubErr
	}
	m.seq++
	id := fmt.Sprintf("job-%d", m.seq)
	m.jobs[id] = req
	m.Submits = append(m.Submits, req)
	return Job{ID: id, Token: "token-" + id}, nil
}

func (m *Mock) Poll(ctx context.Context, jobID string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PollsFor = append(m.PollsFor, jobID)
	if err, ok := m.pollErr[jobID]; ok {
		return Result{}, err
	}
	if res, ok := m.results[jobID]; ok {
		return res, nil
	}
	return Result{Done: false}, nil
}

// Finish resolves a job with the given per-document results.
func (m *Mock) Finish(jobID string, docs ...DocumentResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := Result{Done: true, Documents: make(map[string]DocumentResult, len(docs))}
	for _, d := range docs {
		result.Documents[d.DocumentID] = d
	}
	m.results[jobID] = result
}

// FailPoll makes polls for jobID return err.
func (m *Mock) FailPoll(jobID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollErr[jobID] = err
}

// Request returns the submit request recorded for jobID.
func (m *Mock) Request(jobID string) (SubmitRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.jobs[jobID]
	return req, ok
}

var _ Service = (*Mock)(nil)
