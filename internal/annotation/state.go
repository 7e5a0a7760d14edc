package annotation

import (
	"fmt"
	"time"
)

// Status represents the annotation lifecycle state of a document.
type Status string

const (
	StatusNew        Status = "new"
	StatusProcessing Status = "processing"
	StatusRetry      Status = "retry"
	StatusFailed     Status = "failed"
	StatusAnnotated  Status = "annotated"
)

// Terminal reports whether the status permits no further automatic transitions.
func (s Status) Terminal() bool {
	return s == StatusAnnotated || s == StatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusProcessing, StatusRetry, StatusFailed, StatusAnnotated:
		return true
	}
	return false
}

// State is the durable per-document progress record. It is created once,
// idempotently, when a document is first discovered and afterwards mutated
// only through conditional (versioned) store writes.
type State struct {
	DocumentID string
	Status     Status
	Attempts   int

	// JobID binds the document to the detection job it was last submitted
	// with. PatternJobID is the companion secondary-mode job, if any.
	// SubmittedBy records the launch run that submitted the job.
	JobID        string
	PatternJobID string
	SubmittedBy  string

	// AnnotatedPages is the number of pages annotated so far. PageCount is
	// the job-reported total; nil until the first job result arrives.
	AnnotatedPages int
	PageCount      *int

	// Owner marks an active finalize-run claim. ClaimedAt orders outstanding
	// jobs FIFO; it is restored on revert so unfinished jobs are not starved.
	Owner     string
	ClaimedAt time.Time

	LastUpdated time.Time
	Message     string

	// Meta carries document metadata used to derive the batching scope.
	// SourceRef is the document's source path, denormalized from the
	// document record so submissions need no second lookup.
	Meta      map[string]string
	SourceRef string

	// Version is the optimistic-concurrency counter. Every conditional write
	// compares against it and increments it.
	Version int64
}

// NewState returns the initial record for a freshly discovered document.
func NewState(documentID string) State {
	return State{
		DocumentID:  documentID,
		Status:      StatusNew,
		LastUpdated: time.Now().UTC(),
	}
}

// Pending reports whether the document is eligible for job submission.
func (s State) Pending() bool {
	return s.Status == StatusNew || s.Status == StatusRetry
}

// Validate checks the record's internal invariants.
func (s State) Validate() error {
	if s.DocumentID == "" {
		return fmt.Errorf("annotation state missing document id")
	}
	if !s.Status.Valid() {
		return fmt.Errorf("unknown status %q for document %s", s.Status, s.DocumentID)
	}
	if s.Attempts < 0 {
		return fmt.Errorf("negative attempt count for document %s", s.DocumentID)
	}
	if s.PageCount != nil && s.AnnotatedPages > *s.PageCount {
		return fmt.Errorf("document %s: annotated pages %d exceed page count %d",
			s.DocumentID, s.AnnotatedPages, *s.PageCount)
	}
	if s.Status == StatusAnnotated && (s.PageCount == nil || s.AnnotatedPages != *s.PageCount) {
		return fmt.Errorf("document %s: annotated without full page coverage", s.DocumentID)
	}
	return nil
}

// transitions enumerates the legal status edges. Mutating a terminal state
// is only possible through an administrative reset, which deletes records
// rather than transitioning them.
var transitions = map[Status][]Status{
	StatusNew:        {StatusProcessing},
	StatusRetry:      {StatusProcessing},
	StatusProcessing: {StatusNew, StatusRetry, StatusFailed, StatusAnnotated, StatusProcessing},
}

// CanTransition reports whether moving from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the state to a new status, enforcing the state machine.
func (s *State) Transition(to Status) error {
	if !CanTransition(s.Status, to) {
		return fmt.Errorf("illegal transition %s -> %s for document %s", s.Status, to, s.DocumentID)
	}
	s.Status = to
	s.LastUpdated = time.Now().UTC()
	return nil
}
