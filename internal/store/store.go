// Package store provides the durable annotation-state store. It is the only
// shared mutable resource in the system: concurrently running coordinators
// synchronize exclusively through its conditional, versioned writes.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/redline-docs/redline/internal/annotation"
)

var (
	// ErrConflict means a conditional write lost a version race. This is an
	// expected outcome under concurrent workers, not a failure.
	ErrConflict = errors.New("store: version conflict")

	// ErrUnavailable means the store timed out or was transiently
	// unreachable. Callers leave state untouched and retry on a later run.
	ErrUnavailable = errors.New("store: unavailable")
)

// Document is a registered unit of work. Metadata carries the properties the
// scope batcher groups on (e.g. collection, group).
type Document struct {
	ID         string
	SourcePath string
	Meta       map[string]string
	CreatedAt  time.Time
}

// Filter selects annotation states. Statuses and the stuck-recovery window
// are unioned: a row matches if its status is listed, or if it has been
// processing since before StuckBefore (abandoned by a dead worker).
type Filter struct {
	Statuses    []annotation.Status
	StuckBefore time.Time
	JobID       string
	Limit       int
}

// Update is one conditional write. State carries the desired record; its
// Version field is the version the write is conditioned on. The store
// increments the version on success.
type Update struct {
	State annotation.State
}

// Store is the durable state contract. Apply is atomic: either every update
// in the batch is written or none is, and any version mismatch aborts the
// whole batch with ErrConflict.
type Store interface {
	UpsertDocument(ctx context.Context, doc Document) error

	// EnsureStates idempotently creates a new-status state for every
	// document that does not have one yet, returning how many were created.
	EnsureStates(ctx context.Context) (int, error)

	ListStates(ctx context.Context, f Filter) ([]annotation.State, error)

	Apply(ctx context.Context, updates []Update) error

	CountByStatus(ctx context.Context) (map[annotation.Status]int, error)

	// Reset deletes all annotation states and annotation output rows.
	// Registered documents survive so the corpus can be re-run cleanly.
	Reset(ctx context.Context) error
}

// PendingFilter returns the launch coordinator's discovery filter: documents
// awaiting (re)submission plus processing rows stuck longer than stuckAfter.
func PendingFilter(now time.Time, stuckAfter time.Duration) Filter {
	return Filter{
		Statuses:    []annotation.Status{annotation.StatusNew, annotation.StatusRetry},
		StuckBefore: now.Add(-stuckAfter),
	}
}

// OutstandingFilter returns the finalize coordinator's filter: every document
// currently bound to a submitted job.
func OutstandingFilter() Filter {
	return Filter{Statuses: []annotation.Status{annotation.StatusProcessing}}
}
