// Package claim implements the conflict-aware ownership protocol. A claim is
// a compare-and-swap over the durable store: the only coordination primitive
// shared between concurrently running workers.
package claim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redline-docs/redline/internal/annotation"
	"github.com/redline-docs/redline/internal/store"
)

// Outcome is the result of a claim attempt.
type Outcome int

const (
	// Claimed means this run now owns the job's documents.
	Claimed Outcome = iota
	// Conflict means another worker owns the job. Not an error; the caller
	// should simply look for other pending work.
	Conflict
	// Retryable means the store timed out. The documents were left untouched
	// and a later run will retry.
	Retryable
)

func (o Outcome) String() string {
	switch o {
	case Claimed:
		return "claimed"
	case Conflict:
		return "conflict"
	case Retryable:
		return "retryable"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Claim attempts to atomically take ownership of every document bound to one
// job. On success the returned states carry the incremented versions and the
// new claim stamp, with each document's original claim timestamp preserved in
// OriginalClaim for later revert.
type Claim struct {
	JobID  string
	RunID  string
	States []Owned
}

// Owned pairs a claimed state with the claim timestamp it had before this
// run took it over. Reverting with the original stamp keeps FIFO ordering
// intact across runs.
type Owned struct {
	State         annotation.State
	OriginalClaim time.Time
}

// Take claims the given documents for runID. All documents must belong to
// the same job; the CAS is against the versions the caller just read.
func Take(ctx context.Context, st store.Store, runID string, docs []annotation.State) (*Claim, Outcome, error) {
	if len(docs) == 0 {
		return nil, Conflict, nil
	}
	jobID := docs[0].JobID
	now := time.Now().UTC()

	updates := make([]store.Update, 0, len(docs))
	owned := make([]Owned, 0, len(docs))
	for _, d := range docs {
		if d.JobID != jobID {
			return nil, Conflict, fmt.Errorf("claim spans jobs %s and %s", jobID, d.JobID)
		}
		original := d.ClaimedAt
		next := d
		next.Owner = runID
		next.ClaimedAt = now
		updates = append(updates, store.Update{State: next})

		// The store will increment the version on success; track it so the
		// follow-up write conditions on the post-claim version.
		next.Version++
		owned = append(owned, Owned{State: next, OriginalClaim: original})
	}

	err := st.Apply(ctx, updates)
	switch {
	case err == nil:
		return &Claim{JobID: jobID, RunID: runID, States: owned}, Claimed, nil
	case errors.Is(err, store.ErrConflict):
		return nil, Conflict, nil
	case errors.Is(err, store.ErrUnavailable):
		return nil, Retryable, nil
	default:
		return nil, Retryable, err
	}
}
