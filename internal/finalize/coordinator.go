// Package finalize implements the completion half of the annotation
// pipeline: claim one outstanding detection job, poll it, apply its results
// and advance every bound document's state in a single conditional batch.
package finalize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/redline-docs/redline/internal/annotation"
	"github.com/redline-docs/redline/internal/applier"
	"github.com/redline-docs/redline/internal/claim"
	"github.com/redline-docs/redline/internal/detect"
	"github.com/redline-docs/redline/internal/store"
)

// Config tunes one finalize run.
type Config struct {
	MaxPagesPerWindow int
	MaxRetries        int
	// StuckAfter bounds how long another run's claim is honored. A claim
	// older than this belongs to a crashed run and may be taken over.
	StuckAfter time.Duration
}

// Summary reports what one finalize run did.
type Summary struct {
	RunID string
	JobID string
	// Claimed is false when no outstanding job could be claimed, either
	// because none exist or because other workers own them all.
	Claimed bool
	// Pending is true when the claimed job was not finished yet.
	Pending bool

	Annotated int
	Resumed   int
	Retried   int
	Failed    int
}

// Coordinator drives finalize runs.
type Coordinator struct {
	store    store.Store
	detector detect.Service
	applier  applier.Applier
	cfg      Config
	logger   *slog.Logger

	now func() time.Time
}

// New returns a finalize coordinator.
func New(st store.Store, detector detect.Service, ap applier.Applier, cfg Config, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:    st,
		detector: detector,
		applier:  ap,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run performs one finalize pass: claim the oldest claimable outstanding job
// and finalize it. Losing every claim race, finding no outstanding work, or
// hitting a store timeout are all quiet no-ops.
func (c *Coordinator) Run(ctx context.Context) (Summary, error) {
	runID := uuid.NewString()
	log := c.logger.With("run_id", runID, "phase", "finalize")
	summary := Summary{RunID: runID}

	outstanding, err := c.store.ListStates(ctx, store.OutstandingFilter())
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			log.Warn("store unavailable listing outstanding jobs", "error", err)
			return summary, nil
		}
		return summary, fmt.Errorf("list outstanding jobs: %w", err)
	}
	if len(outstanding) == 0 {
		log.Info("no outstanding jobs")
		return summary, nil
	}

	taken, outcome, err := c.claimOldest(ctx, log, runID, outstanding)
	if err != nil {
		return summary, err
	}
	if outcome != claim.Claimed {
		log.Info("no claimable job", "outcome", outcome.String(), "outstanding", len(outstanding))
		return summary, nil
	}
	summary.JobID = taken.JobID
	summary.Claimed = true
	log = log.With("job_id", taken.JobID)
	log.Info("claimed job", "documents", len(taken.States))

	result, err := c.detector.Poll(ctx, taken.JobID)
	if err != nil {
		return summary, c.handlePollError(ctx, log, &summary, taken, err)
	}
	if !result.Done {
		// Still running: release the claim with the original stamp so the
		// job keeps its place in line.
		summary.Pending = true
		log.Info("job still running, releasing claim")
		return summary, c.revert(ctx, taken, annotation.StatusProcessing, "")
	}

	updates, err := c.settle(ctx, log, &summary, taken, result)
	if err != nil {
		return summary, err
	}

	err = c.store.Apply(ctx, updates)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrConflict):
		// Our claim was stolen, which only happens past the stuck-claim
		// horizon. The takeover wins; applied annotations are idempotent.
		log.Warn("claim taken over before settlement, dropping batch")
		summary = Summary{RunID: runID, JobID: taken.JobID, Claimed: true}
		return summary, nil
	case errors.Is(err, store.ErrUnavailable):
		// The claim stays in place; a later run recovers it as stuck.
		log.Warn("store unavailable recording settlement", "error", err)
		return summary, nil
	default:
		return summary, fmt.Errorf("record settlement for job %s: %w", taken.JobID, err)
	}

	log.Info("finalized job",
		"annotated", summary.Annotated, "resumed", summary.Resumed,
		"retried", summary.Retried, "failed", summary.Failed)
	return summary, nil
}

// claimOldest walks the outstanding documents in FIFO order (the store sorts
// by claim stamp) and claims the first job whose documents are claimable:
// unowned, or owned by a run whose claim has gone stale.
func (c *Coordinator) claimOldest(ctx context.Context, log *slog.Logger, runID string, outstanding []annotation.State) (*claim.Claim, claim.Outcome, error) {
	byJob := make(map[string][]annotation.State)
	var order []string
	for _, s := range outstanding {
		if s.JobID == "" {
			continue
		}
		if _, ok := byJob[s.JobID]; !ok {
			order = append(order, s.JobID)
		}
		byJob[s.JobID] = append(byJob[s.JobID], s)
	}

	horizon := c.now().Add(-c.cfg.StuckAfter)
	for _, jobID := range order {
		docs := byJob[jobID]
		if !claimable(docs, horizon) {
			continue
		}
		taken, outcome, err := claim.Take(ctx, c.store, runID, docs)
		switch outcome {
		case claim.Claimed:
			return taken, outcome, nil
		case claim.Conflict:
			// Raced another worker on this job; try the next one.
			log.Debug("claim conflict", "job_id", jobID)
			continue
		case claim.Retryable:
			if err != nil {
				return nil, outcome, fmt.Errorf("claim job %s: %w", jobID, err)
			}
			return nil, outcome, nil
		}
	}
	return nil, claim.Conflict, nil
}

func claimable(docs []annotation.State, horizon time.Time) bool {
	for _, d := range docs {
		if d.Owner != "" && d.ClaimedAt.After(horizon) {
			return false
		}
	}
	return true
}

// handlePollError reverts the claimed documents according to the failure
// class. Infrastructure failures never consume retry budget.
func (c *Coordinator) handlePollError(ctx context.Context, log *slog.Logger, summary *Summary, taken *claim.Claim, pollErr error) error {
	kind, ok := detect.KindOf(pollErr)
	if !ok {
		log.Error("poll failed", "error", pollErr)
		if err := c.revert(ctx, taken, annotation.StatusProcessing, ""); err != nil {
			return fmt.Errorf("revert after poll failure: %w", err)
		}
		return fmt.Errorf("poll job %s: %w", taken.JobID, pollErr)
	}

	switch kind {
	case detect.KindRateLimited:
		summary.Pending = true
		log.Info("poll rate limited, releasing claim")
		return c.revert(ctx, taken, annotation.StatusProcessing, "")
	case detect.KindTransientGateway:
		summary.Retried = len(taken.States)
		log.Warn("gateway failure polling job, marking for resubmission", "error", pollErr)
		return c.revert(ctx, taken, annotation.StatusRetry, "")
	case detect.KindJobExpired:
		summary.Retried = len(taken.States)
		log.Warn("job expired upstream, marking for resubmission")
		return c.revert(ctx, taken, annotation.StatusRetry, "detection job expired")
	default:
		return fmt.Errorf("poll job %s: %w", taken.JobID, pollErr)
	}
}

// revert returns every claimed document to the given status with its
// original claim stamp restored and no attempt charged.
func (c *Coordinator) revert(ctx context.Context, taken *claim.Claim, to annotation.Status, message string) error {
	updates := make([]store.Update, 0, len(taken.States))
	for _, o := range taken.States {
		next := o.State
		if err := next.Transition(to); err != nil {
			return fmt.Errorf("document %s: %w", next.DocumentID, err)
		}
		next.Owner = ""
		next.ClaimedAt = o.OriginalClaim
		if message != "" {
			next.Message = message
		}
		if to == annotation.StatusRetry {
			next.JobID = ""
			next.PatternJobID = ""
		}
		updates = append(updates, store.Update{State: next})
	}
	err := c.store.Apply(ctx, updates)
	if err != nil && !errors.Is(err, store.ErrConflict) && !errors.Is(err, store.ErrUnavailable) {
		return fmt.Errorf("revert job %s: %w", taken.JobID, err)
	}
	return nil
}

// settle evaluates a finished job document by document. Failures are
// isolated: one bad result charges only its own document's budget and never
// blocks siblings from completing.
func (c *Coordinator) settle(ctx context.Context, log *slog.Logger, summary *Summary, taken *claim.Claim, result detect.Result) ([]store.Update, error) {
	budget := annotation.Budget{MaxAttempts: c.cfg.MaxRetries}
	updates := make([]store.Update, 0, len(taken.States))

	for _, o := range taken.States {
		s := o.State
		window := annotation.NextWindow(s.AnnotatedPages, s.PageCount, c.cfg.MaxPagesPerWindow)

		docResult, ok := result.Documents[s.DocumentID]
		next, reason := c.settleDocument(ctx, s, window, docResult, ok)
		if reason != "" {
			status := budget.Charge(&next, reason)
			next.Owner = ""
			next.ClaimedAt = o.OriginalClaim
			next.JobID = ""
			next.PatternJobID = ""
			if status == annotation.StatusFailed {
				summary.Failed++
				log.Warn("document failed permanently",
					"document_id", s.DocumentID, "attempts", next.Attempts, "reason", reason)
			} else {
				summary.Retried++
				log.Info("document charged a retry",
					"document_id", s.DocumentID, "attempts", next.Attempts, "reason", reason)
			}
			updates = append(updates, store.Update{State: next})
			continue
		}

		if next.Status == annotation.StatusAnnotated {
			summary.Annotated++
		} else {
			summary.Resumed++
		}
		updates = append(updates, store.Update{State: next})
	}
	return updates, nil
}

// settleDocument applies one document's result and derives its next state.
// A non-empty reason marks a content failure; the caller charges the budget.
func (c *Coordinator) settleDocument(ctx context.Context, s annotation.State, window annotation.Window, docResult detect.DocumentResult, found bool) (annotation.State, string) {
	next := s
	if !found {
		return next, "job result omitted the document"
	}
	if docResult.Invalid != "" {
		return next, docResult.Invalid
	}
	if docResult.PageCount < s.AnnotatedPages {
		return next, fmt.Sprintf("reported page count %d below annotated watermark %d",
			docResult.PageCount, s.AnnotatedPages)
	}

	if _, err := c.applier.Apply(ctx, s.DocumentID, window, docResult); err != nil {
		return next, fmt.Sprintf("apply annotations: %v", err)
	}

	pages := docResult.PageCount
	next.PageCount = &pages
	next.AnnotatedPages = annotation.Advance(window, pages)
	next.Owner = ""
	next.Message = ""

	if annotation.Complete(next.AnnotatedPages, next.PageCount) {
		_ = next.Transition(annotation.StatusAnnotated)
		next.ClaimedAt = time.Time{}
		return next, ""
	}

	// Partial progress: back to the pending pool for the next window, with
	// the attempt counter untouched.
	_ = next.Transition(annotation.StatusNew)
	next.JobID = ""
	next.PatternJobID = ""
	next.ClaimedAt = time.Time{}
	return next, ""
}
