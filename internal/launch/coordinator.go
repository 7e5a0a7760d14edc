// Package launch implements the submission half of the annotation pipeline:
// discover pending documents, batch them by scope, and hand each sub-batch
// to the detection service as an asynchronous job.
package launch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/redline-docs/redline/internal/annotation"
	"github.com/redline-docs/redline/internal/batch"
	"github.com/redline-docs/redline/internal/candidates"
	"github.com/redline-docs/redline/internal/detect"
	"github.com/redline-docs/redline/internal/store"
)

// Config tunes one launch run. Values come straight from the run section of
// the config file.
type Config struct {
	MaxBatchSize      int
	MaxPagesPerWindow int
	ScopeProperties   []string
	StuckAfter        time.Duration
	SecondaryMode     bool
}

// Summary reports what one launch run did.
type Summary struct {
	RunID       string
	Discovered  int
	Submitted   int
	Skipped     int
	Jobs        []string
	RateLimited bool
}

// Coordinator drives launch runs. It holds no state between runs; every run
// rediscovers pending work from the store, so runs are safely repeatable.
type Coordinator struct {
	store    store.Store
	detector detect.Service
	provider candidates.Provider
	cfg      Config
	logger   *slog.Logger

	now func() time.Time
}

// New returns a launch coordinator.
func New(st store.Store, detector detect.Service, provider candidates.Provider, cfg Config, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:    st,
		detector: detector,
		provider: provider,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run performs one launch pass. An empty pending set is a successful no-op.
// A rate-limited detection service ends the run early without error: the
// documents left unsubmitted stay pending and the next run picks them up.
func (c *Coordinator) Run(ctx context.Context) (Summary, error) {
	runID := uuid.NewString()
	log := c.logger.With("run_id", runID, "phase", "launch")
	summary := Summary{RunID: runID}

	created, err := c.store.EnsureStates(ctx)
	if err != nil {
		return summary, fmt.Errorf("ensure annotation states: %w", err)
	}
	if created > 0 {
		log.Info("registered new documents", "count", created)
	}

	// Discovery happens before any mutation: a timeout here aborts the run
	// with nothing to unwind.
	pending, err := c.store.ListStates(ctx, store.PendingFilter(c.now(), c.cfg.StuckAfter))
	if err != nil {
		return summary, fmt.Errorf("discover pending documents: %w", err)
	}
	summary.Discovered = len(pending)
	if len(pending) == 0 {
		log.Info("no pending documents")
		return summary, nil
	}

	groups := batch.Partition(pending, c.cfg.ScopeProperties, c.cfg.MaxBatchSize)
	log.Info("discovered pending documents", "count", len(pending), "scopes", len(groups))

	for _, group := range groups {
		cands, err := c.provider.Candidates(ctx, group.Scope.Primary, group.Scope.Secondary)
		if err != nil {
			// A scope whose candidates cannot be fetched is skipped for this
			// run; its documents stay pending.
			log.Warn("candidate lookup failed, skipping scope",
				"scope", group.Scope.Primary, "secondary_scope", group.Scope.Secondary, "error", err)
			for _, b := range group.Batches {
				summary.Skipped += len(b)
			}
			continue
		}

		for _, docs := range group.Batches {
			done, err := c.submitBatch(ctx, log, &summary, docs, cands)
			if err != nil {
				return summary, err
			}
			if done {
				return summary, nil
			}
		}
	}

	log.Info("launch run finished",
		"discovered", summary.Discovered, "submitted", summary.Submitted,
		"skipped", summary.Skipped, "jobs", len(summary.Jobs))
	return summary, nil
}

// submitBatch submits one sub-batch and conditionally marks its documents
// Processing. The returned bool is true when the run should stop early
// (rate limit or transient outage) without treating it as a failure.
func (c *Coordinator) submitBatch(ctx context.Context, log *slog.Logger, summary *Summary, docs []annotation.State, cands candidates.Set) (bool, error) {
	refs := make([]detect.DocumentRef, 0, len(docs))
	for _, d := range docs {
		refs = append(refs, detect.DocumentRef{
			DocumentID: d.DocumentID,
			SourcePath: d.SourceRef,
			Window:     annotation.NextWindow(d.AnnotatedPages, d.PageCount, c.cfg.MaxPagesPerWindow),
		})
	}

	job, err := c.detector.Submit(ctx, detect.SubmitRequest{
		Documents:  refs,
		Candidates: cands,
		Mode:       detect.ModeDetection,
	})
	if err != nil {
		if kind, ok := detect.KindOf(err); ok {
			switch kind {
			case detect.KindRateLimited:
				log.Info("detection service rate limited, ending run", "submitted", summary.Submitted)
				summary.RateLimited = true
				return true, nil
			case detect.KindTransientGateway:
				log.Warn("detection service unavailable, ending run", "error", err)
				return true, nil
			}
		}
		return false, fmt.Errorf("submit detection job: %w", err)
	}

	var patternJobID string
	if c.cfg.SecondaryMode {
		patternJob, err := c.detector.Submit(ctx, detect.SubmitRequest{
			Documents:  refs,
			Candidates: cands,
			Mode:       detect.ModePattern,
		})
		if err != nil {
			// The companion job is supplementary; the primary submission
			// stands either way.
			log.Warn("companion pattern job submission failed", "job_id", job.ID, "error", err)
		} else {
			patternJobID = patternJob.ID
		}
	}

	now := c.now()
	updates := make([]store.Update, 0, len(docs))
	for _, d := range docs {
		next := d
		if err := next.Transition(annotation.StatusProcessing); err != nil {
			return false, fmt.Errorf("document %s: %w", d.DocumentID, err)
		}
		next.JobID = job.ID
		next.PatternJobID = patternJobID
		next.SubmittedBy = summary.RunID
		next.Owner = ""
		next.ClaimedAt = now
		next.Message = ""
		updates = append(updates, store.Update{State: next})
	}

	err = c.store.Apply(ctx, updates)
	switch {
	case err == nil:
		summary.Submitted += len(docs)
		summary.Jobs = append(summary.Jobs, job.ID)
		log.Info("submitted detection job",
			"job_id", job.ID, "pattern_job_id", patternJobID,
			"documents", len(docs), "pages", windowSpan(refs))
		return false, nil
	case errors.Is(err, store.ErrConflict):
		// Another worker moved these documents first. The job we submitted
		// is orphaned; applying its result is idempotent, so losing it is
		// safe. Keep going with the next batch.
		log.Info("lost submission race, skipping batch", "job_id", job.ID, "documents", len(docs))
		summary.Skipped += len(docs)
		return false, nil
	case errors.Is(err, store.ErrUnavailable):
		log.Warn("store unavailable recording submission, ending run", "job_id", job.ID, "error", err)
		summary.Skipped += len(docs)
		return true, nil
	default:
		return false, fmt.Errorf("record submission for job %s: %w", job.ID, err)
	}
}

func windowSpan(refs []detect.DocumentRef) int {
	total := 0
	for _, r := range refs {
		total += r.Window.Pages()
	}
	return total
}
