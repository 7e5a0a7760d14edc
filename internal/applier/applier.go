// Package applier persists detection results as annotation rows. Applying is
// per-document and may fail per-document; a failure here is a content error
// that consumes the document's retry budget.
package applier

import (
	"context"

	"github.com/redline-docs/redline/internal/annotation"
	"github.com/redline-docs/redline/internal/detect"
)

// Summary reports what one apply call wrote.
type Summary struct {
	DocumentID string
	Matches    int
	Window     annotation.Window
}

// Applier writes one document's detection result. Implementations must be
// idempotent for the same (document, window) pair: finalize runs can be
// repeated after a crash.
type Applier interface {
	Apply(ctx context.Context, documentID string, window annotation.Window, result detect.DocumentResult) (Summary, error)
}
