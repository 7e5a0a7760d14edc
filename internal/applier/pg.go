package applier

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redline-docs/redline/internal/annotation"
	"github.com/redline-docs/redline/internal/detect"
)

// PG writes annotations into the annotations table. Idempotency comes from
// replacing the window's page range in one transaction: re-applying the same
// window deletes its previous rows first.
type PG struct {
	DB *sql.DB
}

func (p *PG) Apply(ctx context.Context, documentID string, window annotation.Window, result detect.DocumentResult) (Summary, error) {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return Summary{}, fmt.Errorf("begin apply transaction: %w", err)
	}
	defer tx.Rollback()

	const clear = `DELETE FROM annotations WHERE document_id = $1 AND page BETWEEN $2 AND $3`
	if _, err := tx.ExecContext(ctx, clear, documentID, window.Start, window.End); err != nil {
		return Summary{}, fmt.Errorf("clear window for document %s: %w", documentID, err)
	}

	const insert = `
INSERT INTO annotations (document_id, page, kind, payload)
VALUES ($1, $2, $3, COALESCE($4::jsonb, '{}'::jsonb))`
	written := 0
	for _, m := range result.Matches {
		if m.Page < window.Start || m.Page > window.End {
			return Summary{}, fmt.Errorf("document %s: match on page %d outside window [%d,%d]",
				documentID, m.Page, window.Start, window.End)
		}
		var payload any
		if len(m.Payload) > 0 {
			payload = []byte(m.Payload)
		}
		if _, err := tx.ExecContext(ctx, insert, documentID, m.Page, m.Kind, payload); err != nil {
			return Summary{}, fmt.Errorf("write annotation for document %s page %d: %w", documentID, m.Page, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return Summary{}, fmt.Errorf("commit annotations for document %s: %w", documentID, err)
	}
	return Summary{DocumentID: documentID, Matches: written, Window: window}, nil
}

var _ Applier = (*PG)(nil)
