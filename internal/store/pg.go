package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver

	"github.com/redline-docs/redline/internal/annotation"
)

// PG implements Store on Postgres. Conditional writes are plain
// compare-and-swap updates (`UPDATE ... WHERE version = $n`); there are no
// advisory locks, and no transaction is held across a coordinator suspension
// point.
type PG struct {
	DB *sql.DB
}

// Open connects to Postgres and verifies connectivity, retrying briefly so a
// coordinator starting alongside the database does not flap.
func Open(ctx context.Context, url string) (*PG, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	err = retry.Do(
		func() error { return db.PingContext(ctx) },
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(500*time.Millisecond),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PG{DB: db}, nil
}

// Close releases the connection pool.
func (p *PG) Close() error {
	return p.DB.Close()
}

func (p *PG) UpsertDocument(ctx context.Context, doc Document) error {
	meta, err := json.Marshal(doc.Meta)
	if err != nil {
		return fmt.Errorf("marshal document metadata: %w", err)
	}
	const query = `
INSERT INTO documents (id, source_path, metadata, created_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (id) DO UPDATE
SET source_path = EXCLUDED.source_path,
    metadata = EXCLUDED.metadata`
	if _, err := p.DB.ExecContext(ctx, query, doc.ID, doc.SourcePath, meta); err != nil {
		return classify(err)
	}
	return nil
}

func (p *PG) EnsureStates(ctx context.Context) (int, error) {
	const query = `
INSERT INTO annotation_states (document_id, status, last_updated)
SELECT d.id, 'new', now()
FROM documents d
ON CONFLICT (document_id) DO NOTHING`
	res, err := p.DB.ExecContext(ctx, query)
	if err != nil {
		return 0, classify(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

const stateColumns = `s.document_id, s.status, s.attempt_count, s.job_id, s.pattern_job_id,
       s.submitted_by, s.annotated_page_count, s.page_count, s.owner, s.claimed_at,
       s.last_updated, s.message, s.version, d.metadata, d.source_path`

func (p *PG) ListStates(ctx context.Context, f Filter) ([]annotation.State, error) {
	var (
		conds []string
		args  []any
	)
	if len(f.Statuses) > 0 {
		ph := placeholders(len(args)+1, len(f.Statuses))
		for _, st := range f.Statuses {
			args = append(args, string(st))
		}
		cond := fmt.Sprintf("s.status IN (%s)", ph)
		if !f.StuckBefore.IsZero() {
			args = append(args, f.StuckBefore)
			cond = fmt.Sprintf("(%s OR (s.status = 'processing' AND s.last_updated < $%d))", cond, len(args))
		}
		conds = append(conds, cond)
	} else if !f.StuckBefore.IsZero() {
		args = append(args, f.StuckBefore)
		conds = append(conds, fmt.Sprintf("(s.status = 'processing' AND s.last_updated < $%d)", len(args)))
	}
	if f.JobID != "" {
		args = append(args, f.JobID)
		conds = append(conds, fmt.Sprintf("s.job_id = $%d", len(args)))
	}

	query := "SELECT " + stateColumns + "\nFROM annotation_states s\nJOIN documents d ON d.id = s.document_id"
	if len(conds) > 0 {
		query += "\nWHERE " + strings.Join(conds, " AND ")
	}
	query += "\nORDER BY s.claimed_at NULLS FIRST, s.document_id"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := p.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []annotation.State
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func scanState(rows *sql.Rows) (annotation.State, error) {
	var (
		s           annotation.State
		status      string
		jobID       sql.NullString
		patternID   sql.NullString
		submittedBy sql.NullString
		pageCount   sql.NullInt64
		owner       sql.NullString
		claimedAt   sql.NullTime
		message     sql.NullString
		meta        []byte
	)
	err := rows.Scan(
		&s.DocumentID,
		&status,
		&s.Attempts,
		&jobID,
		&patternID,
		&submittedBy,
		&s.AnnotatedPages,
		&pageCount,
		&owner,
		&claimedAt,
		&s.LastUpdated,
		&message,
		&s.Version,
		&meta,
		&s.SourceRef,
	)
	if err != nil {
		return annotation.State{}, classify(err)
	}
	s.Status = annotation.Status(status)
	if jobID.Valid {
		s.JobID = jobID.String
	}
	if patternID.Valid {
		s.PatternJobID = patternID.String
	}
	if submittedBy.Valid {
		s.SubmittedBy = submittedBy.String
	}
	if pageCount.Valid {
		n := int(pageCount.Int64)
		s.PageCount = &n
	}
	if owner.Valid {
		s.Owner = owner.String
	}
	if claimedAt.Valid {
		s.ClaimedAt = claimedAt.Time
	}
	if message.Valid {
		s.Message = message.String
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &s.Meta); err != nil {
			return annotation.State{}, fmt.Errorf("decode metadata for document %s: %w", s.DocumentID, err)
		}
	}
	return s, nil
}

// Apply writes the batch in one transaction. Every update is a CAS against
// the version the caller read; the first miss rolls the whole batch back.
func (p *PG) Apply(ctx context.Context, updates []Update) error {
	if len(updates) == 0 {
		return nil
	}
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback()

	const query = `
UPDATE annotation_states
SET status = $1,
    attempt_count = $2,
    job_id = NULLIF($3, ''),
    pattern_job_id = NULLIF($4, ''),
    submitted_by = NULLIF($5, ''),
    annotated_page_count = $6,
    page_count = $7,
    owner = NULLIF($8, ''),
    claimed_at = $9,
    last_updated = now(),
    message = NULLIF($10, ''),
    version = version + 1
WHERE document_id = $11 AND version = $12`

	for _, u := range updates {
		s := u.State
		var pageCount any
		if s.PageCount != nil {
			pageCount = *s.PageCount
		}
		var claimedAt any
		if !s.ClaimedAt.IsZero() {
			claimedAt = s.ClaimedAt
		}
		res, err := tx.ExecContext(ctx, query,
			string(s.Status),
			s.Attempts,
			s.JobID,
			s.PatternJobID,
			s.SubmittedBy,
			s.AnnotatedPages,
			pageCount,
			s.Owner,
			claimedAt,
			s.Message,
			s.DocumentID,
			s.Version,
		)
		if err != nil {
			return classify(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: document %s at version %d", ErrConflict, s.DocumentID, s.Version)
		}
	}
	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

func (p *PG) CountByStatus(ctx context.Context) (map[annotation.Status]int, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT status, count(*) FROM annotation_states GROUP BY status`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	counts := make(map[annotation.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, classify(err)
		}
		counts[annotation.Status(status)] = n
	}
	return counts, rows.Err()
}

// Reset clears annotation output and state in one transaction. Registered
// documents survive so the corpus can be re-run from scratch.
func (p *PG) Reset(ctx context.Context) error {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM annotations`); err != nil {
		return classify(err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM annotation_states`); err != nil {
		return classify(err)
	}
	return tx.Commit()
}

var _ Store = (*PG)(nil)

// classify maps transport-level failures to ErrUnavailable so callers can
// distinguish "retry later" from real errors.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}
