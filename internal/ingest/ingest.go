// Package ingest registers source PDF documents with the annotation store.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/redline-docs/redline/internal/store"
)

// namespace scopes the deterministic document IDs. Ingesting the same path
// twice yields the same ID, so re-running ingest over a corpus is idempotent.
var namespace = uuid.MustParse("8c9d6f3a-41e2-4b6b-9f15-2a7c0d94e1b7")

// DocumentID derives the stable ID for a source path.
func DocumentID(sourcePath string) string {
	return uuid.NewSHA1(namespace, []byte(sourcePath)).String()
}

// Request contains the parameters for one ingest pass.
type Request struct {
	// Paths are PDF files or directories to walk for PDFs.
	Paths []string
	// Meta is merged into every registered document's metadata, after the
	// derived properties.
	Meta   map[string]string
	Logger *slog.Logger
}

// Result reports what an ingest pass registered.
type Result struct {
	Registered int
	Skipped    []string
}

// Run validates each PDF and upserts a document record for it. Invalid or
// unreadable files are skipped and reported, not fatal: a corpus with one
// bad scan still ingests.
func Run(ctx context.Context, st store.Store, req Request) (*Result, error) {
	log := req.Logger
	if log == nil {
		log = slog.Default()
	}
	if len(req.Paths) == 0 {
		return nil, fmt.Errorf("no paths provided")
	}

	paths, err := collectPDFs(req.Paths)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no PDF files found under %s", strings.Join(req.Paths, ", "))
	}
	log.Info("starting ingest", "pdfs", len(paths))

	result := &Result{}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return result, fmt.Errorf("resolve %s: %w", p, err)
		}
		if err := validatePDF(abs); err != nil {
			log.Warn("skipping invalid document", "path", abs, "error", err)
			result.Skipped = append(result.Skipped, abs)
			continue
		}

		doc := store.Document{
			ID:         DocumentID(abs),
			SourcePath: abs,
			Meta:       deriveMeta(abs, req.Meta),
		}
		if err := st.UpsertDocument(ctx, doc); err != nil {
			return result, fmt.Errorf("register %s: %w", abs, err)
		}
		result.Registered++
		log.Debug("registered document", "document_id", doc.ID, "path", abs)
	}

	if _, err := st.EnsureStates(ctx); err != nil {
		return result, fmt.Errorf("ensure annotation states: %w", err)
	}

	log.Info("ingest complete", "registered", result.Registered, "skipped", len(result.Skipped))
	return result, nil
}

// collectPDFs expands directories into their contained PDFs, sorted for
// deterministic ingest order.
func collectPDFs(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("source not found: %s", p)
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && isPDF(path) {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", p, err)
		}
	}
	sort.Strings(out)
	return out, nil
}

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// validatePDF checks the file parses as a PDF before it is registered. The
// authoritative page count comes from the detection service later, so only
// structural validity is checked here.
func validatePDF(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := api.PageCount(f, nil); err != nil {
		return fmt.Errorf("not a readable PDF: %w", err)
	}
	return nil
}

// deriveMeta builds a document's metadata: the collection is the parent
// directory name, the series its parent. Explicit metadata wins over the
// derived values.
func deriveMeta(absPath string, extra map[string]string) map[string]string {
	meta := make(map[string]string, len(extra)+2)
	dir := filepath.Dir(absPath)
	if base := filepath.Base(dir); base != "." && base != string(filepath.Separator) {
		meta["collection"] = base
	}
	if parent := filepath.Base(filepath.Dir(dir)); parent != "." && parent != string(filepath.Separator) {
		meta["series"] = parent
	}
	for k, v := range extra {
		meta[k] = v
	}
	return meta
}
