package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/redline-docs/redline/internal/ingest"
)

var (
	ingestMeta  []string
	ingestWatch bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [paths...]",
	Short: "Register PDF documents for annotation",
	Long: `Register PDF files or directories of PDFs with the annotation store.

Document IDs are derived from the source path, so ingesting the same
corpus twice is a no-op. The parent directory name becomes the document's
collection; explicit --meta values override derived metadata.

Examples:
  redline ingest /corpus/acme/contracts
  redline ingest doc.pdf --meta collection=contracts
  redline ingest /corpus/inbox --watch`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		meta, err := parseMeta(ingestMeta)
		if err != nil {
			return err
		}

		result, err := ingest.Run(ctx, a.store, ingest.Request{
			Paths:  args,
			Meta:   meta,
			Logger: a.logger,
		})
		if err != nil {
			return err
		}
		fmt.Printf("registered %d documents (%d skipped)\n", result.Registered, len(result.Skipped))

		if ingestWatch {
			return ingest.Watch(ctx, a.store, args, meta, a.logger)
		}
		return nil
	},
}

func parseMeta(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --meta value %q, want key=value", p)
		}
		meta[k] = v
	}
	return meta, nil
}

func init() {
	ingestCmd.Flags().StringArrayVar(&ingestMeta, "meta", nil, "Metadata to attach to every document (key=value, repeatable)")
	ingestCmd.Flags().BoolVar(&ingestWatch, "watch", false, "Keep watching the given directories for new PDFs")
}
