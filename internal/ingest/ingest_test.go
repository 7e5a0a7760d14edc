package ingest

import (
	"path/filepath"
	"testing"
)

func TestDocumentIDIsDeterministic(t *testing.T) {
	a := DocumentID("/corpus/alpha/doc-1.pdf")
	b := DocumentID("/corpus/alpha/doc-1.pdf")
	if a != b {
		t.Fatalf("same path produced different ids: %s vs %s", a, b)
	}
	if a == DocumentID("/corpus/alpha/doc-2.pdf") {
		t.Error("different paths produced the same id")
	}
}

func TestDeriveMeta(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		extra      map[string]string
		collection string
		series     string
	}{
		{
			name:       "collection and series from directories",
			path:       filepath.Join("/corpus", "acme", "contracts", "doc.pdf"),
			collection: "contracts",
			series:     "acme",
		},
		{
			name:       "explicit metadata wins",
			path:       filepath.Join("/corpus", "acme", "contracts", "doc.pdf"),
			extra:      map[string]string{"collection": "override"},
			collection: "override",
			series:     "acme",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := deriveMeta(tt.path, tt.extra)
			if meta["collection"] != tt.collection {
				t.Errorf("collection = %q, want %q", meta["collection"], tt.collection)
			}
			if meta["series"] != tt.series {
				t.Errorf("series = %q, want %q", meta["series"], tt.series)
			}
		})
	}
}

func TestIsPDF(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"doc.pdf", true},
		{"doc.PDF", true},
		{"doc.txt", false},
		{"pdf", false},
	}
	for _, tt := range tests {
		if got := isPDF(tt.path); got != tt.want {
			t.Errorf("isPDF(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
