package applier

import (
	"context"
	"sync"

	"github.com/redline-docs/redline/internal/annotation"
	"github.com/redline-docs/redline/internal/detect"
)

// Mock records applies and fails on request. Test double.
type Mock struct {
	mu      sync.Mutex
	Applied []Summary
	FailFor map[string]error
}

// NewMock returns an empty mock applier.
func NewMock() *Mock {
	return &Mock{FailFor: make(map[string]error)}
}

func (m *Mock) Apply(ctx context.Context, documentID string, window annotation.Window, result detect.DocumentResult) (Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.FailFor[documentID]; ok {
		return Summary{}, err
	}
	s := Summary{DocumentID: documentID, Matches: len(result.Matches), Window: window}
	m.Applied = append(m.Applied, s)
	return s, nil
}

var _ Applier = (*Mock)(nil)
