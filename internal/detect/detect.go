// Package detect is the client for the external detection service: the
// asynchronous, rate-limited compute jobs that annotate document page ranges
// against a candidate set.
package detect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redline-docs/redline/internal/annotation"
	"github.com/redline-docs/redline/internal/candidates"
)

// Mode selects which detection pipeline a job runs.
type Mode string

const (
	// ModeDetection is the primary annotation-matching pipeline.
	ModeDetection Mode = "detection"
	// ModePattern is the secondary pattern-mining pipeline, submitted as a
	// companion job when secondary mode is enabled.
	ModePattern Mode = "pattern"
)

// DocumentRef identifies one document and the page window to annotate.
type DocumentRef struct {
	DocumentID string            `json:"document_id"`
	SourcePath string            `json:"source_path"`
	Window     annotation.Window `json:"window"`
}

// Job is the opaque reference to a submitted detection job.
type Job struct {
	ID    string `json:"job_id"`
	Token string `json:"token,omitempty"`
}

// SubmitRequest covers one sub-batch of documents sharing a scope.
type SubmitRequest struct {
	Documents  []DocumentRef  `json:"documents"`
	Candidates candidates.Set `json:"candidates"`
	Mode       Mode           `json:"mode"`
}

// Match is one detected annotation within a document.
type Match struct {
	Page    int             `json:"page"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DocumentResult is the per-document outcome of a finished job. Invalid
// carries the schema-validation failure for a malformed payload; such a
// result counts as a content error for that document only.
type DocumentResult struct {
	DocumentID string  `json:"document_id"`
	PageCount  int     `json:"page_count"`
	Matches    []Match `json:"matches"`
	Invalid    string  `json:"-"`
}

// Result is a poll outcome. When Done is false the job is still running and
// Documents is empty.
type Result struct {
	Done      bool
	Documents map[string]DocumentResult
}

// Service is the narrow detection-service contract. Implementations return
// *ServiceError for the failure classes a caller must branch on.
type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (Job, error)
	Poll(ctx context.Context, jobID string) (Result, error)
}

// ErrorKind classifies detection-service failures. The set is closed:
// coordinators switch on it rather than inspecting vendor status codes.
type ErrorKind int

const (
	// KindRateLimited: the service refused further submissions this run.
	KindRateLimited ErrorKind = iota
	// KindTransientGateway: timeout or gateway failure; retry on a later
	// run without charging any document's budget.
	KindTransientGateway
	// KindJobExpired: the job id is no longer known to the service.
	KindJobExpired
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindTransientGateway:
		return "transient_gateway"
	case KindJobExpired:
		return "job_expired"
	}
	return fmt.Sprintf("error_kind(%d)", int(k))
}

// ServiceError is a classified detection-service failure.
type ServiceError struct {
	Kind   ErrorKind
	Status int
	Msg    string
}

func (e *ServiceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("detection service %s (status %d): %s", e.Kind, e.Status, e.Msg)
	}
	return fmt.Sprintf("detection service %s: %s", e.Kind, e.Msg)
}

// KindOf extracts the error kind, reporting ok=false for unclassified errors.
func KindOf(err error) (ErrorKind, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}
