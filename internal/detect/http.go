package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
)

// HTTPService talks to the detection service over its JSON API.
type HTTPService struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *RateLimiter
}

// HTTPConfig configures the HTTP detection client.
type HTTPConfig struct {
	BaseURL           string
	APIKey            string
	RequestsPerMinute int
	Timeout           time.Duration
}

// NewHTTPService creates a detection client.
func NewHTTPService(cfg HTTPConfig) *HTTPService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPService{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		limiter: NewRateLimiter(cfg.RequestsPerMinute),
	}
}

// Submit posts one sub-batch as a new detection job. Network-level failures
// are retried a few times; classified service errors are returned as-is for
// the coordinator to branch on.
func (s *HTTPService) Submit(ctx context.Context, req SubmitRequest) (Job, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return Job{}, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Job{}, fmt.Errorf("failed to marshal submit request: %w", err)
	}

	var job Job
	err = retry.Do(
		func() error {
			resp, err := s.do(ctx, http.MethodPost, "/v1/detection-jobs", body)
			if err != nil {
				return err
			}
			job = resp.job
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.RetryIf(isTransient),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return Job{}, err
	}
	return job, nil
}

// Poll fetches the current result of a job. Absence of a result is not an
// error: the caller gets Done=false and defers to a later run.
func (s *HTTPService) Poll(ctx context.Context, jobID string) (Result, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return Result{}, err
	}

	resp, err := s.do(ctx, http.MethodGet, "/v1/detection-jobs/"+jobID, nil)
	if err != nil {
		return Result{}, err
	}
	if resp.status == http.StatusAccepted {
		return Result{Done: false}, nil
	}

	var payload struct {
		Documents []json.RawMessage `json:"documents"`
	}
	if err := json.Unmarshal(resp.body, &payload); err != nil {
		return Result{}, fmt.Errorf("failed to unmarshal job result: %w", err)
	}

	result := Result{Done: true, Documents: make(map[string]DocumentResult, len(payload.Documents))}
	for i, raw := range payload.Documents {
		doc := decodeDocumentResult(raw)
		if doc.DocumentID == "" {
			// Attribution is impossible without an id; keep the entry under
			// a positional key so the failure is still visible per document.
			doc.DocumentID = fmt.Sprintf("unattributed-%d", i)
		}
		result.Documents[doc.DocumentID] = doc
	}
	return result, nil
}

type httpResponse struct {
	status int
	body   []byte
	job    Job
}

func (s *HTTPService) do(ctx context.Context, method, path string, body []byte) (*httpResponse, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &ServiceError{Kind: KindTransientGateway, Msg: err.Error()}
	}
	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, &ServiceError{Kind: KindTransientGateway, Msg: err.Error()}
	}

	if kind, ok := classifyStatus(resp.StatusCode); ok {
		return nil, &ServiceError{Kind: kind, Status: resp.StatusCode, Msg: string(respBody)}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("detection service error (status %d): %s", resp.StatusCode, string(respBody))
	}

	out := &httpResponse{status: resp.StatusCode, body: respBody}
	if method == http.MethodPost {
		if err := json.Unmarshal(respBody, &out.job); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job reference: %w", err)
		}
	}
	return out, nil
}

func classifyStatus(status int) (ErrorKind, bool) {
	switch status {
	case http.StatusTooManyRequests:
		return KindRateLimited, true
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return KindTransientGateway, true
	case http.StatusGone, http.StatusNotFound:
		return KindJobExpired, true
	}
	return 0, false
}

// isTransient reports whether a submit failure should be retried in-process.
// Rate limits and expiries must surface to the coordinator immediately.
func isTransient(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindTransientGateway
}

var _ Service = (*HTTPService)(nil)
