package detect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/redline-docs/redline/internal/annotation"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *HTTPService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPService(HTTPConfig{BaseURL: srv.URL, APIKey: "test-key", RequestsPerMinute: 10000})
}

func TestSubmitReturnsJobReference(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/detection-jobs" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization header = %q", got)
		}
		var req SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Documents) != 1 || req.Documents[0].Window != (annotation.Window{Start: 1, End: 50}) {
			t.Errorf("unexpected documents: %+v", req.Documents)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"job_id": "job-7", "token": "tok"})
	})

	job, err := svc.Submit(context.Background(), SubmitRequest{
		Mode: ModeDetection,
		Documents: []DocumentRef{
			{DocumentID: "doc-1", SourcePath: "a.pdf", Window: annotation.Window{Start: 1, End: 50}},
		},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.ID != "job-7" || job.Token != "tok" {
		t.Errorf("job = %+v", job)
	}
}

func TestSubmitRateLimitClassified(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := svc.Submit(context.Background(), SubmitRequest{Mode: ModeDetection})
	kind, ok := KindOf(err)
	if !ok || kind != KindRateLimited {
		t.Fatalf("error = %v, want rate_limited service error", err)
	}
}

func TestPollNotFinished(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/detection-jobs/job-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusAccepted)
	})

	res, err := svc.Poll(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if res.Done {
		t.Error("expected Done=false for 202 response")
	}
}

func TestPollFinishedValidatesDocuments(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"documents": [
				{"document_id": "doc-1", "page_count": 30, "matches": [{"page": 2, "kind": "clause"}]},
				{"document_id": "doc-2", "page_count": 0, "matches": []}
			]
		}`))
	})

	res, err := svc.Poll(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !res.Done {
		t.Fatal("expected Done=true")
	}

	good := res.Documents["doc-1"]
	if good.Invalid != "" || good.PageCount != 30 || len(good.Matches) != 1 {
		t.Errorf("doc-1 = %+v", good)
	}

	// page_count 0 violates the schema: a per-document content error.
	bad := res.Documents["doc-2"]
	if bad.Invalid == "" {
		t.Error("doc-2 should be flagged invalid")
	}
}

func TestPollGatewayErrorClassified(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := svc.Poll(context.Background(), "job-1")
	kind, ok := KindOf(err)
	if !ok || kind != KindTransientGateway {
		t.Fatalf("error = %v, want transient_gateway", err)
	}
}

func TestPollExpiredJobClassified(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	})

	_, err := svc.Poll(context.Background(), "job-1")
	kind, ok := KindOf(err)
	if !ok || kind != KindJobExpired {
		t.Fatalf("error = %v, want job_expired", err)
	}
}

func TestDecodeDocumentResultMalformedJSON(t *testing.T) {
	res := decodeDocumentResult([]byte(`{"document_id": "doc-9", "page_count": "thirty"`))
	if res.Invalid == "" {
		t.Error("truncated JSON must be invalid")
	}

	res = decodeDocumentResult([]byte(`{"document_id": "doc-9", "page_count": 3}`))
	if res.Invalid == "" {
		t.Error("missing matches field must fail schema validation")
	}
	if res.DocumentID != "doc-9" {
		t.Errorf("document id not preserved for attribution: %q", res.DocumentID)
	}
}
