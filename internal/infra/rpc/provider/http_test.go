package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/vidgate/internal/infra/rpc/classify"
)

func TestHTTPTransport_CreateJob(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/predictions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("Idempotency-Key"); got != "key-1" {
			t.Errorf("Idempotency-Key = %q", got)
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		if body["model"] != "acme/video" {
			t.Errorf("model = %v", body["model"])
		}
		if _, ok := body["IdempotencyKey"]; ok {
			t.Error("idempotency key leaked into body")
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "job-1",
			"model":  "acme/video",
			"status": "starting",
		})
	}))
	defer server.Close()

	tr := NewHTTPTransport(HTTPConfig{BaseURL: server.URL + "/", Token: "secret", Timeout: 5 * time.Second})
	job, err := tr.CreateJob(context.Background(), JobRequest{
		Model:          "acme/video",
		Input:          map[string]any{"prompt": "a cat"},
		IdempotencyKey: "key-1",
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if job.ID != "job-1" || job.Status != JobStarting {
		t.Errorf("job = %+v", job)
	}
	if job.Status.Terminal() {
		t.Error("starting reported as terminal")
	}
}

func TestHTTPTransport_GetAndCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.EscapedPath() {
		case "/v1/predictions/abc%2F1":
			_ = json.NewEncoder(w).Encode(Job{ID: "abc/1", Status: JobProcessing})
		case "/v1/predictions/abc/cancel":
			if r.Method != http.MethodPost {
				t.Errorf("cancel method = %s", r.Method)
			}
			_ = json.NewEncoder(w).Encode(Job{ID: "abc", Status: JobCanceled})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	tr := NewHTTPTransport(HTTPConfig{BaseURL: server.URL})
	ctx := context.Background()

	job, err := tr.GetJob(ctx, "abc/1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != JobProcessing {
		t.Errorf("status = %s", job.Status)
	}

	job, err = tr.CancelJob(ctx, "abc")
	if err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	if !job.Status.Terminal() {
		t.Errorf("canceled job not terminal: %s", job.Status)
	}
}

func TestHTTPTransport_ListModelsPaginates(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cursor") == "" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"next":    server.URL + "/v1/models?cursor=2",
				"results": []Model{{Owner: "acme", Name: "video"}},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []Model{{Owner: "acme", Name: "image"}},
		})
	}))
	defer server.Close()

	models, err := NewHTTPTransport(HTTPConfig{BaseURL: server.URL}).ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 2 || models[0].ID() != "acme/video" || models[1].ID() != "acme/image" {
		t.Errorf("models = %+v", models)
	}
}

func TestHTTPTransport_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		header     map[string]string
		body       string
		wantStatus int
		wantCode   string
		wantDetail string
		wantWait   time.Duration
		wantKind   classify.Kind
	}{
		{
			name:       "rate limited with retry-after",
			status:     429,
			header:     map[string]string{"Retry-After": "7"},
			body:       `{"detail":"slow down"}`,
			wantStatus: 429,
			wantDetail: "slow down",
			wantWait:   7 * time.Second,
			wantKind:   classify.KindRateLimit,
		},
		{
			name:       "nested error object",
			status:     402,
			body:       `{"error":{"message":"not enough credit","code":"billing"}}`,
			wantStatus: 402,
			wantCode:   "billing",
			wantDetail: "not enough credit",
			wantKind:   classify.KindInsufficientCredits,
		},
		{
			name:       "flat error string",
			status:     422,
			body:       `{"error":"validation failed: prompt is required"}`,
			wantStatus: 422,
			wantDetail: "validation failed: prompt is required",
			wantKind:   classify.KindInvalidInput,
		},
		{
			name:       "quota message on forbidden",
			status:     403,
			body:       "Monthly quota exceeded",
			wantStatus: 429,
			wantDetail: "Monthly quota exceeded",
			wantKind:   classify.KindRateLimit,
		},
		{
			name:       "server error",
			status:     502,
			body:       "<html>bad gateway</html>",
			wantStatus: 502,
			wantDetail: "<html>bad gateway</html>",
			wantKind:   classify.KindServerError,
		},
		{
			name:       "unauthorized",
			status:     401,
			body:       `{"detail":"Invalid token","code":"unauthenticated"}`,
			wantStatus: 401,
			wantCode:   "unauthenticated",
			wantDetail: "Invalid token",
			wantKind:   classify.KindAuthentication,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewHTTPTransport(HTTPConfig{BaseURL: server.URL}).GetJob(context.Background(), "j")

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error %T is not *APIError: %v", err, err)
			}
			if apiErr.Status != tt.wantStatus || apiErr.ErrCode != tt.wantCode ||
				apiErr.Detail != tt.wantDetail || apiErr.Wait != tt.wantWait {
				t.Errorf("APIError = %+v", apiErr)
			}
			if apiErr.Operation != "getJob" {
				t.Errorf("Operation = %q", apiErr.Operation)
			}
			if kind := classify.Classify(err).Kind; kind != tt.wantKind {
				t.Errorf("kind = %s, want %s", kind, tt.wantKind)
			}
		})
	}
}

func TestHTTPTransport_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	_, err := NewHTTPTransport(HTTPConfig{BaseURL: addr}).GetJob(context.Background(), "j")
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := classify.Classify(err).Kind; kind != classify.KindNetworkError {
		t.Errorf("kind = %s, want networkError (%v)", kind, err)
	}
}

// closingServer accepts requests and closes the connection without
// answering.
func closingServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Error("response writer cannot hijack")
			return
		}
		conn, _, err := hj.Hijack()
		if err != nil {
			t.Errorf("hijack: %v", err)
			return
		}
		_ = conn.Close()
	}))
}

func TestHTTPTransport_DroppedConnection(t *testing.T) {
	var hits atomic.Int32
	server := closingServer(t, &hits)
	defer server.Close()

	_, err := NewHTTPTransport(HTTPConfig{BaseURL: server.URL}).
		CreateJob(context.Background(), JobRequest{Model: "acme/video"})
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "/v1/predictions") {
		t.Errorf("error leaks the request URL: %v", err)
	}
	ce := classify.Classify(err)
	if ce.Kind != classify.KindNetworkError || !ce.Retryable {
		t.Errorf("kind = %s retryable=%v, want retryable networkError (%v)", ce.Kind, ce.Retryable, err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"3", 3 * time.Second},
		{"-4", 0},
		{"soon", 0},
		{now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second},
		{now.Add(-time.Minute).Format(http.TimeFormat), 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.in, now); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
