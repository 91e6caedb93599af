package control

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vietddude/vidgate/internal/core/config"
	"github.com/vietddude/vidgate/internal/core/domain"
	"github.com/vietddude/vidgate/internal/infra/rpc"
	"github.com/vietddude/vidgate/internal/infra/rpc/classify"
	"github.com/vietddude/vidgate/internal/infra/rpc/provider"
	"github.com/vietddude/vidgate/internal/infra/rpc/retry"
	"github.com/vietddude/vidgate/internal/telemetry"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func testConfig(t *testing.T, baseURL string) *config.AppConfig {
	t.Helper()
	cfg, err := config.Parse([]byte("api:\n  base_url: " + baseURL + "\n  token: test\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return cfg
}

func TestGateway_RecordsBoundCalls(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/models":
			_, _ = w.Write([]byte(`{"results":[{"owner":"acme","name":"video"}]}`))
		case "/v1/models/acme/missing":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"invalid token"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer api.Close()

	ctx := context.Background()
	g, err := NewGateway(ctx, testConfig(t, api.URL), Options{Logger: discard})
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	defer func() { _ = g.Stop(ctx) }()

	client := g.Client().WithContext(rpc.MonitorContext{TargetID: "acme/video"})
	models, err := client.ListModels(ctx)
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 1 || models[0].ID() != "acme/video" {
		t.Fatalf("models = %+v", models)
	}

	_, err = client.GetModel(ctx, "acme", "missing")
	var ce *classify.ClassifiedError
	if !errors.As(err, &ce) || ce.Kind != classify.KindAuthentication {
		t.Fatalf("GetModel error = %v, want authentication", err)
	}

	h := g.Monitor().GetHealth(ctx, "acme/video")
	if h.TotalRequests != 2 || h.SuccessRate != 50 {
		t.Errorf("health = %+v", h)
	}

	if n := g.refresher.Flush(ctx); n != 1 {
		t.Errorf("Flush() = %d, want 1", n)
	}
	if all := g.Monitor().GetAllHealth(ctx); len(all) != 1 || all[0].TargetID != "acme/video" {
		t.Errorf("GetAllHealth = %+v", all)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/targets/acme%2Fvideo/stats?window=1h", nil)
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	var stats domain.ModelStatistics
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.ErrorBreakdown[classify.KindAuthentication] != 1 {
		t.Errorf("breakdown = %v", stats.ErrorBreakdown)
	}
}

func TestGateway_UnboundCallsAreNotRecorded(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer api.Close()

	ctx := context.Background()
	g, err := NewGateway(ctx, testConfig(t, api.URL), Options{Logger: discard})
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	defer func() { _ = g.Stop(ctx) }()

	if _, err := g.Client().ListModels(ctx); err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if got := g.Monitor().GetAllHealth(ctx); len(got) != 0 {
		t.Errorf("GetAllHealth = %+v, want none", got)
	}
}

func TestNewTransport(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.APIConfig
		want    string
		wantErr string
	}{
		{"rest", config.APIConfig{Transport: "rest", BaseURL: "https://api.example.com"}, "rest", ""},
		{"default", config.APIConfig{BaseURL: "https://api.example.com"}, "rest", ""},
		{"grpc", config.APIConfig{Transport: "grpc", GRPCEndpoint: "localhost:50051"}, "grpc", ""},
		{"unknown", config.APIConfig{Transport: "soap"}, "", "unknown api transport"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := NewTransport(tt.cfg, provider.GRPCHandlers{})
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewTransport: %v", err)
			}
			defer func() { _ = tr.Close() }()
			if tr.Name() != tt.want {
				t.Errorf("Name() = %q, want %q", tr.Name(), tt.want)
			}
		})
	}
}

func TestNewEngine_RejectsUnknownKind(t *testing.T) {
	cfg := testConfig(t, "https://api.example.com").Retry
	cfg.KindPresets = true
	if _, err := NewEngine(cfg, discard); err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	cfg.KindOverrides = map[string]retry.Policy{"teapot": {MaxRetries: 1}}
	if _, err := NewEngine(cfg, discard); err == nil {
		t.Error("expected error for unknown kind")
	}
}

type closeTracker struct {
	provider.Transport
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestNewGateway_FailureReleasesTelemetry(t *testing.T) {
	shutdowns := 0
	orig := initTelemetry
	initTelemetry = func(ctx context.Context, cfg telemetry.Config, version string) (telemetry.ShutdownFunc, error) {
		return func(context.Context) error {
			shutdowns++
			return nil
		}, nil
	}
	defer func() { initTelemetry = orig }()

	cfg := testConfig(t, "https://api.example.com")
	cfg.Retry.KindOverrides = map[string]retry.Policy{"teapot": {MaxRetries: 1}}
	tr := &closeTracker{Transport: provider.NewHTTPTransport(provider.HTTPConfig{BaseURL: "https://api.example.com"})}

	if _, err := NewGateway(context.Background(), cfg, Options{Transport: tr, Logger: discard}); err == nil {
		t.Fatal("expected error for unknown kind override")
	}
	if shutdowns != 1 {
		t.Errorf("telemetry shut down %d times, want 1", shutdowns)
	}
	if !tr.closed {
		t.Error("transport not closed")
	}
}
