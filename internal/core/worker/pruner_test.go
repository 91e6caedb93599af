package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/vietddude/vidgate/internal/core/domain"
	"github.com/vietddude/vidgate/internal/infra/storage/memory"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestPruner_Interval(t *testing.T) {
	tests := []struct {
		retention time.Duration
		want      time.Duration
	}{
		{time.Minute, time.Minute},
		{2 * time.Hour, 12 * time.Minute},
		{30 * 24 * time.Hour, time.Hour},
	}
	for _, tt := range tests {
		p := NewPruner(tt.retention, nil, discard)
		if got := p.Interval(); got != tt.want {
			t.Errorf("Interval(%v) = %v, want %v", tt.retention, got, tt.want)
		}
	}
}

func TestPruner_Prune(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewMetricRepo(memory.NewMemoryStorage())
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for _, age := range []time.Duration{72 * time.Hour, 49 * time.Hour, time.Hour} {
		_ = repo.Insert(ctx, &domain.PerformanceMetric{
			TargetID:  "t1",
			Success:   true,
			Timestamp: now.Add(-age),
		})
	}

	p := NewPruner(48*time.Hour, repo, discard)
	p.now = func() time.Time { return now }

	if n := p.Prune(ctx); n != 2 {
		t.Errorf("Prune = %d, want 2", n)
	}
	left, _ := repo.ListSince(ctx, "t1", time.Time{})
	if len(left) != 1 {
		t.Errorf("remaining = %d, want 1", len(left))
	}
}

type failingRepo struct{ *memory.MetricRepo }

func (failingRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	return 0, errors.New("db down")
}

func TestPruner_DisabledAndErrors(t *testing.T) {
	ctx := context.Background()

	if n := NewPruner(0, failingRepo{}, discard).Prune(ctx); n != 0 {
		t.Errorf("disabled Prune = %d", n)
	}
	if n := NewPruner(time.Hour, failingRepo{}, discard).Prune(ctx); n != 0 {
		t.Errorf("failing Prune = %d", n)
	}
}
