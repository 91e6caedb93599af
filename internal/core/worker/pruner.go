package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/vidgate/internal/infra/storage"
)

// Pruner deletes performance metrics older than the retention period.
type Pruner struct {
	retention time.Duration
	repo      storage.MetricRepository
	log       *slog.Logger
	now       func() time.Time
}

// NewPruner creates a new Pruner worker. A zero retention disables pruning.
func NewPruner(retention time.Duration, repo storage.MetricRepository, log *slog.Logger) *Pruner {
	if log == nil {
		log = slog.Default()
	}
	return &Pruner{
		retention: retention,
		repo:      repo,
		log:       log,
		now:       time.Now,
	}
}

// Interval is how often the pruner runs: a tenth of the retention period,
// bounded to [1m, 1h].
func (p *Pruner) Interval() time.Duration {
	interval := min(p.retention/10, time.Hour)
	return max(interval, time.Minute)
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	ticker := time.NewTicker(p.Interval())
	defer ticker.Stop()

	// Initial prune
	p.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune runs one retention pass and returns the number of deleted metrics.
func (p *Pruner) Prune(ctx context.Context) int64 {
	if p.retention <= 0 {
		return 0
	}
	cutoff := p.now().Add(-p.retention)

	n, err := p.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		p.log.Error("Failed to prune performance metrics", "cutoff", cutoff, "error", err)
		return 0
	}
	if n > 0 {
		p.log.Info("Pruned performance metrics", "deleted", n, "cutoff", cutoff)
	}
	return n
}
