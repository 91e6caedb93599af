package monitor

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/vietddude/vidgate/internal/core/domain"
	"github.com/vietddude/vidgate/internal/infra/storage"
	"github.com/vietddude/vidgate/internal/metrics"
)

// Refresher recomputes health snapshots for targets that received new
// metrics and writes them to the monitor's snapshot stores. It runs off the
// request path: recording only marks a target dirty.
type Refresher struct {
	mon          *Monitor
	interval     time.Duration
	autoRegister bool
	log          *slog.Logger

	mu    sync.Mutex
	dirty map[string]struct{}
	known map[string]struct{}
}

// NewRefresher creates a refresher and hooks it into mon's record path.
func NewRefresher(mon *Monitor, log *slog.Logger) *Refresher {
	if log == nil {
		log = slog.Default()
	}
	r := &Refresher{
		mon:          mon,
		interval:     mon.cfg.RefreshInterval,
		autoRegister: !mon.cfg.ManualTargets,
		log:          log,
		dirty:        make(map[string]struct{}),
		known:        make(map[string]struct{}),
	}
	mon.SetRecordHook(r.MarkDirty)
	return r
}

// MarkDirty schedules targetID for the next flush.
func (r *Refresher) MarkDirty(targetID string) {
	r.mu.Lock()
	r.dirty[targetID] = struct{}{}
	r.mu.Unlock()
}

// Pending returns the dirty target ids, sorted.
func (r *Refresher) Pending() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.dirty))
	for id := range r.dirty {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Start flushes on every tick until ctx is done, then flushes once more.
func (r *Refresher) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Drain with a fresh context so the final snapshots land.
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			r.Flush(flushCtx)
			cancel()
			return
		case <-ticker.C:
			r.Flush(ctx)
		}
	}
}

// Flush refreshes every dirty target. Targets whose refresh fails are marked
// dirty again.
func (r *Refresher) Flush(ctx context.Context) int {
	r.mu.Lock()
	batch := r.dirty
	r.dirty = make(map[string]struct{})
	r.mu.Unlock()

	refreshed := 0
	for id := range batch {
		if _, err := r.RefreshNow(ctx, id); err != nil {
			r.log.Warn("Health snapshot refresh failed", "target", id, "error", err)
			r.MarkDirty(id)
			continue
		}
		refreshed++
	}
	if refreshed > 0 {
		r.log.Debug("Health snapshots refreshed", "count", refreshed)
	}
	return refreshed
}

// RefreshNow recomputes targetID's health and writes it to every snapshot
// store.
func (r *Refresher) RefreshNow(ctx context.Context, targetID string) (domain.ModelHealth, error) {
	if err := r.ensureTarget(ctx, targetID); err != nil {
		return domain.ModelHealth{}, err
	}

	h := r.mon.GetHealth(ctx, targetID)
	metrics.TargetHealthStatus.WithLabelValues(targetID).Set(statusValue(h.Status))
	metrics.TargetSuccessRate.WithLabelValues(targetID).Set(h.SuccessRate)

	var errs []error
	for _, s := range r.mon.sinks {
		if err := s.SaveHealth(ctx, &h); err != nil {
			errs = append(errs, err)
		}
	}
	return h, errors.Join(errs...)
}

// ensureTarget registers targets seen for the first time so that they take
// part in GetAllHealth.
func (r *Refresher) ensureTarget(ctx context.Context, targetID string) error {
	if !r.autoRegister || r.mon.targets == nil {
		return nil
	}

	r.mu.Lock()
	_, seen := r.known[targetID]
	r.mu.Unlock()
	if seen {
		return nil
	}

	_, err := r.mon.targets.Get(ctx, targetID)
	if errors.Is(err, storage.ErrTargetNotFound) {
		err = r.mon.targets.Upsert(ctx, &domain.Target{
			ID:     targetID,
			Name:   targetID,
			Active: true,
		})
		if err == nil {
			r.log.Info("Registered new target", "target", targetID)
		}
	}
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.known[targetID] = struct{}{}
	r.mu.Unlock()
	return nil
}

func statusValue(s domain.HealthStatus) float64 {
	switch s {
	case domain.HealthHealthy:
		return 0
	case domain.HealthDegraded:
		return 1
	case domain.HealthCritical:
		return 2
	default:
		return -1
	}
}
