package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/vidgate/internal/core/domain"
	"github.com/vietddude/vidgate/internal/infra/storage"
)

type MemoryStorage struct {
	metrics map[string][]*domain.PerformanceMetric
	targets map[string]*domain.Target
	mu      sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		metrics: make(map[string][]*domain.PerformanceMetric),
		targets: make(map[string]*domain.Target),
	}
}

// -----------------------------------------------------------------------------
// Metric Repository
// -----------------------------------------------------------------------------

type MetricRepo struct {
	store *MemoryStorage
}

func NewMetricRepo(store *MemoryStorage) *MetricRepo {
	return &MetricRepo{store: store}
}

func (r *MetricRepo) Insert(ctx context.Context, m *domain.PerformanceMetric) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	list := append(r.store.metrics[m.TargetID], copyMetric(m))
	// Keep time order even when inserts interleave out of order.
	if n := len(list); n > 1 && list[n-1].Timestamp.Before(list[n-2].Timestamp) {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Timestamp.Before(list[j].Timestamp)
		})
	}
	r.store.metrics[m.TargetID] = list
	return nil
}

func (r *MetricRepo) ListSince(
	ctx context.Context,
	targetID string,
	since time.Time,
) ([]*domain.PerformanceMetric, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*domain.PerformanceMetric
	for _, m := range r.store.metrics[targetID] {
		if m.Timestamp.Before(since) {
			continue
		}
		out = append(out, copyMetric(m))
	}
	return out, nil
}

// copyMetric detaches a metric, including its context map, from the caller.
func copyMetric(m *domain.PerformanceMetric) *domain.PerformanceMetric {
	cp := *m
	cp.Context = maps.Clone(m.Context)
	return &cp
}

func (r *MetricRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var deleted int64
	for id, list := range r.store.metrics {
		kept := list[:0]
		for _, m := range list {
			if m.Timestamp.Before(before) {
				deleted++
				continue
			}
			kept = append(kept, m)
		}
		r.store.metrics[id] = kept
	}
	return deleted, nil
}

// -----------------------------------------------------------------------------
// Target Repository
// -----------------------------------------------------------------------------

type TargetRepo struct {
	store *MemoryStorage
}

func NewTargetRepo(store *MemoryStorage) *TargetRepo {
	return &TargetRepo{store: store}
}

func (r *TargetRepo) Upsert(ctx context.Context, t *domain.Target) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	cp := *t
	now := time.Now()
	if existing, ok := r.store.targets[t.ID]; ok {
		cp.CreatedAt = existing.CreatedAt
		if cp.Health == nil {
			cp.Health = existing.Health
		}
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	r.store.targets[t.ID] = &cp
	return nil
}

func (r *TargetRepo) Get(ctx context.Context, id string) (*domain.Target, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	t, ok := r.store.targets[id]
	if !ok {
		return nil, storage.ErrTargetNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *TargetRepo) ListActive(ctx context.Context) ([]*domain.Target, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*domain.Target
	for _, t := range r.store.targets {
		if !t.Active {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveHealth patches the health snapshot onto the target record. Unknown
// targets are ignored.
func (r *TargetRepo) SaveHealth(ctx context.Context, h *domain.ModelHealth) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	t, ok := r.store.targets[h.TargetID]
	if !ok {
		return nil
	}
	hc := *h
	t.Health = &hc
	t.UpdatedAt = time.Now()
	return nil
}

func (r *TargetRepo) LoadHealth(ctx context.Context, targetID string) (*domain.ModelHealth, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	t, ok := r.store.targets[targetID]
	if !ok || t.Health == nil {
		return nil, nil
	}
	hc := *t.Health
	return &hc, nil
}
