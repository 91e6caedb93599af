package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/vidgate/internal/core/domain"
)

var (
	// ErrTargetNotFound is returned when a target doesn't exist
	ErrTargetNotFound = errors.New("target not found")
)

// MetricRepository is the append-only performance metric log
type MetricRepository interface {
	// Insert appends one metric
	Insert(ctx context.Context, metric *domain.PerformanceMetric) error

	// ListSince returns the target's metrics with Timestamp >= since, oldest first
	ListSince(
		ctx context.Context,
		targetID string,
		since time.Time,
	) ([]*domain.PerformanceMetric, error)

	// DeleteOlderThan removes metrics recorded before the cutoff (retention)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// TargetRepository handles monitored target records
type TargetRepository interface {
	// Upsert creates or updates a target
	Upsert(ctx context.Context, target *domain.Target) error

	// Get retrieves a target by id
	Get(ctx context.Context, id string) (*domain.Target, error)

	// ListActive returns all active targets ordered by id
	ListActive(ctx context.Context) ([]*domain.Target, error)
}

// HealthSnapshotStore caches the latest computed health of a target
type HealthSnapshotStore interface {
	// SaveHealth replaces the cached snapshot
	SaveHealth(ctx context.Context, health *domain.ModelHealth) error

	// LoadHealth returns the cached snapshot, or nil when none exists
	LoadHealth(ctx context.Context, targetID string) (*domain.ModelHealth, error)
}
