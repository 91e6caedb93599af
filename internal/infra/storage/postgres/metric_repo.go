package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/vidgate/internal/core/domain"
	"github.com/vietddude/vidgate/internal/infra/rpc/classify"
)

// MetricRepo implements storage.MetricRepository using PostgreSQL.
type MetricRepo struct {
	db *DB
}

// NewMetricRepo creates a new PostgreSQL metric repository.
func NewMetricRepo(db *DB) *MetricRepo {
	return &MetricRepo{db: db}
}

type metricRow struct {
	ID         string         `db:"id"`
	TargetID   string         `db:"target_id"`
	Operation  string         `db:"operation"`
	DurationMs int64          `db:"duration_ms"`
	Success    bool           `db:"success"`
	ErrorKind  sql.NullString `db:"error_kind"`
	Context    []byte         `db:"context"`
	RecordedAt time.Time      `db:"recorded_at"`
}

// Insert appends a metric.
func (r *MetricRepo) Insert(ctx context.Context, m *domain.PerformanceMetric) error {
	query := `
		INSERT INTO performance_metrics
			(id, target_id, operation, duration_ms, success, error_kind, context, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	id := m.ID
	if id == "" {
		id = uuid.NewString()
	}

	var ctxJSON []byte
	if len(m.Context) > 0 {
		var err error
		ctxJSON, err = json.Marshal(m.Context)
		if err != nil {
			return fmt.Errorf("failed to encode metric context: %w", err)
		}
	}

	kind := sql.NullString{String: string(m.ErrorKind), Valid: m.ErrorKind != ""}

	_, err := r.db.ExecContext(
		ctx,
		query,
		id,
		m.TargetID,
		m.Operation,
		m.Duration.Milliseconds(),
		m.Success,
		kind,
		ctxJSON,
		m.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert metric: %w", err)
	}
	return nil
}

// ListSince returns the target's metrics recorded at or after since, oldest first.
func (r *MetricRepo) ListSince(
	ctx context.Context,
	targetID string,
	since time.Time,
) ([]*domain.PerformanceMetric, error) {
	query := `
		SELECT id, target_id, operation, duration_ms, success, error_kind, context, recorded_at
		FROM performance_metrics
		WHERE target_id = $1 AND recorded_at >= $2
		ORDER BY recorded_at ASC, id ASC
	`

	var rows []metricRow
	if err := r.db.SelectContext(ctx, &rows, query, targetID, since); err != nil {
		return nil, fmt.Errorf("failed to list metrics: %w", err)
	}

	out := make([]*domain.PerformanceMetric, 0, len(rows))
	for _, row := range rows {
		m := &domain.PerformanceMetric{
			ID:        row.ID,
			TargetID:  row.TargetID,
			Operation: row.Operation,
			Duration:  time.Duration(row.DurationMs) * time.Millisecond,
			Success:   row.Success,
			Timestamp: row.RecordedAt,
		}
		if row.ErrorKind.Valid {
			m.ErrorKind = classify.Kind(row.ErrorKind.String)
		}
		if len(row.Context) > 0 {
			// A malformed context blob must not hide the metric itself.
			_ = json.Unmarshal(row.Context, &m.Context)
		}
		out = append(out, m)
	}
	return out, nil
}

// DeleteOlderThan removes metrics recorded before the cutoff.
func (r *MetricRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM performance_metrics WHERE recorded_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune metrics: %w", err)
	}
	return res.RowsAffected()
}
