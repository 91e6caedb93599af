package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/vidgate/internal/core/domain"
	"github.com/vietddude/vidgate/internal/infra/storage"
)

// TargetRepo implements storage.TargetRepository and
// storage.HealthSnapshotStore using PostgreSQL.
type TargetRepo struct {
	db *DB
}

// NewTargetRepo creates a new PostgreSQL target repository.
func NewTargetRepo(db *DB) *TargetRepo {
	return &TargetRepo{db: db}
}

type targetRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Active    bool      `db:"active"`
	Health    []byte    `db:"health"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (row targetRow) toDomain() *domain.Target {
	t := &domain.Target{
		ID:        row.ID,
		Name:      row.Name,
		Active:    row.Active,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if len(row.Health) > 0 {
		var h domain.ModelHealth
		if err := json.Unmarshal(row.Health, &h); err == nil {
			t.Health = &h
		}
	}
	return t
}

// Upsert creates or updates a target. The cached health column is left untouched.
func (r *TargetRepo) Upsert(ctx context.Context, t *domain.Target) error {
	query := `
		INSERT INTO targets (id, name, active, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, active = EXCLUDED.active, updated_at = NOW()
	`
	if _, err := r.db.ExecContext(ctx, query, t.ID, t.Name, t.Active); err != nil {
		return fmt.Errorf("failed to upsert target: %w", err)
	}
	return nil
}

// Get retrieves a target by id.
func (r *TargetRepo) Get(ctx context.Context, id string) (*domain.Target, error) {
	query := `
		SELECT id, name, active, health, created_at, updated_at
		FROM targets
		WHERE id = $1
	`
	var row targetRow
	err := r.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrTargetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get target: %w", err)
	}
	return row.toDomain(), nil
}

// ListActive returns all active targets.
func (r *TargetRepo) ListActive(ctx context.Context) ([]*domain.Target, error) {
	query := `
		SELECT id, name, active, health, created_at, updated_at
		FROM targets
		WHERE active
		ORDER BY id ASC
	`
	var rows []targetRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}

	out := make([]*domain.Target, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// SaveHealth patches the health snapshot onto the target record.
func (r *TargetRepo) SaveHealth(ctx context.Context, h *domain.ModelHealth) error {
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to encode health: %w", err)
	}
	query := `
		UPDATE targets
		SET health = $2, health_checked_at = $3, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, h.TargetID, data, h.CheckedAt); err != nil {
		return fmt.Errorf("failed to save health: %w", err)
	}
	return nil
}

// LoadHealth returns the cached snapshot, or nil when none exists.
func (r *TargetRepo) LoadHealth(ctx context.Context, targetID string) (*domain.ModelHealth, error) {
	var data []byte
	err := r.db.GetContext(ctx, &data, `SELECT health FROM targets WHERE id = $1`, targetID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && len(data) == 0) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load health: %w", err)
	}

	var h domain.ModelHealth
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to decode health: %w", err)
	}
	return &h, nil
}
