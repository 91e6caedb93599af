package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/vidgate/internal/core/domain"
	"github.com/vietddude/vidgate/internal/infra/rpc/classify"
	"github.com/vietddude/vidgate/internal/infra/storage"
	"github.com/vietddude/vidgate/internal/metrics"
)

// Context keys merged into failure metrics.
const (
	ContextErrorMessage = "errorMessage"
	ContextErrorStatus  = "errorStatus"
)

// Monitor records call outcomes and answers health queries over them.
// Health and statistics are computed at read time from the metric log.
type Monitor struct {
	metrics storage.MetricRepository
	targets storage.TargetRepository
	sinks   []storage.HealthSnapshotStore

	cfg   Config
	log   *slog.Logger
	now   func() time.Time
	newID func() string

	onRecord atomic.Pointer[func(targetID string)]
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.log = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithIDGenerator overrides metric id generation.
func WithIDGenerator(fn func() string) Option {
	return func(m *Monitor) { m.newID = fn }
}

// WithTargets sets the target registry used by GetAllHealth.
func WithTargets(targets storage.TargetRepository) Option {
	return func(m *Monitor) { m.targets = targets }
}

// WithSnapshotStores sets the health snapshot caches, in lookup order.
func WithSnapshotStores(stores ...storage.HealthSnapshotStore) Option {
	return func(m *Monitor) { m.sinks = append(m.sinks, stores...) }
}

// New creates a monitor over the given metric log.
func New(repo storage.MetricRepository, cfg Config, opts ...Option) *Monitor {
	m := &Monitor{
		metrics: repo,
		cfg:     cfg.WithDefaults(),
		log:     slog.Default(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the effective configuration.
func (m *Monitor) Config() Config {
	return m.cfg
}

// SetRecordHook registers fn to be called with the target id after every
// recorded metric. The refresher uses it to learn which snapshots are stale.
func (m *Monitor) SetRecordHook(fn func(targetID string)) {
	if fn == nil {
		m.onRecord.Store(nil)
		return
	}
	m.onRecord.Store(&fn)
}

// RecordSuccess records a successful call. Persistence failures are logged
// and swallowed.
func (m *Monitor) RecordSuccess(
	ctx context.Context,
	targetID, operation string,
	duration time.Duration,
	callCtx map[string]any,
) {
	m.record(ctx, &domain.PerformanceMetric{
		TargetID:  targetID,
		Operation: operation,
		Duration:  max(duration, 0),
		Success:   true,
		Context:   copyContext(callCtx, 0),
	})
}

// RecordFailure classifies err and records a failed call. A zero duration
// means the duration is unknown.
func (m *Monitor) RecordFailure(
	ctx context.Context,
	targetID, operation string,
	err error,
	duration time.Duration,
	callCtx map[string]any,
) {
	ce := classify.Classify(err)

	c := copyContext(callCtx, 2)
	if err != nil {
		c[ContextErrorMessage] = err.Error()
	}
	if ce.Status != 0 {
		c[ContextErrorStatus] = ce.Status
	}

	m.record(ctx, &domain.PerformanceMetric{
		TargetID:  targetID,
		Operation: operation,
		Duration:  max(duration, 0),
		Success:   false,
		ErrorKind: ce.Kind,
		Context:   c,
	})
}

func (m *Monitor) record(ctx context.Context, metric *domain.PerformanceMetric) {
	metric.ID = m.newID()
	metric.Timestamp = m.now()

	outcome := "success"
	if !metric.Success {
		outcome = string(metric.ErrorKind)
	}
	metrics.MetricsRecordedTotal.WithLabelValues(metric.TargetID, outcome).Inc()

	if err := m.metrics.Insert(ctx, metric); err != nil {
		metrics.MetricWriteFailuresTotal.Inc()
		m.log.Warn("Failed to record performance metric",
			"target", metric.TargetID,
			"operation", metric.Operation,
			"error", err,
		)
		return
	}

	if fn := m.onRecord.Load(); fn != nil {
		(*fn)(metric.TargetID)
	}
}

// GetHealth computes the target's health over the trailing health window.
func (m *Monitor) GetHealth(ctx context.Context, targetID string) domain.ModelHealth {
	now := m.now()
	ms, err := m.metrics.ListSince(ctx, targetID, now.Add(-m.cfg.HealthWindow))
	if err != nil {
		m.log.Warn("Failed to load metrics for health",
			"target", targetID,
			"error", err,
		)
		return domain.ModelHealth{
			TargetID:    targetID,
			SuccessRate: 100,
			Status:      domain.HealthUnknown,
			Issues:      []string{fmt.Sprintf("Metrics unavailable: %v", err)},
			CheckedAt:   now,
		}
	}
	return ComputeHealth(targetID, ms, m.cfg.Thresholds, now)
}

// GetStatistics aggregates the target's metrics over window ("<N>h" or
// "<N>d"). An empty window uses the configured default.
func (m *Monitor) GetStatistics(
	ctx context.Context,
	targetID, window string,
) domain.ModelStatistics {
	if window == "" {
		window = m.cfg.DefaultStatsWindow
	}
	dur, label := ParseWindow(window)

	ms, err := m.metrics.ListSince(ctx, targetID, m.now().Add(-dur))
	if err != nil {
		m.log.Warn("Failed to load metrics for statistics",
			"target", targetID,
			"window", label,
			"error", err,
		)
		ms = nil
	}
	return ComputeStatistics(targetID, label, dur, ms)
}

// GetAllHealth computes the health of every active target concurrently.
// Results are ordered by target id.
func (m *Monitor) GetAllHealth(ctx context.Context) []domain.ModelHealth {
	if m.targets == nil {
		return []domain.ModelHealth{}
	}
	targets, err := m.targets.ListActive(ctx)
	if err != nil {
		m.log.Warn("Failed to list active targets", "error", err)
		return []domain.ModelHealth{}
	}

	out := make([]domain.ModelHealth, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.MaxParallelism)
	for i, t := range targets {
		g.Go(func() error {
			out[i] = m.GetHealth(gctx, t.ID)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// GetAlerts derives alerts from the health of all active targets.
func (m *Monitor) GetAlerts(ctx context.Context) []domain.HealthAlert {
	return AlertsFor(m.GetAllHealth(ctx), m.now())
}

// AlertsFor maps degraded targets to warnings and critical targets to
// critical alerts.
func AlertsFor(healths []domain.ModelHealth, now time.Time) []domain.HealthAlert {
	alerts := []domain.HealthAlert{}
	for _, h := range healths {
		var sev domain.AlertSeverity
		switch h.Status {
		case domain.HealthCritical:
			sev = domain.SeverityCritical
		case domain.HealthDegraded:
			sev = domain.SeverityWarning
		default:
			continue
		}
		alerts = append(alerts, domain.HealthAlert{
			TargetID:  h.TargetID,
			Severity:  sev,
			Message:   alertMessage(h),
			Timestamp: now,
		})
	}
	return alerts
}

func alertMessage(h domain.ModelHealth) string {
	if len(h.Issues) == 0 {
		return fmt.Sprintf("Target %s is %s", h.TargetID, h.Status)
	}
	return fmt.Sprintf("Target %s is %s: %s", h.TargetID, h.Status, strings.Join(h.Issues, "; "))
}

// CachedHealth returns the freshest snapshot held by a snapshot store when
// it is younger than SnapshotMaxAge, and computes health live otherwise.
func (m *Monitor) CachedHealth(ctx context.Context, targetID string) domain.ModelHealth {
	now := m.now()
	for _, s := range m.sinks {
		h, err := s.LoadHealth(ctx, targetID)
		if err != nil {
			m.log.Debug("Health snapshot lookup failed", "target", targetID, "error", err)
			continue
		}
		if h != nil && now.Sub(h.CheckedAt) <= m.cfg.SnapshotMaxAge {
			return *h
		}
	}
	return m.GetHealth(ctx, targetID)
}

func copyContext(src map[string]any, extra int) map[string]any {
	if len(src) == 0 && extra == 0 {
		return nil
	}
	dst := make(map[string]any, len(src)+extra)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
