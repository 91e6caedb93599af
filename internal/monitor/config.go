package monitor

import (
	"fmt"
	"time"
)

// Thresholds drive the health status derivation.
//
// CriticalSuccessRate defaults to 50. An earlier revision of this service
// documented 80; the value is configuration, not a constant, so deployments
// that want the stricter cut-off can set it.
type Thresholds struct {
	MinSuccessRate       float64       `yaml:"min_success_rate"`
	CriticalSuccessRate  float64       `yaml:"critical_success_rate"`
	MaxAvgResponseTime   time.Duration `yaml:"max_avg_response_time"`
	CriticalResponseTime time.Duration `yaml:"critical_response_time"`
}

// Config holds monitor settings.
type Config struct {
	HealthWindow       time.Duration `yaml:"health_window"`
	DefaultStatsWindow string        `yaml:"default_stats_window"`
	Thresholds         Thresholds    `yaml:"thresholds"`
	MaxParallelism     int           `yaml:"max_parallelism"`
	RefreshInterval    time.Duration `yaml:"refresh_interval"`
	Retention          time.Duration `yaml:"retention"` // 0 = keep forever
	SnapshotMaxAge     time.Duration `yaml:"snapshot_max_age"`
	// ManualTargets stops the refresher from registering targets it has
	// not seen before.
	ManualTargets bool `yaml:"manual_targets"`
}

// DefaultThresholds returns the standard health thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinSuccessRate:       95,
		CriticalSuccessRate:  50,
		MaxAvgResponseTime:   30 * time.Second,
		CriticalResponseTime: 60 * time.Second,
	}
}

// DefaultConfig returns sensible monitor defaults.
func DefaultConfig() Config {
	return Config{
		HealthWindow:       time.Hour,
		DefaultStatsWindow: "24h",
		Thresholds:         DefaultThresholds(),
		MaxParallelism:     8,
		RefreshInterval:    30 * time.Second,
		SnapshotMaxAge:     5 * time.Minute,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.HealthWindow <= 0 {
		c.HealthWindow = d.HealthWindow
	}
	if c.DefaultStatsWindow == "" {
		c.DefaultStatsWindow = d.DefaultStatsWindow
	}
	if c.Thresholds == (Thresholds{}) {
		c.Thresholds = d.Thresholds
	}
	if c.MaxParallelism <= 0 {
		c.MaxParallelism = d.MaxParallelism
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = d.RefreshInterval
	}
	if c.SnapshotMaxAge <= 0 {
		c.SnapshotMaxAge = d.SnapshotMaxAge
	}
	return c
}

// Validate checks threshold ordering.
func (t Thresholds) Validate() error {
	if t.CriticalSuccessRate < 0 || t.MinSuccessRate > 100 {
		return fmt.Errorf("success rate thresholds must be within [0, 100]")
	}
	if t.CriticalSuccessRate > t.MinSuccessRate {
		return fmt.Errorf("critical_success_rate (%.1f) must not exceed min_success_rate (%.1f)",
			t.CriticalSuccessRate, t.MinSuccessRate)
	}
	if t.MaxAvgResponseTime > t.CriticalResponseTime {
		return fmt.Errorf("max_avg_response_time (%v) must not exceed critical_response_time (%v)",
			t.MaxAvgResponseTime, t.CriticalResponseTime)
	}
	return nil
}
