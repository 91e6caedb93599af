package domain

import (
	"time"

	"github.com/vietddude/vidgate/internal/infra/rpc/classify"
)

// HealthStatus is the derived health of a target.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthCritical HealthStatus = "critical"
	HealthUnknown  HealthStatus = "unknown"
)

// ModelHealth is recomputed from the metrics of the health window on every
// query and never mutated in place.
type ModelHealth struct {
	TargetID          string       `json:"target_id"`
	SuccessRate       float64      `json:"success_rate"`
	AvgResponseTimeMs float64      `json:"avg_response_time_ms"`
	TotalRequests     int          `json:"total_requests"`
	Status            HealthStatus `json:"status"`
	Issues            []string     `json:"issues"`
	CheckedAt         time.Time    `json:"checked_at"`
}

// Trend is a first-half versus second-half comparison within a window.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// Trends groups the directional signals of a statistics window.
type Trends struct {
	SuccessRate  Trend `json:"success_rate"`
	ResponseTime Trend `json:"response_time"`
}

// ModelStatistics is a windowed aggregate over a target's metrics.
type ModelStatistics struct {
	TargetID             string                `json:"target_id"`
	Window               string                `json:"window"`
	TotalRequests        int                   `json:"total_requests"`
	SuccessfulRequests   int                   `json:"successful_requests"`
	FailedRequests       int                   `json:"failed_requests"`
	SuccessRate          float64               `json:"success_rate"`
	AvgResponseTimeMs    float64               `json:"avg_response_time_ms"`
	MedianResponseTimeMs float64               `json:"median_response_time_ms"`
	P95ResponseTimeMs    float64               `json:"p95_response_time_ms"`
	ErrorBreakdown       map[classify.Kind]int `json:"error_breakdown"`
	RequestsPerHour      float64               `json:"requests_per_hour"`
	Trends               Trends                `json:"trends"`
}

// AlertSeverity grades a HealthAlert.
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// HealthAlert is raised for targets whose health is degraded or critical.
type HealthAlert struct {
	TargetID  string        `json:"target_id"`
	Severity  AlertSeverity `json:"severity"`
	Message   string        `json:"message"`
	Timestamp time.Time     `json:"timestamp"`
}
