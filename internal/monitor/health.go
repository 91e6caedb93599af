package monitor

import (
	"fmt"
	"time"

	"github.com/vietddude/vidgate/internal/core/domain"
)

const noDataIssue = "No recent data available"

// ComputeHealth derives a target's health from the metrics of its health
// window. It is a pure function of its inputs.
func ComputeHealth(
	targetID string,
	ms []*domain.PerformanceMetric,
	th Thresholds,
	now time.Time,
) domain.ModelHealth {
	h := domain.ModelHealth{
		TargetID:  targetID,
		CheckedAt: now,
		Issues:    []string{},
	}

	if len(ms) == 0 {
		h.Status = domain.HealthUnknown
		h.SuccessRate = 100
		h.Issues = append(h.Issues, noDataIssue)
		return h
	}

	successes := 0
	var latencySum time.Duration
	latencyCount := 0
	for _, m := range ms {
		if !m.Success {
			continue
		}
		successes++
		// Failures and unmeasured calls do not count towards latency.
		if m.Duration > 0 {
			latencySum += m.Duration
			latencyCount++
		}
	}

	h.TotalRequests = len(ms)
	h.SuccessRate = float64(successes) / float64(len(ms)) * 100
	if latencyCount > 0 {
		h.AvgResponseTimeMs = durationMs(latencySum) / float64(latencyCount)
	}

	h.Status = domain.HealthHealthy

	if h.SuccessRate < th.CriticalSuccessRate {
		h.Status = domain.HealthCritical
		h.Issues = append(h.Issues,
			fmt.Sprintf("Success rate critically low: %.1f%%", h.SuccessRate))
	} else if h.SuccessRate < th.MinSuccessRate {
		h.Status = domain.HealthDegraded
		h.Issues = append(h.Issues,
			fmt.Sprintf("Success rate below threshold: %.1f%%", h.SuccessRate))
	}

	if h.AvgResponseTimeMs > durationMs(th.CriticalResponseTime) {
		h.Status = domain.HealthCritical
		h.Issues = append(h.Issues,
			fmt.Sprintf("Average response time critically high: %.0fms", h.AvgResponseTimeMs))
	} else if h.AvgResponseTimeMs > durationMs(th.MaxAvgResponseTime) {
		if h.Status != domain.HealthCritical {
			h.Status = domain.HealthDegraded
		}
		h.Issues = append(h.Issues,
			fmt.Sprintf("Average response time above threshold: %.0fms", h.AvgResponseTimeMs))
	}

	return h
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
