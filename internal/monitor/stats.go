package monitor

import (
	"math"
	"regexp"
	"slices"
	"strconv"
	"time"

	"github.com/vietddude/vidgate/internal/core/domain"
	"github.com/vietddude/vidgate/internal/infra/rpc/classify"
)

const (
	defaultWindow      = 24 * time.Hour
	defaultWindowLabel = "24h"

	minTrendSamples       = 10
	successRateTrendDelta = 2.0
	latencyTrendDeltaMs   = 1000.0
)

var windowPattern = regexp.MustCompile(`^(\d+)([hd])$`)

// ParseWindow parses "<N>h" or "<N>d". Anything else, including a zero N or
// a window too long for time.Duration, yields 24h. The returned label is the
// normalized window string.
func ParseWindow(s string) (time.Duration, string) {
	m := windowPattern.FindStringSubmatch(s)
	if m == nil {
		return defaultWindow, defaultWindowLabel
	}

	unit := time.Hour
	if m[2] == "d" {
		unit = 24 * time.Hour
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n <= 0 || n > math.MaxInt64/int64(unit) {
		return defaultWindow, defaultWindowLabel
	}
	return time.Duration(n) * unit, s
}

// ComputeStatistics aggregates the metrics of one window. ms must be in time
// order.
func ComputeStatistics(
	targetID string,
	window string,
	windowDur time.Duration,
	ms []*domain.PerformanceMetric,
) domain.ModelStatistics {
	st := domain.ModelStatistics{
		TargetID:       targetID,
		Window:         window,
		TotalRequests:  len(ms),
		ErrorBreakdown: make(map[classify.Kind]int, len(classify.AllKinds())),
		Trends:         domain.Trends{SuccessRate: domain.TrendStable, ResponseTime: domain.TrendStable},
	}
	for _, k := range classify.AllKinds() {
		st.ErrorBreakdown[k] = 0
	}

	for _, m := range ms {
		if m.Success {
			st.SuccessfulRequests++
			continue
		}
		st.FailedRequests++
		kind := m.ErrorKind
		if !kind.Valid() {
			kind = classify.KindUnknown
		}
		st.ErrorBreakdown[kind]++
	}

	if st.TotalRequests > 0 {
		st.SuccessRate = float64(st.SuccessfulRequests) / float64(st.TotalRequests) * 100
	}

	durations := successDurationsMs(ms)
	if n := len(durations); n > 0 {
		slices.Sort(durations)
		st.AvgResponseTimeMs = mean(durations)
		// Lower-middle element for even counts keeps the median index based.
		st.MedianResponseTimeMs = durations[(n-1)/2]
		st.P95ResponseTimeMs = durations[min(n*95/100, n-1)]
	}

	if windowDur > 0 {
		st.RequestsPerHour = float64(st.TotalRequests) / windowDur.Hours()
	}

	st.Trends = computeTrends(ms)
	return st
}

// computeTrends compares the first and second halves of ms.
func computeTrends(ms []*domain.PerformanceMetric) domain.Trends {
	t := domain.Trends{SuccessRate: domain.TrendStable, ResponseTime: domain.TrendStable}
	if len(ms) < minTrendSamples {
		return t
	}

	mid := len(ms) / 2
	first, second := ms[:mid], ms[mid:]

	diff := successRate(second) - successRate(first)
	switch {
	case diff > successRateTrendDelta:
		t.SuccessRate = domain.TrendImproving
	case diff < -successRateTrendDelta:
		t.SuccessRate = domain.TrendDeclining
	}

	// A half without measured successes carries no latency signal.
	d1, d2 := successDurationsMs(first), successDurationsMs(second)
	if len(d1) == 0 || len(d2) == 0 {
		return t
	}
	latDiff := mean(d2) - mean(d1)
	switch {
	case latDiff < -latencyTrendDeltaMs:
		t.ResponseTime = domain.TrendImproving
	case latDiff > latencyTrendDeltaMs:
		t.ResponseTime = domain.TrendDeclining
	}
	return t
}

func successRate(ms []*domain.PerformanceMetric) float64 {
	if len(ms) == 0 {
		return 0
	}
	ok := 0
	for _, m := range ms {
		if m.Success {
			ok++
		}
	}
	return float64(ok) / float64(len(ms)) * 100
}

func successDurationsMs(ms []*domain.PerformanceMetric) []float64 {
	var out []float64
	for _, m := range ms {
		if m.Success && m.Duration > 0 {
			out = append(out, durationMs(m.Duration))
		}
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
