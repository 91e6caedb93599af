package domain

import (
	"time"

	"github.com/vietddude/vidgate/internal/infra/rpc/classify"
)

// PerformanceMetric is one completed call against a target, recorded after
// the whole retry sequence finished. Metrics are append-only.
type PerformanceMetric struct {
	ID        string         `json:"id"`
	TargetID  string         `json:"target_id"`
	Operation string         `json:"operation"`
	Duration  time.Duration  `json:"duration"`
	Success   bool           `json:"success"`
	ErrorKind classify.Kind  `json:"error_kind,omitempty"` // set iff !Success
	Timestamp time.Time      `json:"timestamp"`
	Context   map[string]any `json:"context,omitempty"`
}
