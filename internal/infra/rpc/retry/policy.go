package retry

import (
	"math"
	"time"
)

// Policy defines retry behavior for one invocation.
//
// Invalid values are normalized before use:
//   - MaxRetries < 0 becomes 0 (single attempt)
//   - BackoffMultiplier < 1 becomes 1 (constant delay)
//   - JitterFactor is clamped to [0, 1]
//   - MaxDelay <= 0 becomes BaseDelay
type Policy struct {
	MaxRetries        int           `yaml:"max_retries"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	JitterFactor      float64       `yaml:"jitter_factor"`
}

// DefaultPolicy provides sensible defaults.
var DefaultPolicy = Policy{
	MaxRetries:        3,
	BaseDelay:         1 * time.Second,
	MaxDelay:          30 * time.Second,
	BackoffMultiplier: 2.0,
	JitterFactor:      0.1,
}

// Normalize returns a copy of p with out-of-range fields corrected.
func (p Policy) Normalize() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BackoffMultiplier < 1 {
		p.BackoffMultiplier = 1
	}
	p.JitterFactor = min(max(p.JitterFactor, 0), 1)
	if p.MaxDelay <= 0 {
		p.MaxDelay = max(p.BaseDelay, 0)
	}
	return p
}

// Backoff returns the delay before attempt n+1, given that attempt n
// (0-indexed) failed: clamp(base*multiplier^n, 0, max), perturbed by
// ±JitterFactor and rounded to the millisecond. randFn must return values in
// [0, 1); a nil randFn disables jitter.
func Backoff(p Policy, n int, randFn func() float64) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.BackoffMultiplier, float64(n))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if d < 0 {
		d = 0
	}

	if p.JitterFactor > 0 && randFn != nil {
		d += d * p.JitterFactor * (randFn() - 0.5) * 2
	}
	if d < 0 {
		d = 0
	}

	ms := math.Round(d / float64(time.Millisecond))
	return time.Duration(ms) * time.Millisecond
}
