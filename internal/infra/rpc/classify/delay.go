package classify

import (
	"math"
	"math/rand/v2"
	"time"
)

type delayPreset struct {
	base time.Duration
	max  time.Duration
}

var delayPresets = map[Kind]delayPreset{
	KindRateLimit:    {base: 5 * time.Second, max: 60 * time.Second},
	KindServerError:  {base: 2 * time.Second, max: 30 * time.Second},
	KindNetworkError: {base: 1 * time.Second, max: 15 * time.Second},
	KindTimeout:      {base: 3 * time.Second, max: 20 * time.Second},
	KindWebhookError: {base: 2 * time.Second, max: 30 * time.Second},
}

var defaultPreset = delayPreset{base: 1 * time.Second, max: 30 * time.Second}

// maxJitter bounds the additive jitter of RecommendedDelay.
const maxJitter = time.Second

// Classifier carries the random source used for kind-specific backoff.
// Classification itself is stateless; see Classify.
type Classifier struct {
	rand func() float64
}

// NewClassifier returns a Classifier. A nil randFn uses math/rand/v2.
func NewClassifier(randFn func() float64) *Classifier {
	if randFn == nil {
		randFn = rand.Float64
	}
	return &Classifier{rand: randFn}
}

// Classify is a convenience wrapper over the package-level Classify.
func (c *Classifier) Classify(err error) *ClassifiedError {
	return Classify(err)
}

// RecommendedDelay returns min(cap, base*2^attempt + jitter) using the preset
// for kind. Jitter is uniform in [0, 1s).
func (c *Classifier) RecommendedDelay(kind Kind, attempt int) time.Duration {
	p, ok := delayPresets[kind]
	if !ok {
		p = defaultPreset
	}
	if attempt < 0 {
		attempt = 0
	}

	d := float64(p.base) * math.Pow(2, float64(attempt))
	d += c.rand() * float64(maxJitter)
	if d > float64(p.max) {
		d = float64(p.max)
	}
	return time.Duration(d)
}

// RecommendedDelay uses the default random source.
func RecommendedDelay(kind Kind, attempt int) time.Duration {
	return NewClassifier(nil).RecommendedDelay(kind, attempt)
}

// Preset returns the base delay and cap used by RecommendedDelay for kind.
func Preset(kind Kind) (base, maxDelay time.Duration) {
	p, ok := delayPresets[kind]
	if !ok {
		p = defaultPreset
	}
	return p.base, p.max
}
