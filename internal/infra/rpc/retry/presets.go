package retry

import "github.com/vietddude/vidgate/internal/infra/rpc/classify"

// KindPresets returns WithKindPolicy options that back off each retryable
// kind with its classify preset (base doubling up to the kind's cap).
func KindPresets(jitter float64) []Option {
	var opts []Option
	for _, k := range classify.AllKinds() {
		if !k.Retryable() {
			continue
		}
		base, maxDelay := classify.Preset(k)
		opts = append(opts, WithKindPolicy(k, Policy{
			BaseDelay:         base,
			MaxDelay:          maxDelay,
			BackoffMultiplier: 2,
			JitterFactor:      jitter,
		}))
	}
	return opts
}
