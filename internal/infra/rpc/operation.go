package rpc

import (
	"time"

	"github.com/vietddude/vidgate/internal/infra/rpc/retry"
)

// Operation names as recorded in metrics and traces.
const (
	OpCreateJob  = "createJob"
	OpGetJob     = "getJob"
	OpCancelJob  = "cancelJob"
	OpListModels = "listModels"
	OpGetModel   = "getModel"
)

// Policies selects a retry policy per operation kind.
type Policies struct {
	Create retry.Policy `yaml:"create"`
	Read   retry.Policy `yaml:"read"`
	Cancel retry.Policy `yaml:"cancel"`
	List   retry.Policy `yaml:"list"`
}

// DefaultPolicies returns the standard per-operation policies.
func DefaultPolicies() Policies {
	return Policies{
		Create: policy(5, 2*time.Second, 30*time.Second),
		Read:   policy(3, time.Second, 10*time.Second),
		Cancel: policy(2, time.Second, 5*time.Second),
		List:   policy(3, time.Second, 10*time.Second),
	}
}

// WithDefaults replaces unset policies with the defaults.
func (p Policies) WithDefaults() Policies {
	d := DefaultPolicies()
	if p.Create == (retry.Policy{}) {
		p.Create = d.Create
	}
	if p.Read == (retry.Policy{}) {
		p.Read = d.Read
	}
	if p.Cancel == (retry.Policy{}) {
		p.Cancel = d.Cancel
	}
	if p.List == (retry.Policy{}) {
		p.List = d.List
	}
	return p
}

// For returns the policy used by the named operation.
func (p Policies) For(op string) retry.Policy {
	switch op {
	case OpCreateJob:
		return p.Create
	case OpCancelJob:
		return p.Cancel
	case OpListModels:
		return p.List
	default:
		return p.Read
	}
}

func policy(retries int, base, maxDelay time.Duration) retry.Policy {
	return retry.Policy{
		MaxRetries:        retries,
		BaseDelay:         base,
		MaxDelay:          maxDelay,
		BackoffMultiplier: 2,
		JitterFactor:      0.1,
	}
}
