// Package classify maps raw failures from the generation API into a closed
// set of error kinds.
//
// Classification is rule based and total: every input, including nil and
// errors carrying no status or code, yields exactly one Kind. Each Kind has a
// fixed retryable flag and user-facing text, so the retry engine and the
// monitor agree on what a failure means.
package classify

// Kind is the closed taxonomy of failures.
type Kind string

const (
	KindAuthentication      Kind = "authentication"
	KindRateLimit           Kind = "rateLimit"
	KindInvalidInput        Kind = "invalidInput"
	KindModelNotFound       Kind = "modelNotFound"
	KindInsufficientCredits Kind = "insufficientCredits"
	KindNetworkError        Kind = "networkError"
	KindServerError         Kind = "serverError"
	KindTimeout             Kind = "timeout"
	KindWebhookError        Kind = "webhookError"
	KindPredictionError     Kind = "predictionError"
	KindUnknown             Kind = "unknown"
)

// KindInfo is the static description attached to a Kind.
type KindInfo struct {
	Retryable       bool
	UserMessage     string
	SuggestedAction string
}

var kindTable = map[Kind]KindInfo{
	KindAuthentication: {
		Retryable:       false,
		UserMessage:     "The video service rejected our credentials.",
		SuggestedAction: "Check the API token configuration.",
	},
	KindRateLimit: {
		Retryable:       true,
		UserMessage:     "The video service is busy right now.",
		SuggestedAction: "Wait a moment and try again.",
	},
	KindInvalidInput: {
		Retryable:       false,
		UserMessage:     "Some of the generation settings are not valid.",
		SuggestedAction: "Review the prompt and parameters, then submit again.",
	},
	KindModelNotFound: {
		Retryable:       false,
		UserMessage:     "The selected model is not available.",
		SuggestedAction: "Choose a different model.",
	},
	KindInsufficientCredits: {
		Retryable:       false,
		UserMessage:     "There are not enough credits for this generation.",
		SuggestedAction: "Top up credits or upgrade the plan.",
	},
	KindNetworkError: {
		Retryable:       true,
		UserMessage:     "We could not reach the video service.",
		SuggestedAction: "Check connectivity; the request will be retried.",
	},
	KindServerError: {
		Retryable:       true,
		UserMessage:     "The video service had an internal problem.",
		SuggestedAction: "Try again in a few minutes.",
	},
	KindTimeout: {
		Retryable:       true,
		UserMessage:     "The video service took too long to respond.",
		SuggestedAction: "Try again; shorter videos finish faster.",
	},
	KindWebhookError: {
		Retryable:       true,
		UserMessage:     "We did not receive the completion notice for this video.",
		SuggestedAction: "Refresh the job status in a moment.",
	},
	KindPredictionError: {
		Retryable:       false,
		UserMessage:     "The video could not be generated.",
		SuggestedAction: "Adjust the prompt or pick another model.",
	},
	KindUnknown: {
		Retryable:       false,
		UserMessage:     "Something went wrong while generating the video.",
		SuggestedAction: "Try again later or contact support if it keeps happening.",
	},
}

var allKinds = []Kind{
	KindAuthentication,
	KindRateLimit,
	KindInvalidInput,
	KindModelNotFound,
	KindInsufficientCredits,
	KindNetworkError,
	KindServerError,
	KindTimeout,
	KindWebhookError,
	KindPredictionError,
	KindUnknown,
}

// AllKinds returns every Kind in declaration order.
func AllKinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

// Describe returns the static info for k. Unrecognised kinds describe as
// KindUnknown.
func Describe(k Kind) KindInfo {
	if info, ok := kindTable[k]; ok {
		return info
	}
	return kindTable[KindUnknown]
}

// Retryable reports whether failures of kind k may be re-attempted.
func (k Kind) Retryable() bool {
	return Describe(k).Retryable
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	_, ok := kindTable[k]
	return ok
}
