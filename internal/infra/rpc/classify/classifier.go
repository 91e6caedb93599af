package classify

import (
	"errors"
	"fmt"
	"strings"
)

// ClassifiedError wraps a raw failure with its Kind and user-facing text.
// It is created once per failure and never mutated.
type ClassifiedError struct {
	Kind            Kind
	Status          int
	Retryable       bool
	Original        error
	UserMessage     string
	SuggestedAction string
}

func (e *ClassifiedError) Error() string {
	if e.Original == nil {
		return string(e.Kind)
	}
	if e.Status > 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Kind, e.Status, e.Original)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Original)
}

func (e *ClassifiedError) Unwrap() error { return e.Original }

// StatusCode returns the HTTP status observed for the failure, or 0.
func (e *ClassifiedError) StatusCode() int { return e.Status }

var networkCodes = map[string]struct{}{
	CodeConnReset:   {},
	CodeConnRefused: {},
	CodeTimedOut:    {},
	CodeNotFound:    {},
	CodeAgain:       {},
	CodePipe:        {},
	CodeConnAborted: {},
}

var (
	rateLimitPatterns    = []string{"rate limit", "too many requests"}
	invalidInputPatterns = []string{"invalid input", "validation"}
	notFoundPatterns     = []string{"model not found"}
	creditsPatterns      = []string{"insufficient credits", "payment"}
	networkPatterns      = []string{
		"econnreset",
		"econnrefused",
		"enotfound",
		"eai_again",
		"epipe",
		"econnaborted",
		"network",
		"connection reset",
		"connection refused",
		"broken pipe",
		"no such host",
		"socket hang up",
	}
	timeoutPatterns    = []string{"timeout", "timed out", "deadline exceeded"}
	webhookPatterns    = []string{"webhook", "callback"}
	predictionPatterns = []string{"prediction", "generation failed"}
)

// Classify maps err to a ClassifiedError. Rules are evaluated in a fixed
// order and the first match wins. A nil error classifies as KindUnknown.
func Classify(err error) *ClassifiedError {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}

	raw := Inspect(err)
	kind := KindOf(raw)
	info := Describe(kind)
	return &ClassifiedError{
		Kind:            kind,
		Status:          raw.StatusCode(),
		Retryable:       info.Retryable,
		Original:        err,
		UserMessage:     info.UserMessage,
		SuggestedAction: info.SuggestedAction,
	}
}

// KindOf applies the classification rules to a RawError.
func KindOf(raw RawError) Kind {
	if raw == nil {
		return KindUnknown
	}
	status := raw.StatusCode()
	code := strings.ToUpper(raw.Code())
	msg := strings.ToLower(raw.Message())

	switch {
	case status == 401:
		return KindAuthentication
	case status == 429 || containsAny(msg, rateLimitPatterns):
		return KindRateLimit
	case status == 400 || containsAny(msg, invalidInputPatterns):
		return KindInvalidInput
	case status == 404 || containsAny(msg, notFoundPatterns):
		return KindModelNotFound
	case status == 402 || containsAny(msg, creditsPatterns):
		return KindInsufficientCredits
	case status >= 500 && status <= 599:
		return KindServerError
	case isNetworkCode(code) || containsAny(msg, networkPatterns):
		return KindNetworkError
	case code == CodeTimedOut || containsAny(msg, timeoutPatterns):
		return KindTimeout
	case containsAny(msg, webhookPatterns):
		return KindWebhookError
	case containsAny(msg, predictionPatterns):
		return KindPredictionError
	default:
		return KindUnknown
	}
}

// IsRetryable reports whether err classifies as a transient failure.
func IsRetryable(err error) bool {
	return Classify(err).Retryable
}

func isNetworkCode(code string) bool {
	_, ok := networkCodes[code]
	return ok
}

func containsAny(s string, patterns []string) bool {
	if s == "" {
		return false
	}
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
