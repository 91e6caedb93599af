package classify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"testing"
	"time"
)

type httpErr struct {
	status int
	msg    string
}

func (e *httpErr) Error() string   { return e.msg }
func (e *httpErr) StatusCode() int { return e.status }

type codeErr struct {
	code string
	msg  string
}

func (e *codeErr) Error() string { return e.msg }
func (e *codeErr) Code() string  { return e.code }

func TestClassify_StatusCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status    int
		kind      Kind
		retryable bool
	}{
		{400, KindInvalidInput, false},
		{401, KindAuthentication, false},
		{402, KindInsufficientCredits, false},
		{404, KindModelNotFound, false},
		{429, KindRateLimit, true},
		{500, KindServerError, true},
		{502, KindServerError, true},
		{503, KindServerError, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			t.Parallel()
			ce := Classify(&httpErr{status: tt.status, msg: "request failed"})
			if ce.Kind != tt.kind {
				t.Errorf("Kind = %s, want %s", ce.Kind, tt.kind)
			}
			if ce.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", ce.Retryable, tt.retryable)
			}
			if ce.StatusCode() != tt.status {
				t.Errorf("StatusCode() = %d, want %d", ce.StatusCode(), tt.status)
			}
		})
	}
}

func TestClassify_Messages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		kind Kind
	}{
		{errors.New("Rate limit exceeded for account"), KindRateLimit},
		{errors.New("Too Many Requests"), KindRateLimit},
		{errors.New("validation failed: prompt is empty"), KindInvalidInput},
		{errors.New("invalid input: fps"), KindInvalidInput},
		{errors.New("Model not found: acme/vid"), KindModelNotFound},
		{errors.New("insufficient credits"), KindInsufficientCredits},
		{errors.New("payment required"), KindInsufficientCredits},
		{errors.New("network is unreachable"), KindNetworkError},
		{errors.New("read: connection reset by peer"), KindNetworkError},
		{errors.New("request timeout"), KindTimeout},
		{errors.New("webhook delivery failed"), KindWebhookError},
		{errors.New("callback url rejected"), KindWebhookError},
		{errors.New("prediction failed: NSFW content"), KindPredictionError},
		{errors.New("generation failed"), KindPredictionError},
		{errors.New("something odd"), KindUnknown},
		{errors.New(""), KindUnknown},
	}

	for _, tt := range tests {
		if got := Classify(tt.err).Kind; got != tt.kind {
			t.Errorf("Classify(%q).Kind = %s, want %s", tt.err, got, tt.kind)
		}
	}
}

func TestClassify_PriorityOrder(t *testing.T) {
	t.Parallel()

	// 401 wins over a rate-limit message.
	if got := Classify(&httpErr{401, "rate limit"}).Kind; got != KindAuthentication {
		t.Errorf("got %s, want %s", got, KindAuthentication)
	}
	// Rate-limit message wins over 5xx status.
	if got := Classify(&httpErr{503, "too many requests"}).Kind; got != KindRateLimit {
		t.Errorf("got %s, want %s", got, KindRateLimit)
	}
	// ETIMEDOUT is a network code, so it never reaches the timeout rule.
	if got := Classify(&codeErr{CodeTimedOut, "socket"}).Kind; got != KindNetworkError {
		t.Errorf("got %s, want %s", got, KindNetworkError)
	}
}

func TestClassify_NetworkCodes(t *testing.T) {
	t.Parallel()

	for _, code := range []string{
		CodeConnReset, CodeConnRefused, CodeTimedOut, CodeNotFound,
		CodeAgain, CodePipe, CodeConnAborted,
	} {
		ce := Classify(&codeErr{code: code, msg: "dial failed"})
		if ce.Kind != KindNetworkError || !ce.Retryable {
			t.Errorf("code %s: got %s retryable=%v", code, ce.Kind, ce.Retryable)
		}
	}
}

func TestClassify_GoErrors(t *testing.T) {
	t.Parallel()

	opErr := &net.OpError{
		Op:  "read",
		Net: "tcp",
		Err: &os.SyscallError{Syscall: "read", Err: syscall.ECONNREFUSED},
	}
	if got := Classify(opErr).Kind; got != KindNetworkError {
		t.Errorf("ECONNREFUSED: got %s", got)
	}
	if got := Inspect(opErr).Code(); got != CodeConnRefused {
		t.Errorf("Inspect code = %q, want %q", got, CodeConnRefused)
	}

	dnsErr := &net.DNSError{Err: "no such host", Name: "api.example", IsNotFound: true}
	if got := Inspect(dnsErr).Code(); got != CodeNotFound {
		t.Errorf("dns code = %q, want %q", got, CodeNotFound)
	}

	for _, eof := range []error{io.EOF, io.ErrUnexpectedEOF} {
		wrapped := fmt.Errorf("createJob: %w", eof)
		if got := Classify(wrapped); got.Kind != KindNetworkError || !got.Retryable {
			t.Errorf("%v: got %s retryable=%v, want retryable %s", eof, got.Kind, got.Retryable, KindNetworkError)
		}
		if got := Inspect(wrapped).Code(); got != CodeConnReset {
			t.Errorf("%v: code = %q, want %q", eof, got, CodeConnReset)
		}
	}

	if got := Classify(context.DeadlineExceeded).Kind; got != KindTimeout {
		t.Errorf("deadline: got %s, want %s", got, KindTimeout)
	}
	if got := Classify(context.Canceled).Kind; got != KindUnknown {
		t.Errorf("canceled: got %s, want %s", got, KindUnknown)
	}
}

func TestClassify_Total(t *testing.T) {
	t.Parallel()

	ce := Classify(nil)
	if ce.Kind != KindUnknown || ce.Retryable {
		t.Errorf("Classify(nil) = %s retryable=%v", ce.Kind, ce.Retryable)
	}
	if ce.UserMessage == "" || ce.SuggestedAction == "" {
		t.Error("expected user text for unknown kind")
	}
}

func TestClassify_WrappedStatusAndIdempotent(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("create job: %w", &httpErr{status: 429, msg: "slow down"})
	ce := Classify(wrapped)
	if ce.Kind != KindRateLimit {
		t.Fatalf("got %s, want %s", ce.Kind, KindRateLimit)
	}
	if !errors.Is(ce, wrapped) {
		t.Error("ClassifiedError should unwrap to the original error")
	}
	if again := Classify(ce); again != ce {
		t.Error("classifying a ClassifiedError should return it unchanged")
	}
}

func TestKind_RetryableTable(t *testing.T) {
	t.Parallel()

	retryable := map[Kind]bool{
		KindRateLimit:    true,
		KindServerError:  true,
		KindNetworkError: true,
		KindTimeout:      true,
		KindWebhookError: true,
	}
	for _, k := range AllKinds() {
		if k.Retryable() != retryable[k] {
			t.Errorf("%s.Retryable() = %v, want %v", k, k.Retryable(), retryable[k])
		}
		if !k.Valid() {
			t.Errorf("%s should be valid", k)
		}
	}
	if Kind("bogus").Valid() {
		t.Error("bogus kind should not be valid")
	}
	if len(AllKinds()) != 11 {
		t.Errorf("AllKinds() len = %d, want 11", len(AllKinds()))
	}
}

func TestRecommendedDelay(t *testing.T) {
	t.Parallel()

	noJitter := NewClassifier(func() float64 { return 0 })
	tests := []struct {
		kind    Kind
		attempt int
		want    time.Duration
	}{
		{KindRateLimit, 0, 5 * time.Second},
		{KindRateLimit, 1, 10 * time.Second},
		{KindRateLimit, 4, 60 * time.Second},
		{KindServerError, 2, 8 * time.Second},
		{KindNetworkError, 3, 8 * time.Second},
		{KindNetworkError, 4, 15 * time.Second},
		{KindTimeout, 1, 6 * time.Second},
		{KindTimeout, 3, 20 * time.Second},
		{KindWebhookError, 0, 2 * time.Second},
		{KindUnknown, 0, 1 * time.Second},
		{KindAuthentication, 10, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := noJitter.RecommendedDelay(tt.kind, tt.attempt); got != tt.want {
			t.Errorf("RecommendedDelay(%s, %d) = %v, want %v", tt.kind, tt.attempt, got, tt.want)
		}
	}

	halfJitter := NewClassifier(func() float64 { return 0.5 })
	if got := halfJitter.RecommendedDelay(KindNetworkError, 0); got != 1500*time.Millisecond {
		t.Errorf("with jitter = %v, want 1.5s", got)
	}
	if got := halfJitter.RecommendedDelay(KindRateLimit, 5); got != 60*time.Second {
		t.Errorf("jitter must not exceed cap, got %v", got)
	}
}
