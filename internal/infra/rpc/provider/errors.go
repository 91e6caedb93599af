package provider

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// APIError is a failed API response.
type APIError struct {
	Operation string
	Status    int
	ErrCode   string
	Detail    string
	Wait      time.Duration // server-requested Retry-After, 0 if absent
}

func (e *APIError) Error() string {
	var b strings.Builder
	if e.Operation != "" {
		b.WriteString(e.Operation)
		b.WriteString(": ")
	}
	if e.Status > 0 {
		fmt.Fprintf(&b, "http %d", e.Status)
	} else {
		b.WriteString("api error")
	}
	if e.ErrCode != "" {
		fmt.Fprintf(&b, " [%s]", e.ErrCode)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

// StatusCode returns the HTTP (or HTTP-equivalent) status.
func (e *APIError) StatusCode() int { return e.Status }

// Code returns the API error code.
func (e *APIError) Code() string { return e.ErrCode }

// Message returns the API's error detail.
func (e *APIError) Message() string { return e.Error() }

// RetryAfter returns the server-requested wait.
func (e *APIError) RetryAfter() time.Duration { return e.Wait }

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return max(time.Duration(secs)*time.Second, 0)
	}
	if t, err := http.ParseTime(v); err == nil {
		return max(t.Sub(now), 0)
	}
	return 0
}

// Quota messages some upstreams send with non-429 statuses.
var throttlePatterns = []string{
	"rate limit exceeded",
	"too many requests",
	"daily request count exceeded",
	"monthly quota exceeded",
	"throttled",
}

func detectThrottle(body string) bool {
	lower := strings.ToLower(body)
	for _, p := range throttlePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
