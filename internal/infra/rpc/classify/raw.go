package classify

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
)

// RawError is the narrow view the classifier needs of a failure. Any of the
// accessors may return the zero value when the information is absent.
type RawError interface {
	StatusCode() int
	Code() string
	Message() string
}

type statusCoder interface {
	StatusCode() int
}

type coder interface {
	Code() string
}

type rawView struct {
	status  int
	code    string
	message string
}

func (r rawView) StatusCode() int { return r.status }
func (r rawView) Code() string    { return r.code }
func (r rawView) Message() string { return r.message }

// Network error codes treated as transient transport failures.
const (
	CodeConnReset   = "ECONNRESET"
	CodeConnRefused = "ECONNREFUSED"
	CodeTimedOut    = "ETIMEDOUT"
	CodeNotFound    = "ENOTFOUND"
	CodeAgain       = "EAI_AGAIN"
	CodePipe        = "EPIPE"
	CodeConnAborted = "ECONNABORTED"
)

var errnoCodes = []struct {
	errno syscall.Errno
	code  string
}{
	{syscall.ECONNRESET, CodeConnReset},
	{syscall.ECONNREFUSED, CodeConnRefused},
	{syscall.ETIMEDOUT, CodeTimedOut},
	{syscall.EPIPE, CodePipe},
	{syscall.ECONNABORTED, CodeConnAborted},
}

// Inspect extracts a RawError from any Go error. Status and code come from
// the first error in the chain exposing StatusCode() or Code(); otherwise
// well-known network failures are mapped to their conventional codes.
func Inspect(err error) RawError {
	if err == nil {
		return rawView{}
	}
	if r, ok := err.(RawError); ok {
		return r
	}

	v := rawView{message: err.Error()}

	var sc statusCoder
	if errors.As(err, &sc) {
		v.status = sc.StatusCode()
	}
	var c coder
	if errors.As(err, &c) {
		v.code = c.Code()
	}
	if v.code == "" {
		v.code = networkCode(err)
	}
	return v
}

func networkCode(err error) string {
	for _, e := range errnoCodes {
		if errors.Is(err, e.errno) {
			return e.code
		}
	}

	// The peer closed the connection mid-exchange.
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return CodeConnReset
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return CodeNotFound
		}
		if dnsErr.IsTemporary {
			return CodeAgain
		}
	}

	// Caller deadlines are classified by message, not as transport failures.
	if errors.Is(err, context.DeadlineExceeded) {
		return ""
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeTimedOut
	}
	return ""
}
