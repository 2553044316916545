package resilience

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
)

// ErrTimeout is returned by WithTimeout when the call did not finish in time.
var ErrTimeout = eris.New("remote call timed out")

// TransientError marks a remote failure that may succeed on a later attempt
// (throttling, 5xx, dropped connections).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as retryable. statusCode is 0 for
// transport-level failures.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

var transientMessages = []string{
	"connection reset by peer",
	"connection refused",
	"broken pipe",
	"no such host",
	"i/o timeout",
	"tls handshake timeout",
	"server closed idle connection",
	"unexpected eof",
}

// IsTransient reports whether err is worth retrying. Timeouts produced by
// WithTimeout are not: the caller already spent its budget.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrTimeout) || errors.Is(err, ErrCircuitOpen) {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	for _, errno := range []syscall.Errno{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED} {
		if errors.Is(err, errno) {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, m := range transientMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// IsTransientHTTPStatus reports whether a response status is retryable.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Failure kinds reported by Classify.
const (
	FailureTimeout     = "timeout"
	FailureCircuitOpen = "circuit-open"
	FailureTransient   = "transient"
	FailurePermanent   = "permanent"
)

// Classify names the kind of failure err represents, for logs and metric
// labels. A nil error classifies as "".
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return FailureTimeout
	case errors.Is(err, ErrCircuitOpen):
		return FailureCircuitOpen
	case IsTransient(err):
		return FailureTransient
	default:
		return FailurePermanent
	}
}
