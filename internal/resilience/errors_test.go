package resilience

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "deadline" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errRemote, 503), true},
		{"wrapped", fmt.Errorf("validate: %w", NewTransientError(errRemote, 429)), true},
		{"eris wrapped", eris.Wrap(NewTransientError(errRemote, 502), "schedule"), true},
		{"net timeout", &net.OpError{Op: "dial", Err: timeoutErr{}}, true},
		{"conn reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"conn refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"message", errors.New("Post http://tanda: EOF: unexpected EOF"), true},
		{"no host", errors.New("dial tcp: lookup tanda: no such host"), true},
		{"plain", errors.New("members out of range"), false},
		{"our timeout", eris.Wrap(ErrTimeout, "validate"), false},
		{"open circuit", ErrCircuitOpen, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	te := NewTransientError(errRemote, http.StatusBadGateway)
	assert.Equal(t, errRemote.Error(), te.Error())
	assert.ErrorIs(t, te, errRemote)
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), code)
	}
	for _, code := range []int{200, 400, 401, 404, 422, 501} {
		assert.False(t, IsTransientHTTPStatus(code), code)
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, "", Classify(nil))
	assert.Equal(t, FailureTimeout, Classify(eris.Wrap(ErrTimeout, "x")))
	assert.Equal(t, FailureCircuitOpen, Classify(ErrCircuitOpen))
	assert.Equal(t, FailureTransient, Classify(NewTransientError(errRemote, 500)))
	assert.Equal(t, FailurePermanent, Classify(errors.New("bad payload")))
}
