package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/stretchr/testify/assert"

	"github.com/lscsde/aks-dns-operator/internal/dns"
)

var errRandomError = errors.New("some random error")

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

type refusedError struct{}

func (refusedError) Error() string   { return "connection refused" }
func (refusedError) Timeout() bool   { return false }
func (refusedError) Temporary() bool { return false }

func TestClassifyZoneError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil error", err: nil, expected: ""},
		{name: "auth error 401", err: &azcore.ResponseError{StatusCode: http.StatusUnauthorized}, expected: ErrorTypeAuth},
		{name: "auth error 403", err: &azcore.ResponseError{StatusCode: http.StatusForbidden}, expected: ErrorTypeAuth},
		{name: "rate limit", err: &azcore.ResponseError{StatusCode: http.StatusTooManyRequests}, expected: ErrorTypeRateLimit},
		{name: "precondition 412", err: &azcore.ResponseError{StatusCode: http.StatusPreconditionFailed}, expected: ErrorTypePrecondition},
		{name: "server error", err: &azcore.ResponseError{StatusCode: http.StatusServiceUnavailable}, expected: ErrorTypeServerError},
		{name: "client error", err: &azcore.ResponseError{StatusCode: http.StatusNotFound}, expected: ErrorTypeClientError},
		{name: "wrapped precondition sentinel", err: fmt.Errorf("write: %w", dns.ErrPreconditionFailed), expected: ErrorTypePrecondition},
		{name: "deadline", err: fmt.Errorf("list: %w", context.DeadlineExceeded), expected: ErrorTypeTimeout},
		{name: "net timeout", err: timeoutError{}, expected: ErrorTypeTimeout},
		{name: "net error", err: refusedError{}, expected: ErrorTypeNetwork},
		{name: "unknown", err: errRandomError, expected: ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, ClassifyZoneError(tt.err))
		})
	}
}
