package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	"github.com/lscsde/aks-dns-operator/internal/dns"
)

// Error type constants for metrics labels.
const (
	ErrorTypeAuth         = "auth"
	ErrorTypeRateLimit    = "rate_limit"
	ErrorTypeServerError  = "server_error"
	ErrorTypeClientError  = "client_error"
	ErrorTypePrecondition = "precondition"
	ErrorTypeTimeout      = "timeout"
	ErrorTypeNetwork      = "network"
	ErrorTypeUnknown      = "unknown"
)

// ClassifyZoneError classifies an error from a DNS zone call for metrics labeling.
// Returns an empty string for nil errors.
func ClassifyZoneError(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, dns.ErrPreconditionFailed) {
		return ErrorTypePrecondition
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return classifyByStatusCode(respErr.StatusCode)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorTypeTimeout
		}
		return ErrorTypeNetwork
	}

	return ErrorTypeUnknown
}

func classifyByStatusCode(statusCode int) string {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return ErrorTypeAuth
	case statusCode == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case statusCode == http.StatusPreconditionFailed:
		return ErrorTypePrecondition
	case statusCode >= http.StatusInternalServerError && statusCode < 600:
		return ErrorTypeServerError
	case statusCode >= http.StatusBadRequest && statusCode < http.StatusInternalServerError:
		return ErrorTypeClientError
	default:
		return ErrorTypeUnknown
	}
}
