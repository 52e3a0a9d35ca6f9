package reliability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
)

// statusCoder is implemented by provider errors that carry an HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

// IsTransientHTTPStatus reports statuses that usually clear up on their own.
func IsTransientHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// ErrorCode classifies an upstream failure into a low-cardinality label.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}

	var sc statusCoder
	if errors.As(err, &sc) && sc.HTTPStatus() > 0 {
		if sc.HTTPStatus() == 429 {
			return "rate_limited"
		}
		return fmt.Sprintf("status_%d", sc.HTTPStatus())
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return "timeout"
		}
		return "network"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return "network"
	}
	return "unknown"
}

// IsTransient reports whether err looks like a temporary upstream condition.
func IsTransient(err error) bool {
	switch ErrorCode(err) {
	case "timeout", "rate_limited", "network":
		return true
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		return IsTransientHTTPStatus(sc.HTTPStatus())
	}
	return false
}
