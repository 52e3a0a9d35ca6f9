package reliability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) HTTPStatus() int { return int(e) }

func TestIsTransientHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		got := IsTransientHTTPStatus(tc.code)
		if got != tc.want {
			t.Fatalf("IsTransientHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestErrorCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), "timeout"},
		{"canceled", context.Canceled, "canceled"},
		{"rate limited", fmt.Errorf("wrap: %w", statusErr(429)), "rate_limited"},
		{"status", statusErr(503), "status_503"},
		{"network", &net.OpError{Op: "dial", Err: errors.New("refused")}, "network"},
		{"other", errors.New("boom"), "unknown"},
	}
	for _, tc := range cases {
		if got := ErrorCode(tc.err); got != tc.want {
			t.Fatalf("%s: ErrorCode() = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(statusErr(502)) {
		t.Fatalf("IsTransient(502) = false, want true")
	}
	if IsTransient(statusErr(401)) {
		t.Fatalf("IsTransient(401) = true, want false")
	}
	if IsTransient(errors.New("boom")) {
		t.Fatalf("IsTransient(unknown) = true, want false")
	}
}
