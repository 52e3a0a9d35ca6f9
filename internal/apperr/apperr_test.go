package apperr

import (
	"context"
	"errors"
	"testing"
)

func TestUpstreamUnwrapsCause(t *testing.T) {
	err := Upstream(context.DeadlineExceeded, "llm call")
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("errors.Is(err, ErrUpstream) = false")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("errors.Is(err, context.DeadlineExceeded) = false")
	}
	if got := Code(err); got != "upstream_error" {
		t.Fatalf("Code() = %q, want %q", got, "upstream_error")
	}
}

func TestCodes(t *testing.T) {
	cases := map[string]error{
		"invalid_request": Validation("empty text"),
		"not_found":       NotFound("thread %s", "t1"),
		"internal_error":  errors.New("boom"),
	}
	for want, err := range cases {
		if got := Code(err); got != want {
			t.Fatalf("Code(%v) = %q, want %q", err, got, want)
		}
	}
	if Code(nil) != "" {
		t.Fatalf("Code(nil) should be empty")
	}
}
