package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
)

func TestIsTransient_ExplicitTransientError(t *testing.T) {
	err := NewTransientError(errors.New("indexer overloaded"), 503)
	if !IsTransient(err) {
		t.Error("expected TransientError to be transient")
	}
}

func TestIsTransient_WrappedTransientError(t *testing.T) {
	wrapped := fmt.Errorf("upload: %w", NewTransientError(errors.New("rate limited"), 429))
	if !IsTransient(wrapped) {
		t.Error("expected wrapped TransientError to be transient")
	}
}

func TestIsTransient_NilAndRegular(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error should not be transient")
	}
	if IsTransient(errors.New("invalid root hash")) {
		t.Error("regular error should not be transient")
	}
}

func TestIsTransient_Network(t *testing.T) {
	if !IsTransient(fmt.Errorf("write tcp: %w", syscall.ECONNRESET)) {
		t.Error("ECONNRESET should be transient")
	}
	if !IsTransient(fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED)) {
		t.Error("ECONNREFUSED should be transient")
	}
	if !IsTransient(&net.DNSError{IsTimeout: true, Err: "timeout"}) {
		t.Error("network timeout should be transient")
	}
	if !IsTransient(errors.New("read: connection reset by peer")) {
		t.Error("string pattern should be transient")
	}
}

func TestIsTransient_StatusError(t *testing.T) {
	if !IsTransient(&StatusError{Service: "gateway", StatusCode: StatusSegmentMissing}) {
		t.Error("segment missing should be transient")
	}
	if !IsTransient(fmt.Errorf("fetch: %w", &StatusError{Service: "gateway", StatusCode: 502})) {
		t.Error("wrapped 502 should be transient")
	}
	if IsTransient(&StatusError{Service: "gateway", StatusCode: 404}) {
		t.Error("404 should not be transient")
	}
}

func TestStatusError_Message(t *testing.T) {
	err := &StatusError{Service: "gateway", StatusCode: StatusSegmentMissing, Body: "x"}
	if err.Error() != "gateway: file temporarily unavailable: segment missing" {
		t.Errorf("unexpected message %q", err.Error())
	}
	err = &StatusError{Service: "gateway", StatusCode: 404, Body: "not found"}
	if err.Error() != "gateway: unexpected status 404: not found" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504, 600} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("expected HTTP %d to be transient", code)
		}
	}
	for _, code := range []int{200, 400, 401, 403, 404, 409, 422} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("expected HTTP %d to NOT be transient", code)
		}
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("root cause")
	te := NewTransientError(inner, 500)

	if !errors.Is(te, inner) {
		t.Error("TransientError.Unwrap should return the inner error")
	}
	if te.Error() != "root cause" {
		t.Errorf("unexpected message %q", te.Error())
	}
}
