package protoerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestProtocolError_CodeExtraction(t *testing.T) {
	t.Log("Verifying Code() extracts codes through wrapping")

	err := New(CodeTicketExpired, "ticket expiry is in the past")
	wrapped := fmt.Errorf("validate ticket: %w", err)

	if got := Code(wrapped); got != CodeTicketExpired {
		t.Errorf("Code() = %q, want %q", got, CodeTicketExpired)
	}
	if !Is(wrapped, CodeTicketExpired) {
		t.Error("Is() should match the wrapped code")
	}
	if Is(wrapped, CodeReplayDetected) {
		t.Error("Is() must not match a different code")
	}
}

func TestProtocolError_NilAndForeignErrors(t *testing.T) {
	if got := Code(nil); got != "" {
		t.Errorf("Code(nil) = %q, want empty", got)
	}
	if got := Code(errors.New("plain")); got != "" {
		t.Errorf("Code(plain error) = %q, want empty", got)
	}
}

func TestProtocolError_WithContext(t *testing.T) {
	t.Log("Verifying With() adds context without mutating the original")

	base := New(CodeReplayDetected, "duplicate counter")
	withStream := base.With("stream_id", "7").With("counter", "42")

	if len(base.Context) != 0 {
		t.Error("With() must not mutate the original error")
	}
	if withStream.Context["stream_id"] != "7" || withStream.Context["counter"] != "42" {
		t.Errorf("unexpected context: %v", withStream.Context)
	}

	// Context keys render sorted and stable.
	want := "replay.detected: duplicate counter (counter=42, stream_id=7)"
	if got := withStream.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
