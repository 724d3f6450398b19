package brokererr

import (
	"errors"
	"fmt"
	"testing"
)

func TestOfRecoversKind(t *testing.T) {
	err := New(NotFound, "no such session: abc")

	kind, ok := Of(err)
	if !ok {
		t.Fatal("expected Of to report a tagged error")
	}
	if kind != NotFound {
		t.Errorf("kind = %q, want %q", kind, NotFound)
	}
}

func TestOfUntaggedError(t *testing.T) {
	_, ok := Of(errors.New("plain error"))
	if ok {
		t.Error("expected Of to report false for an untagged error")
	}
}

func TestErrorsIsAgainstKind(t *testing.T) {
	err := New(CapacityExceeded, "session capacity reached")

	if !errors.Is(err, CapacityExceeded) {
		t.Error("expected errors.Is(err, CapacityExceeded) to hold")
	}
	if errors.Is(err, NotFound) {
		t.Error("expected errors.Is(err, NotFound) to be false")
	}
}

func TestWrapPreservesCauseAndKind(t *testing.T) {
	cause := errors.New("underlying syscall failure")
	err := Wrap(PtySpawnFailure, "failed to spawn pty", cause)

	if !errors.Is(err, PtySpawnFailure) {
		t.Error("expected wrapped error to match its Kind")
	}
	if !errors.Is(err, cause) {
		t.Error("expected Unwrap to expose the original cause")
	}

	want := fmt.Sprintf("failed to spawn pty: %v", cause)
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
