package common

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrIs(t *testing.T) {
	err := NewErr(UnknownPeer, "99")

	if !Is(err, UnknownPeer) {
		t.Fatalf("expected UnknownPeer")
	}
	if Is(err, InvalidChannel) {
		t.Fatalf("UnknownPeer should not match InvalidChannel")
	}

	wrapped := fmt.Errorf("sending: %w", err)
	if !Is(wrapped, UnknownPeer) {
		t.Fatalf("Is should see through wrapping")
	}

	if Is(errors.New("plain"), UnknownPeer) {
		t.Fatalf("plain error should not match")
	}
}

func TestErrMessage(t *testing.T) {
	cause := errors.New("bad sdp")
	err := WrapErr(NegotiationError, "peer-1", cause)

	if got, want := err.Error(), "Negotiation Error, peer-1: bad sdp"; got != want {
		t.Fatalf("Error() should be %q, not %q", want, got)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("Unwrap should expose the cause")
	}
	if got := NewErr(Closed, "").Error(); got != "Closed" {
		t.Fatalf("Error() without subject should be %q, not %q", "Closed", got)
	}
}
