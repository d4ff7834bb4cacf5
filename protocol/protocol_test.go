package protocol

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	err := Timeout(PhaseAwaitResponse, DirectionResponse, context.DeadlineExceeded)

	msg := err.Error()
	for _, want := range []string{"timeout-writing", "await-response", "response receipt", "deadline exceeded"} {
		if !strings.Contains(msg, want) {
			t.Errorf("%q missing %q", msg, want)
		}
	}
}

func TestErrorsIs(t *testing.T) {
	cases := []struct {
		err  error
		want error
	}{
		{Timeout(PhaseAwaitWritable, DirectionRequest, nil), ErrTimeout},
		{WrongShape("bad tag %d", 99), ErrWrongShape},
		{ChannelIO(PhaseWrite, DirectionRequest, fs.ErrPermission), ErrChannelIO},
	}
	sentinels := []error{ErrTimeout, ErrWrongShape, ErrChannelIO}

	for _, c := range cases {
		wrapped := fmt.Errorf("call failed: %w", c.err)
		for _, s := range sentinels {
			if got := errors.Is(wrapped, s); got != (s == c.want) {
				t.Errorf("errors.Is(%v, %v) = %v", c.err, s, got)
			}
		}
	}
}

func TestUnwrapCause(t *testing.T) {
	err := ChannelIO(PhaseClaim, DirectionRequest, fs.ErrPermission)
	if !errors.Is(err, fs.ErrPermission) {
		t.Fatal("expect cause to be reachable")
	}
}

func TestWithPhase(t *testing.T) {
	base := WrongShape("not a call")
	err := WithPhase(base, PhaseRead, DirectionResponse)

	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expect *ProtocolError, got %T", err)
	}
	if pe.Phase != PhaseRead || pe.Direction != DirectionResponse || pe.Reason != ReasonWrongShape {
		t.Errorf("got %+v", pe)
	}
	if base.Phase != PhaseDecode {
		t.Error("WithPhase must not modify its argument")
	}

	plain := errors.New("plain")
	if WithPhase(plain, PhaseRead, DirectionResponse) != plain {
		t.Error("non-protocol errors pass through")
	}
}

func TestReasonOf(t *testing.T) {
	if r := ReasonOf(fmt.Errorf("x: %w", WrongShape("y"))); r != ReasonWrongShape {
		t.Errorf("got %q", r)
	}
	if r := ReasonOf(errors.New("z")); r != "" {
		t.Errorf("got %q", r)
	}
}
