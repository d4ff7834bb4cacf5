// Package protocol defines the failure vocabulary of the cross-process rendezvous.
//
// Every failure of an exchange is a *ProtocolError. It names the reason
// (what went wrong), the phase of the state machine it happened in, and the
// direction of traffic it affected, so an operator reading a log line can tell
// whether the request never got deposited or the reply never came back:
//
//	START → AWAIT_WRITABLE → CLAIM → WRITE → RELEASE → AWAIT_RESPONSE → CLAIM → READ → RELEASE → DONE
//	              │                                         │
//	              └──────────────── TIMEOUT ←───────────────┘
//
// ProtocolErrors are fatal to the exchange in progress. Nothing in this module
// retries them.
package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// Reason is the sub-kind of a ProtocolError.
type Reason string

const (
	ReasonTimeout    Reason = "timeout-writing" // channel never became writable, or reply never arrived
	ReasonWrongShape Reason = "wrong-shape"     // decoded tree did not carry the expected tag or fields
	ReasonChannelIO  Reason = "channel-io"      // filesystem operation on a channel artifact failed
)

// Sentinels for errors.Is matching against a *ProtocolError's reason.
var (
	ErrTimeout    = errors.New("protocol: " + string(ReasonTimeout))
	ErrWrongShape = errors.New("protocol: " + string(ReasonWrongShape))
	ErrChannelIO  = errors.New("protocol: " + string(ReasonChannelIO))
)

// Phase is a state of the rendezvous state machine.
type Phase string

const (
	PhaseAwaitWritable Phase = "await-writable"
	PhaseClaim         Phase = "claim"
	PhaseWrite         Phase = "write"
	PhaseRelease       Phase = "release"
	PhaseAwaitResponse Phase = "await-response"
	PhaseRead          Phase = "read"
	PhaseAwaitRequest  Phase = "await-request" // responder side
	PhaseDispatch      Phase = "dispatch"      // responder side
	PhaseDecode        Phase = "decode"
)

// Direction says which leg of the round trip a failure belongs to.
type Direction string

const (
	DirectionRequest  Direction = "request deposit"
	DirectionResponse Direction = "response receipt"
	DirectionNone     Direction = ""
)

// ProtocolError is the single error kind of the bridge.
type ProtocolError struct {
	Reason    Reason
	Phase     Phase
	Direction Direction
	Detail    string
	Err       error
}

func (e *ProtocolError) Error() string {
	var b strings.Builder
	b.WriteString("crossplay: ")
	b.WriteString(string(e.Reason))
	if e.Phase != "" {
		b.WriteString(" during ")
		b.WriteString(string(e.Phase))
	}
	if e.Direction != DirectionNone {
		fmt.Fprintf(&b, " (%s)", e.Direction)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Is matches the reason sentinels, so callers can write
// errors.Is(err, protocol.ErrTimeout) without a type assertion.
func (e *ProtocolError) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Reason == ReasonTimeout
	case ErrWrongShape:
		return e.Reason == ReasonWrongShape
	case ErrChannelIO:
		return e.Reason == ReasonChannelIO
	}
	return false
}

// WrongShape builds a decode failure.
func WrongShape(format string, args ...any) *ProtocolError {
	return &ProtocolError{
		Reason: ReasonWrongShape,
		Phase:  PhaseDecode,
		Detail: fmt.Sprintf(format, args...),
	}
}

// Timeout builds a deadline failure for the given phase and direction.
func Timeout(phase Phase, dir Direction, err error) *ProtocolError {
	return &ProtocolError{
		Reason:    ReasonTimeout,
		Phase:     phase,
		Direction: dir,
		Err:       err,
	}
}

// ChannelIO wraps a filesystem failure on a channel artifact.
func ChannelIO(phase Phase, dir Direction, err error) *ProtocolError {
	return &ProtocolError{
		Reason:    ReasonChannelIO,
		Phase:     phase,
		Direction: dir,
		Err:       err,
	}
}

// WithPhase returns a copy of err annotated with phase and direction when err
// is a *ProtocolError; any other error is returned unchanged.
func WithPhase(err error, phase Phase, dir Direction) error {
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		return err
	}
	cp := *pe
	cp.Phase = phase
	cp.Direction = dir
	return &cp
}

// ReasonOf extracts the reason of a ProtocolError, or "" for other errors.
func ReasonOf(err error) Reason {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return ""
}
