package gateway

import (
	"errors"
	"fmt"
	"strings"
)

// Code represents high-level gateway error categories
type Code string

const (
	// CodeInvalidArgument covers size-bound violations, malformed
	// requests and unexpected completion statuses.
	CodeInvalidArgument Code = "invalid argument"

	// CodeOutOfMemory reports a shared buffer allocation failure.
	CodeOutOfMemory Code = "out of shared memory"

	// CodeSubmitFailed reports that the channel rejected the message.
	CodeSubmitFailed Code = "submit failed"

	// CodeTimeout reports that no completion arrived within the phase's
	// bound, or that the service answered BUSY.
	CodeTimeout Code = "timeout"

	// CodeRemote reports an explicit ERROR completion; the Mbox field
	// carries the service's error word.
	CodeRemote Code = "service error"

	// CodeCopyFailed reports a failure moving result bytes across the
	// caller/gateway boundary.
	CodeCopyFailed Code = "copy failed"
)

// Error is a structured gateway error with command and phase context
type Error struct {
	Op    string // mailbox command name (e.g. "DATA_ENCRYPTION")
	Phase int    // completion phase (0 if not applicable)
	Code  Code   // high-level error category
	Mbox  uint32 // service mailbox error word (valid for CodeRemote)
	Msg   string // human-readable message
	Inner error  // wrapped error
}

// Error implements the error interface
func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}

	if e.Phase > 0 {
		parts = append(parts, fmt.Sprintf("phase=%d", e.Phase))
	}

	if e.Code == CodeRemote {
		parts = append(parts, fmt.Sprintf("mbox=0x%x", e.Mbox))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("fcs: %s (%s)", msg, strings.Join(parts, ", "))
	}

	return fmt.Sprintf("fcs: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is matches two gateway errors by code
func (e *Error) Is(target error) bool {
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// NewError creates an error with command context
func NewError(op string, code Code, msg string) *Error {
	return &Error{
		Op:   op,
		Code: code,
		Msg:  msg,
	}
}

// newError creates an error for the given command and phase
func newError(op string, phase int, code Code, msg string) *Error {
	return &Error{
		Op:    op,
		Phase: phase,
		Code:  code,
		Msg:   msg,
	}
}

// remoteError creates an error carrying the service's mailbox error word
func remoteError(op string, phase int, mbox uint32) *Error {
	return &Error{
		Op:    op,
		Phase: phase,
		Code:  CodeRemote,
		Mbox:  mbox,
		Msg:   fmt.Sprintf("service reported mailbox error 0x%x", mbox),
	}
}

// WrapError wraps a transport error with command context
func WrapError(op string, phase int, code Code, inner error) *Error {
	if inner == nil {
		return nil
	}

	// If it's already a gateway error, just update the context
	if ge, ok := inner.(*Error); ok {
		return &Error{
			Op:    op,
			Phase: phase,
			Code:  ge.Code,
			Mbox:  ge.Mbox,
			Msg:   ge.Msg,
			Inner: ge.Inner,
		}
	}

	return &Error{
		Op:    op,
		Phase: phase,
		Code:  code,
		Msg:   inner.Error(),
		Inner: inner,
	}
}

// IsCode checks if an error matches a specific error code
func IsCode(err error, code Code) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code == code
	}
	return false
}

// MboxError extracts the service mailbox error word from an error.
// The second return is false when the error is not a remote service error.
func MboxError(err error) (uint32, bool) {
	var ge *Error
	if errors.As(err, &ge) && ge.Code == CodeRemote {
		return ge.Mbox, true
	}
	return 0, false
}
