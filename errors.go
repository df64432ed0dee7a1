package fcs

import "github.com/ehrlich-b/go-fcs/internal/gateway"

// Error is the structured error returned by every client operation. It
// carries the mailbox command, the completion phase and, for service errors,
// the raw mailbox error word.
type Error = gateway.Error

// ErrorCode represents high-level error categories
type ErrorCode = gateway.Code

const (
	ErrCodeInvalidArgument = gateway.CodeInvalidArgument
	ErrCodeOutOfMemory     = gateway.CodeOutOfMemory
	ErrCodeSubmitFailed    = gateway.CodeSubmitFailed
	ErrCodeTimeout         = gateway.CodeTimeout
	ErrCodeRemote          = gateway.CodeRemote
	ErrCodeCopyFailed      = gateway.CodeCopyFailed
)

// IsCode checks if an error matches a specific error code
func IsCode(err error, code ErrorCode) bool {
	return gateway.IsCode(err, code)
}

// IsTimeout reports whether an error is a completion timeout (including a
// BUSY answer from the service).
func IsTimeout(err error) bool {
	return gateway.IsCode(err, gateway.CodeTimeout)
}

// MboxError extracts the service mailbox error word from an error. The
// second return is false when the error is not a remote service error.
func MboxError(err error) (uint32, bool) {
	return gateway.MboxError(err)
}
