// Package svc models the asynchronous service channel that connects the
// gateway to the FPGA crypto service: commands, messages, shared buffers
// and completion records. Concrete transports live under adapter/.
package svc

import "errors"

// Command identifies a mailbox command understood by the crypto service.
type Command uint32

const (
	CmdPollServiceStatus Command = iota + 1
	CmdRequestService
	CmdSendCertificate
	CmdCounterSetPreauthorized
	CmdRandomNumberGen
	CmdGetProvisionData
	CmdDataEncryption
	CmdDataDecryption
	CmdPsgSigmaTeardown
	CmdGetChipID
	CmdAttestationSubkey
	CmdAttestationMeasurements
	CmdAttestationCertificate
	CmdAttestationCertificateReload
	CmdGetRomPatchSha384
)

// String returns the mailbox command name.
func (c Command) String() string {
	switch c {
	case CmdPollServiceStatus:
		return "POLL_SERVICE_STATUS"
	case CmdRequestService:
		return "REQUEST_SERVICE"
	case CmdSendCertificate:
		return "SEND_CERTIFICATE"
	case CmdCounterSetPreauthorized:
		return "COUNTER_SET_PREAUTHORIZED"
	case CmdRandomNumberGen:
		return "RANDOM_NUMBER_GEN"
	case CmdGetProvisionData:
		return "GET_PROVISION_DATA"
	case CmdDataEncryption:
		return "DATA_ENCRYPTION"
	case CmdDataDecryption:
		return "DATA_DECRYPTION"
	case CmdPsgSigmaTeardown:
		return "PSGSIGMA_TEARDOWN"
	case CmdGetChipID:
		return "GET_CHIP_ID"
	case CmdAttestationSubkey:
		return "ATTESTATION_SUBKEY"
	case CmdAttestationMeasurements:
		return "ATTESTATION_MEASUREMENTS"
	case CmdAttestationCertificate:
		return "ATTESTATION_CERTIFICATE"
	case CmdAttestationCertificateReload:
		return "ATTESTATION_CERTIFICATE_RELOAD"
	case CmdGetRomPatchSha384:
		return "GET_ROM_PATCH_SHA384"
	default:
		return "UNKNOWN"
	}
}

// Status is the completion status raised by the service. Statuses are bit
// flags: a completion record carries exactly one of them, but the service
// firmware reports them as a mask.
type Status uint32

const (
	StatusOK Status = 1 << iota
	StatusBufferSubmitted
	StatusBufferDone
	StatusCompleted
	StatusBusy
	StatusError
	StatusNoSupport
	StatusInvalidParam
)

// String returns the status name for logging.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusBufferSubmitted:
		return "BUFFER_SUBMITTED"
	case StatusBufferDone:
		return "BUFFER_DONE"
	case StatusCompleted:
		return "COMPLETED"
	case StatusBusy:
		return "BUSY"
	case StatusError:
		return "ERROR"
	case StatusNoSupport:
		return "NO_SUPPORT"
	case StatusInvalidParam:
		return "INVALID_PARAM"
	default:
		return "UNKNOWN"
	}
}

// Buffer is a memory region visible to both the local caller and the remote
// service. Buffers are handed out by a Channel and must be returned to the
// same Channel exactly once.
type Buffer struct {
	// B is the mapped region. Its length is the allocation size.
	B []byte

	// Off is the offset of the region within the channel's shared window.
	// Transports that have no window (in-memory fakes) leave it zero.
	Off uint32
}

// Len returns the allocation size. Nil-safe.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.B)
}

// Message is one request submitted on the channel. A message is built fresh
// for every submission phase and must not be mutated after Send.
type Message struct {
	Command Command

	// Payload is the input region and PayloadLen the number of meaningful
	// bytes in it. For read-style commands the payload region doubles as
	// the result target and PayloadLen is its capacity.
	Payload    *Buffer
	PayloadLen int

	// Output is the separate result region for transform-style commands
	// (encryption, attestation) and OutputCap its capacity.
	Output    *Buffer
	OutputCap int

	// Args carries up to three scalar command arguments.
	Args [3]uint64
}

// Completion is the record the service raises when a submitted message
// finishes. Exactly one completion is produced per submission. Any buffer it
// references is owned by the request that allocated it; decoders only borrow
// it and the gateway frees it.
type Completion struct {
	Status Status

	// MboxErr is the service mailbox error code, valid when Status is
	// StatusError (auxiliary word 1).
	MboxErr uint32

	// Buf is the region holding result bytes, when the command produces
	// any (auxiliary pointer 2). Nil for scalar replies.
	Buf *Buffer

	// Size is the result byte count (auxiliary word 3). SizeValid reports
	// whether the service supplied it; an error completion may omit it.
	Size      uint32
	SizeValid bool

	// W2 and W3 are the scalar views of auxiliary words 2 and 3, used by
	// replies that carry values instead of buffers (chip identity halves).
	W2, W3 uint32
}

// CompletionFunc receives completion records. It is invoked from the
// channel's notification context, not from the submitting goroutine.
type CompletionFunc func(Completion)

// Channel errors returned by transports.
var (
	// ErrOutOfMemory reports that the shared window cannot satisfy an
	// allocation.
	ErrOutOfMemory = errors.New("svc: out of shared memory")

	// ErrSend reports that the transport rejected a message.
	ErrSend = errors.New("svc: send failed")

	// ErrClosed reports use of a closed channel.
	ErrClosed = errors.New("svc: channel closed")
)

// Channel is an asynchronous bidirectional link to the crypto service.
//
// A Channel supports exactly one outstanding message: Send must not be
// called again until the completion for the previous message has been
// delivered. The gateway enforces this with its serialization lock.
type Channel interface {
	// Allocate reserves a region of the shared window usable by both
	// sides. It either fully succeeds or fails with ErrOutOfMemory.
	Allocate(size int) (*Buffer, error)

	// Free returns a region to the window. Passing nil is a no-op; a
	// non-nil buffer must be freed exactly once.
	Free(b *Buffer)

	// Send submits a message. The completion is delivered later through
	// the registered callback.
	Send(msg *Message) error

	// Done releases the channel claim after a call sequence concludes.
	Done()

	// SetCallback registers the completion callback. It must be set
	// before the first Send and is not changed per request.
	SetCallback(fn CompletionFunc)

	// Close tears the transport down. No methods may be called after.
	Close() error
}
