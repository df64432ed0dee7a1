package constants

import "time"

// Fixed command buffer sizes, in bytes.
const (
	// RandomNumberSize is the size of one random number response.
	RandomNumberSize = 32

	// PollStatusBufSize is the size of the poll-service-status buffer.
	PollStatusBufSize = 64

	// Sha384Size is the size of the ROM patch digest.
	Sha384Size = 48
)

// SDOS encryption/decryption payload bounds, in bytes. A plaintext block
// carries a 48-byte header plus up to 24 bytes of padding relative to its
// ciphertext, hence the asymmetric bounds.
const (
	DecMinSize = 72
	DecMaxSize = 32712
	EncMinSize = 120
	EncMaxSize = 32760
)

// Attestation command/response ceilings, in bytes.
const (
	SubkeyCmdMaxSize      = 4092
	SubkeyRspMaxSize      = 820
	MeasurementCmdMaxSize = 4092
	MeasurementRspMaxSize = 4092
	CertificateRspMaxSize = 4096
)

// AttestationResvWordSize is the reserved word that precedes attestation
// command data in the shared buffer. The layout crosses into the service
// bit-for-bit.
const AttestationResvWordSize = 4

// CertTestWordSize is the test word that precedes certificate data.
const CertTestWordSize = 4

// SIGMA session identifiers accepted by PSGSIGMA_TEARDOWN.
const (
	SigmaSessionIDOne   = 0x1
	SigmaUnknownSession = 0xffffffff
)

// Timeouts for the two completion phases.
const (
	// DefaultRequestTimeout bounds the request-accepted acknowledgment.
	DefaultRequestTimeout = 2 * time.Second

	// DefaultCompletedTimeout bounds the second poll phase, during which
	// the hardware operation runs to completion.
	DefaultCompletedTimeout = 30 * time.Second

	// AttestationTimeoutScale stretches the request timeout for
	// attestation-class commands, which execute inside the service
	// without a separate poll phase.
	AttestationTimeoutScale = 10
)
