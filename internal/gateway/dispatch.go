package gateway

import (
	"time"

	"github.com/ehrlich-b/go-fcs/internal/constants"
	"github.com/ehrlich-b/go-fcs/svc"
)

// decodeKind selects the decoder variant for a command class.
type decodeKind int

const (
	plainDecode decodeKind = iota
	dataDecode
	chipIDDecode
	attestDecode
)

func (k decodeKind) decoder() Decoder {
	switch k {
	case dataDecode:
		return DecodeData
	case chipIDDecode:
		return DecodeChipID
	case attestDecode:
		return DecodeAttestation
	default:
		return DecodePlain
	}
}

// cmdSpec is the static per-command metadata that drives Exec. Sizes are in
// bytes; a zero bound means "not constrained" and a zero capacity means "no
// buffer of that kind".
type cmdSpec struct {
	name string
	kind decodeKind

	// poll requests the second poll-service-status phase after a
	// successful acceptance. pollOwnBuf allocates the dedicated 64-byte
	// status buffer for that phase; without it the payload region is
	// resubmitted.
	poll       bool
	pollOwnBuf bool

	// scale stretches the request timeout (attestation class).
	scale int

	// prefix is the length of the mandatory bit-for-bit prefix placed
	// before the payload (certificate test word, attestation reserved
	// word).
	prefix int

	// inMin/inMax bound the caller payload; inAlloc fixes the input
	// allocation size (payload length + prefix when zero).
	inMin, inMax int
	inAlloc      int

	// readback marks read-style commands whose payload region is the
	// result target: fixed size, or caller-sized when readbackCaller.
	readback       int
	readbackCaller bool

	// outAlloc fixes the separate output allocation; outMin/outMax bound
	// the caller's declared result capacity.
	outAlloc       int
	outMin, outMax int

	// ceiling is the maximum acceptable response size; a larger reported
	// size is rejected as invalid.
	ceiling int
}

var commandTable = map[svc.Command]cmdSpec{
	svc.CmdPollServiceStatus: {
		name: "POLL_SERVICE_STATUS",
		kind: dataDecode,
	},
	svc.CmdRequestService: {
		name:  "REQUEST_SERVICE",
		kind:  plainDecode,
		poll:  true,
		inMin: 1,
	},
	svc.CmdSendCertificate: {
		name:       "SEND_CERTIFICATE",
		kind:       plainDecode,
		poll:       true,
		pollOwnBuf: true,
		prefix:     constants.CertTestWordSize,
		inMin:      1,
	},
	svc.CmdCounterSetPreauthorized: {
		name: "COUNTER_SET_PREAUTHORIZED",
		kind: plainDecode,
	},
	svc.CmdRandomNumberGen: {
		name:     "RANDOM_NUMBER_GEN",
		kind:     dataDecode,
		readback: constants.RandomNumberSize,
	},
	svc.CmdGetProvisionData: {
		name:           "GET_PROVISION_DATA",
		kind:           dataDecode,
		readbackCaller: true,
	},
	svc.CmdDataEncryption: {
		name:       "DATA_ENCRYPTION",
		kind:       plainDecode,
		poll:       true,
		pollOwnBuf: true,
		inMin:      constants.DecMinSize,
		inMax:      constants.DecMaxSize,
		inAlloc:    constants.DecMaxSize,
		outAlloc:   constants.EncMaxSize,
		outMin:     constants.EncMinSize,
		outMax:     constants.EncMaxSize,
	},
	svc.CmdDataDecryption: {
		name:       "DATA_DECRYPTION",
		kind:       plainDecode,
		poll:       true,
		pollOwnBuf: true,
		inMin:      constants.EncMinSize,
		inMax:      constants.EncMaxSize,
		inAlloc:    constants.EncMaxSize,
		outAlloc:   constants.DecMaxSize,
		outMin:     constants.DecMinSize,
		outMax:     constants.DecMaxSize,
	},
	svc.CmdPsgSigmaTeardown: {
		name: "PSGSIGMA_TEARDOWN",
		kind: plainDecode,
	},
	svc.CmdGetChipID: {
		name: "GET_CHIP_ID",
		kind: chipIDDecode,
	},
	svc.CmdAttestationSubkey: {
		name:    "ATTESTATION_SUBKEY",
		kind:    attestDecode,
		scale:   constants.AttestationTimeoutScale,
		prefix:  constants.AttestationResvWordSize,
		inMax:   constants.SubkeyCmdMaxSize,
		inAlloc: constants.SubkeyCmdMaxSize + constants.AttestationResvWordSize,
		outAlloc: constants.SubkeyRspMaxSize,
		outMax:   constants.SubkeyRspMaxSize,
		ceiling:  constants.SubkeyRspMaxSize,
	},
	svc.CmdAttestationMeasurements: {
		name:    "ATTESTATION_MEASUREMENTS",
		kind:    attestDecode,
		scale:   constants.AttestationTimeoutScale,
		prefix:  constants.AttestationResvWordSize,
		inMax:   constants.MeasurementCmdMaxSize,
		inAlloc: constants.MeasurementCmdMaxSize + constants.AttestationResvWordSize,
		outAlloc: constants.MeasurementRspMaxSize,
		outMax:   constants.MeasurementRspMaxSize,
		ceiling:  constants.MeasurementRspMaxSize,
	},
	svc.CmdAttestationCertificate: {
		name:     "ATTESTATION_CERTIFICATE",
		kind:     attestDecode,
		scale:    constants.AttestationTimeoutScale,
		outAlloc: constants.CertificateRspMaxSize,
		outMax:   constants.CertificateRspMaxSize,
		ceiling:  constants.CertificateRspMaxSize,
	},
	svc.CmdAttestationCertificateReload: {
		name:  "ATTESTATION_CERTIFICATE_RELOAD",
		kind:  plainDecode,
		scale: constants.AttestationTimeoutScale,
	},
	svc.CmdGetRomPatchSha384: {
		name:     "GET_ROM_PATCH_SHA384",
		kind:     dataDecode,
		readback: constants.Sha384Size,
		ceiling:  constants.Sha384Size,
	},
}

// lookup resolves the dispatch entry for a command.
func lookup(cmd svc.Command) (cmdSpec, bool) {
	s, ok := commandTable[cmd]
	return s, ok
}

// requestTimeout applies the command's timeout scale to the base bound.
func (s cmdSpec) requestTimeout(base time.Duration) time.Duration {
	if s.scale > 1 {
		return time.Duration(s.scale) * base
	}
	return base
}

// validate checks request sizes against the table bounds. It runs before any
// buffer allocation so a rejected request allocates nothing.
func (s cmdSpec) validate(payloadLen, prefixLen, outputCap int) error {
	if prefixLen != s.prefix {
		return newError(s.name, 0, CodeInvalidArgument, "malformed command prefix")
	}
	if s.inMin > 0 && payloadLen < s.inMin {
		return newError(s.name, 0, CodeInvalidArgument, "source size below minimum")
	}
	if s.inMax > 0 && payloadLen > s.inMax {
		return newError(s.name, 0, CodeInvalidArgument, "source size above maximum")
	}
	if s.readbackCaller && outputCap <= 0 {
		return newError(s.name, 0, CodeInvalidArgument, "result size not specified")
	}
	if s.outMin > 0 && outputCap < s.outMin {
		return newError(s.name, 0, CodeInvalidArgument, "destination size below minimum")
	}
	if s.outMax > 0 && outputCap > s.outMax {
		return newError(s.name, 0, CodeInvalidArgument, "destination size above maximum")
	}
	return nil
}
