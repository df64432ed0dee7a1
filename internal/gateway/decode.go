package gateway

import (
	"fmt"

	"github.com/ehrlich-b/go-fcs/svc"
)

// Result is the structured outcome of one completed submission. It is
// populated from a completion record by exactly one decoder and read by
// exactly the caller blocked in call; single-flight serialization means it is
// never shared between requests.
type Result struct {
	// Err is the decoded failure, nil on success. Error completions may
	// still carry Data/Size describing a partial payload.
	Err error

	// Data references the region holding result bytes. The region belongs
	// to the request that allocated it; the gateway frees it, never the
	// decoder.
	Data *svc.Buffer

	// Size is the result byte count reported by the service.
	Size uint32

	// W2 and W3 hold scalar reply words (chip identity halves).
	W2, W3 uint32
}

// Decoder translates a raw completion record into a Result. Decoders are
// pure: no I/O, no buffer release, deterministic for a given record.
type Decoder func(op string, phase int, c svc.Completion) Result

// DecodePlain handles fire-and-forget commands that carry no result payload
// (teardown, counter update, certificate reload) and the acceptance phase of
// two-phase commands.
func DecodePlain(op string, phase int, c svc.Completion) Result {
	switch c.Status {
	case svc.StatusOK:
		return Result{}
	case svc.StatusBusy:
		return Result{Err: newError(op, phase, CodeTimeout, "service busy, completion not reached")}
	case svc.StatusInvalidParam:
		return Result{Err: newError(op, phase, CodeInvalidArgument, "request rejected")}
	case svc.StatusError:
		return Result{Err: remoteError(op, phase, c.MboxErr)}
	default:
		return Result{Err: newError(op, phase, CodeInvalidArgument,
			fmt.Sprintf("unexpected status %s", c.Status))}
	}
}

// DecodeData handles read-style commands (random numbers, provisioning data,
// ROM patch digest) and the poll-status phase. An ERROR completion may still
// report a partial payload size.
func DecodeData(op string, phase int, c svc.Completion) Result {
	switch c.Status {
	case svc.StatusOK, svc.StatusCompleted:
		return Result{Data: c.Buf, Size: c.Size}
	case svc.StatusError:
		r := Result{Err: remoteError(op, phase, c.MboxErr), Data: c.Buf}
		if c.SizeValid {
			r.Size = c.Size
		}
		return r
	default:
		return Result{Err: newError(op, phase, CodeInvalidArgument,
			fmt.Sprintf("unexpected status %s", c.Status))}
	}
}

// DecodeChipID handles the chip identity reply, which arrives as two 32-bit
// scalar words rather than a buffer.
func DecodeChipID(op string, phase int, c svc.Completion) Result {
	switch c.Status {
	case svc.StatusOK:
		return Result{W2: c.W2, W3: c.W3}
	case svc.StatusError:
		return Result{Err: remoteError(op, phase, c.MboxErr)}
	default:
		// Surface the raw status; the service defines no mapping here.
		return Result{Err: &Error{
			Op:    op,
			Phase: phase,
			Code:  CodeRemote,
			Msg:   fmt.Sprintf("service returned raw status %s", c.Status),
		}}
	}
}

// DecodeAttestation handles subkey, measurement and certificate responses.
// It captures the payload like DecodeData but accepts only OK; the dispatch
// table pairs it with a stretched timeout and a per-command response ceiling.
func DecodeAttestation(op string, phase int, c svc.Completion) Result {
	switch c.Status {
	case svc.StatusOK:
		return Result{Data: c.Buf, Size: c.Size}
	case svc.StatusError:
		return Result{Err: remoteError(op, phase, c.MboxErr)}
	default:
		return Result{Err: &Error{
			Op:    op,
			Phase: phase,
			Code:  CodeRemote,
			Msg:   fmt.Sprintf("service returned raw status %s", c.Status),
		}}
	}
}
