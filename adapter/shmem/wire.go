package shmem

import (
	"encoding/binary"
	"fmt"

	"github.com/ehrlich-b/go-fcs/svc"
)

// Shared window layout. One message descriptor slot and one completion
// descriptor slot follow the header; the data region fills the rest. The
// single-slot layout matches the one-message-in-flight channel contract.
//
//	[0,64)    header
//	[64,128)  message descriptor
//	[128,192) completion descriptor
//	[192,...) data region
const (
	windowMagic = 0x46435357 // "FCSW"
	wireVersion = 1

	headerSize    = 64
	msgSlotOff    = 64
	msgSlotSize   = 64
	complSlotOff  = 128
	complSlotSize = 64
	dataRegionOff = 192

	// MinWindowSize is the smallest usable window: layout overhead plus
	// room for one poll-status buffer.
	MinWindowSize = dataRegionOff + 256
)

// Header field offsets.
const (
	hdrMagic      = 0
	hdrVersion    = 4
	hdrWindowSize = 8
	hdrDataOff    = 12
)

// Message descriptor field offsets. The sequence word is written last; the
// service treats a changed sequence as the doorbell.
const (
	msgCommand    = 0
	msgPayloadOff = 4
	msgPayloadLen = 8
	msgOutputOff  = 12
	msgOutputCap  = 16
	msgArg0       = 24
	msgArg1       = 32
	msgArg2       = 40
	msgSeq        = 48
)

// Completion descriptor field offsets. The sequence word is written last by
// the service and read first by the poller.
const (
	complStatus  = 0
	complMboxErr = 4
	complBufOff  = 8
	complBufLen  = 12
	complSize    = 16
	complFlags   = 20
	complW2      = 24
	complW3      = 28
	complSeq     = 32
)

// Completion flag bits.
const (
	complFlagSizeValid = 1 << 0
	complFlagHasBuf    = 1 << 1
)

// writeHeader initializes the window header.
func writeHeader(win []byte, windowSize uint32) {
	le := binary.LittleEndian
	le.PutUint32(win[hdrMagic:], windowMagic)
	le.PutUint32(win[hdrVersion:], wireVersion)
	le.PutUint32(win[hdrWindowSize:], windowSize)
	le.PutUint32(win[hdrDataOff:], dataRegionOff)
}

// checkHeader validates an existing window header.
func checkHeader(win []byte) error {
	le := binary.LittleEndian
	if got := le.Uint32(win[hdrMagic:]); got != windowMagic {
		return fmt.Errorf("shmem: bad window magic %#x", got)
	}
	if got := le.Uint32(win[hdrVersion:]); got != wireVersion {
		return fmt.Errorf("shmem: unsupported wire version %d", got)
	}
	return nil
}

// writeMessage marshals msg into the message slot and rings the doorbell by
// storing seq last.
func writeMessage(win []byte, msg *svc.Message, seq uint32) {
	le := binary.LittleEndian
	slot := win[msgSlotOff : msgSlotOff+msgSlotSize]

	le.PutUint32(slot[msgCommand:], uint32(msg.Command))
	if msg.Payload != nil {
		le.PutUint32(slot[msgPayloadOff:], msg.Payload.Off)
		le.PutUint32(slot[msgPayloadLen:], uint32(msg.PayloadLen))
	} else {
		le.PutUint32(slot[msgPayloadOff:], 0)
		le.PutUint32(slot[msgPayloadLen:], 0)
	}
	if msg.Output != nil {
		le.PutUint32(slot[msgOutputOff:], msg.Output.Off)
		le.PutUint32(slot[msgOutputCap:], uint32(msg.OutputCap))
	} else {
		le.PutUint32(slot[msgOutputOff:], 0)
		le.PutUint32(slot[msgOutputCap:], 0)
	}
	le.PutUint64(slot[msgArg0:], msg.Args[0])
	le.PutUint64(slot[msgArg1:], msg.Args[1])
	le.PutUint64(slot[msgArg2:], msg.Args[2])

	le.PutUint32(slot[msgSeq:], seq)
}

// readMessage parses the message slot, returning the sequence word alongside
// the decoded fields. Offsets stay raw; the caller resolves them against the
// window.
type wireMessage struct {
	seq        uint32
	command    svc.Command
	payloadOff uint32
	payloadLen uint32
	outputOff  uint32
	outputCap  uint32
	args       [3]uint64
}

func readMessage(win []byte) wireMessage {
	le := binary.LittleEndian
	slot := win[msgSlotOff : msgSlotOff+msgSlotSize]

	return wireMessage{
		seq:        le.Uint32(slot[msgSeq:]),
		command:    svc.Command(le.Uint32(slot[msgCommand:])),
		payloadOff: le.Uint32(slot[msgPayloadOff:]),
		payloadLen: le.Uint32(slot[msgPayloadLen:]),
		outputOff:  le.Uint32(slot[msgOutputOff:]),
		outputCap:  le.Uint32(slot[msgOutputCap:]),
		args: [3]uint64{
			le.Uint64(slot[msgArg0:]),
			le.Uint64(slot[msgArg1:]),
			le.Uint64(slot[msgArg2:]),
		},
	}
}

// wireCompletion is the raw completion descriptor.
type wireCompletion struct {
	seq     uint32
	status  svc.Status
	mboxErr uint32
	bufOff  uint32
	bufLen  uint32
	size    uint32
	flags   uint32
	w2, w3  uint32
}

// writeCompletion marshals a completion record, storing seq last.
func writeCompletion(win []byte, c wireCompletion) {
	le := binary.LittleEndian
	slot := win[complSlotOff : complSlotOff+complSlotSize]

	le.PutUint32(slot[complStatus:], uint32(c.status))
	le.PutUint32(slot[complMboxErr:], c.mboxErr)
	le.PutUint32(slot[complBufOff:], c.bufOff)
	le.PutUint32(slot[complBufLen:], c.bufLen)
	le.PutUint32(slot[complSize:], c.size)
	le.PutUint32(slot[complFlags:], c.flags)
	le.PutUint32(slot[complW2:], c.w2)
	le.PutUint32(slot[complW3:], c.w3)

	le.PutUint32(slot[complSeq:], c.seq)
}

// readCompletion parses the completion descriptor.
func readCompletion(win []byte) wireCompletion {
	le := binary.LittleEndian
	slot := win[complSlotOff : complSlotOff+complSlotSize]

	return wireCompletion{
		seq:     le.Uint32(slot[complSeq:]),
		status:  svc.Status(le.Uint32(slot[complStatus:])),
		mboxErr: le.Uint32(slot[complMboxErr:]),
		bufOff:  le.Uint32(slot[complBufOff:]),
		bufLen:  le.Uint32(slot[complBufLen:]),
		size:    le.Uint32(slot[complSize:]),
		flags:   le.Uint32(slot[complFlags:]),
		w2:      le.Uint32(slot[complW2:]),
		w3:      le.Uint32(slot[complW3:]),
	}
}
