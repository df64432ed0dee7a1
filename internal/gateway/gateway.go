// Package gateway turns the asynchronous service channel into blocking
// calls: it owns the single-flight invariant, the shared buffer lifecycle
// and the per-command response decoding.
package gateway

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/ehrlich-b/go-fcs/internal/constants"
	"github.com/ehrlich-b/go-fcs/internal/logging"
	"github.com/ehrlich-b/go-fcs/svc"
)

// InvalidStatus is the sentinel poll-status word surfaced when the service
// produced no status payload. The value crosses the API boundary bit-for-bit.
const InvalidStatus = 0xffffffff

// Options configures a Gateway.
type Options struct {
	// RequestTimeout bounds the request-accepted acknowledgment
	// (default constants.DefaultRequestTimeout).
	RequestTimeout time.Duration

	// CompletedTimeout bounds the poll phase of two-phase commands
	// (default constants.DefaultCompletedTimeout).
	CompletedTimeout time.Duration

	// Logger overrides the default logger.
	Logger *logging.Logger
}

// Gateway bridges synchronous callers onto one asynchronous service channel.
//
// The channel supports a single outstanding message; the gateway's lock
// serializes {drain, submit, wait} so a second caller blocks until the first
// call returns. Because the lock is held until the wait resolves, at most one
// wait is ever pending and a completion can never be attributed to the wrong
// request.
type Gateway struct {
	ch  svc.Channel
	log *logging.Logger

	// mu serializes access to the channel; compl is the single-slot
	// handoff from the completion callback to the blocked caller.
	mu    sync.Mutex
	compl chan svc.Completion

	reqTimeout  time.Duration
	doneTimeout time.Duration
}

// New creates a gateway over ch and registers its completion callback.
func New(ch svc.Channel, opts Options) *Gateway {
	g := &Gateway{
		ch:          ch,
		log:         opts.Logger,
		compl:       make(chan svc.Completion, 1),
		reqTimeout:  opts.RequestTimeout,
		doneTimeout: opts.CompletedTimeout,
	}
	if g.log == nil {
		g.log = logging.Default()
	}
	if g.reqTimeout <= 0 {
		g.reqTimeout = constants.DefaultRequestTimeout
	}
	if g.doneTimeout <= 0 {
		g.doneTimeout = constants.DefaultCompletedTimeout
	}
	ch.SetCallback(g.complete)
	return g
}

// complete receives completion records from the channel's notification
// context. The slot holds one record; if a record is already pending the new
// one is dropped, which can only happen when the transport violates the
// one-completion-per-message contract.
func (g *Gateway) complete(c svc.Completion) {
	select {
	case g.compl <- c:
	default:
		g.log.Warn("dropping completion, slot already occupied", "status", c.Status.String())
	}
}

// Call submits one message and blocks until the service raises its
// completion or the timeout elapses. The completion record is routed through
// dec; the decoded Result and its error classification are returned together.
//
// On timeout the remote operation is not cancelled; if its completion ever
// arrives it is drained and discarded by the next Call. The service contract
// requires the remote side to stop referencing request memory once the
// request-accepted window has passed; buffers freed after a timeout rely on
// that.
func (g *Gateway) Call(msg *svc.Message, op string, phase int, dec Decoder, timeout time.Duration) (Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	// Discard a stale completion left behind by a timed-out call.
	select {
	case c := <-g.compl:
		g.log.Warn("discarding stale completion", "status", c.Status.String())
	default:
	}

	if err := g.ch.Send(msg); err != nil {
		return Result{}, WrapError(op, phase, CodeSubmitFailed, err)
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case c := <-g.compl:
		r := dec(op, phase, c)
		return r, r.Err
	case <-t.C:
		g.log.Error("timeout waiting for service completion", "op", op, "phase", phase)
		return Result{}, newError(op, phase, CodeTimeout, "no completion from service")
	}
}

// Request describes one command execution. Payload and Prefix are copied
// into shared memory; the caller keeps ownership of both slices.
type Request struct {
	Command svc.Command

	// Prefix is placed before Payload in the input region, preserving the
	// service's wire layout bit-for-bit (certificate test word,
	// attestation reserved word). Must match the command's prefix length.
	Prefix []byte

	// Payload is the command input.
	Payload []byte

	// OutputCap declares the caller's result capacity for commands with
	// caller-sized results.
	OutputCap int

	// Args carries scalar command arguments.
	Args [3]uint64
}

// Response is the structured outcome of one command execution. Data is a
// private copy; no shared memory escapes the gateway.
type Response struct {
	Data   []byte
	W2, W3 uint32

	// PollStatus is the raw poll-status word captured when the poll phase
	// fails, InvalidStatus when the service produced none.
	PollStatus uint32
}

// bufset scopes shared buffer acquisition for one Exec call. Every buffer it
// hands out is freed by release, which runs on all exit paths.
type bufset struct {
	ch   svc.Channel
	bufs []*svc.Buffer
}

func (b *bufset) get(op string, size int) (*svc.Buffer, error) {
	buf, err := b.ch.Allocate(size)
	if err != nil {
		return nil, WrapError(op, 0, CodeOutOfMemory, err)
	}
	b.bufs = append(b.bufs, buf)
	return buf, nil
}

func (b *bufset) release() {
	for _, buf := range b.bufs {
		b.ch.Free(buf)
	}
	b.bufs = nil
	b.ch.Done()
}

// Exec runs one command through the full gateway flow: bounds validation,
// shared buffer setup, submission, optional poll phase, response decoding and
// result copy-out. All buffers allocated during the call are released before
// it returns, on every branch.
func (g *Gateway) Exec(req Request) (Response, error) {
	var resp Response

	cs, ok := lookup(req.Command)
	if !ok {
		return resp, newError("UNKNOWN", 0, CodeInvalidArgument, "unknown command")
	}
	log := g.log.WithCommand(cs.name)

	if err := cs.validate(len(req.Payload), len(req.Prefix), req.OutputCap); err != nil {
		log.Error("request rejected", "error", err)
		return resp, err
	}

	buffers := &bufset{ch: g.ch}
	defer buffers.release()

	var in, out *svc.Buffer
	var payloadLen int
	var err error

	switch {
	case cs.readback > 0:
		// Read-style command: the payload region is the result target.
		in, err = buffers.get(cs.name, cs.readback)
		payloadLen = cs.readback
	case cs.readbackCaller:
		in, err = buffers.get(cs.name, req.OutputCap)
		payloadLen = req.OutputCap
	case len(req.Prefix)+len(req.Payload) > 0:
		alloc := cs.inAlloc
		if alloc == 0 {
			alloc = len(req.Prefix) + len(req.Payload)
		}
		in, err = buffers.get(cs.name, alloc)
		if err == nil {
			n := copy(in.B, req.Prefix)
			m := copy(in.B[n:], req.Payload)
			payloadLen = n + m
			if payloadLen != len(req.Prefix)+len(req.Payload) {
				return resp, newError(cs.name, 0, CodeCopyFailed, "input truncated by shared region")
			}
		}
	}
	if err != nil {
		return resp, err
	}

	if cs.outAlloc > 0 {
		out, err = buffers.get(cs.name, cs.outAlloc)
		if err != nil {
			return resp, err
		}
	}

	outputCap := req.OutputCap
	if outputCap == 0 && out != nil {
		outputCap = cs.outAlloc
	}

	msg := &svc.Message{
		Command:    req.Command,
		Payload:    in,
		PayloadLen: payloadLen,
		Output:     out,
		OutputCap:  outputCap,
		Args:       req.Args,
	}

	dec := cs.kind.decoder()
	if cs.poll {
		// Phase 1 only acknowledges acceptance.
		dec = DecodePlain
	}

	r, err := g.Call(msg, cs.name, 1, dec, cs.requestTimeout(g.reqTimeout))
	if err != nil {
		return resp, err
	}

	if cs.poll {
		return g.pollPhase(log, cs, buffers, in, payloadLen, out, resp)
	}

	switch cs.kind {
	case chipIDDecode:
		resp.W2, resp.W3 = r.W2, r.W3

	case dataDecode, attestDecode:
		if r.Data == nil {
			log.Error("completion carried no result region")
			return resp, newError(cs.name, 1, CodeCopyFailed, "missing result region")
		}
		n := int(r.Size)
		if cs.ceiling > 0 && n > cs.ceiling {
			log.Error("returned size is incorrect", "size", n, "ceiling", cs.ceiling)
			return resp, newError(cs.name, 1, CodeInvalidArgument, "returned size exceeds response ceiling")
		}
		if req.OutputCap > 0 && n > req.OutputCap {
			log.Error("returned size is incorrect", "size", n, "cap", req.OutputCap)
			return resp, newError(cs.name, 1, CodeInvalidArgument, "returned size exceeds caller capacity")
		}
		if n > r.Data.Len() {
			return resp, newError(cs.name, 1, CodeCopyFailed, "returned size exceeds result region")
		}
		resp.Data = append([]byte(nil), r.Data.B[:n]...)
	}

	return resp, nil
}

// pollPhase issues the poll-service-status round trip for commands whose
// hardware execution outlives the first acknowledgment. Phase 2's result
// supersedes phase 1's; a phase-2 failure surfaces phase 2's status.
func (g *Gateway) pollPhase(log *logging.Logger, cs cmdSpec, buffers *bufset,
	in *svc.Buffer, payloadLen int, out *svc.Buffer, resp Response) (Response, error) {

	ps := in
	psLen := payloadLen
	if cs.pollOwnBuf {
		var err error
		ps, err = buffers.get(cs.name, constants.PollStatusBufSize)
		if err != nil {
			return resp, err
		}
		psLen = constants.PollStatusBufSize
	}

	msg := &svc.Message{
		Command:    svc.CmdPollServiceStatus,
		Payload:    ps,
		PayloadLen: psLen,
	}

	r, err := g.Call(msg, cs.name, 2, DecodeData, g.doneTimeout)
	if err != nil {
		// Surface the raw poll status when the service produced one.
		resp.PollStatus = InvalidStatus
		if r.Data != nil && r.Data.Len() >= 4 {
			resp.PollStatus = binary.LittleEndian.Uint32(r.Data.B)
		}
		log.Error("poll phase failed", "poll_status", resp.PollStatus, "error", err)
		return resp, err
	}

	if out == nil {
		// Acceptance-only command; nothing to copy back.
		return resp, nil
	}

	if r.Data == nil || r.Data.Len() < 4 {
		return resp, newError(cs.name, 2, CodeCopyFailed, "missing poll status region")
	}
	n := int(binary.LittleEndian.Uint32(r.Data.B))
	if n > out.Len() {
		log.Error("returned size is incorrect", "size", n, "cap", out.Len())
		return resp, newError(cs.name, 2, CodeInvalidArgument, "returned size exceeds result region")
	}
	resp.Data = append([]byte(nil), out.B[:n]...)
	return resp, nil
}
