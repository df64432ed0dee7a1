// Package loopback provides an in-memory service channel that simulates the
// crypto service. It exists for examples, CLI dry runs and integration style
// tests; the responses are fabricated, not cryptographic.
package loopback

import (
	"crypto/sha512"
	"encoding/binary"
	"math/rand"
	"sync"
	"time"

	"github.com/ehrlich-b/go-fcs/internal/constants"
	"github.com/ehrlich-b/go-fcs/internal/logging"
	"github.com/ehrlich-b/go-fcs/svc"
)

// cryptoHeaderSize is the simulated SDOS header added to a ciphertext and
// stripped from a plaintext.
const cryptoHeaderSize = 48

// Config configures a loopback channel. The zero value selects defaults.
type Config struct {
	// WindowSize caps the total bytes allocated at once, imitating a
	// bounded shared window. Default 1 MiB.
	WindowSize int

	// Latency delays each completion, imitating service execution time.
	Latency time.Duration

	// Seed fixes the simulated randomness for reproducible runs. Zero
	// seeds from the clock.
	Seed int64

	// ChipID is the identity reported by GET_CHIP_ID.
	ChipID uint64

	// Logger overrides the default logger.
	Logger *logging.Logger
}

// Channel is a simulated service channel. It supports one outstanding
// message, like the real transport.
type Channel struct {
	cfg Config
	log *logging.Logger
	rng *rand.Rand

	mu     sync.Mutex
	cb     svc.CompletionFunc
	used   int
	closed bool

	// pending carries two-phase state between the acceptance and the poll.
	pending *pendingOp

	jobs chan *svc.Message
	quit chan struct{}
	wg   sync.WaitGroup
}

type pendingOp struct {
	out      *svc.Buffer
	produced int
}

// New creates a loopback channel and starts its service goroutine.
func New(cfg Config) *Channel {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 1 << 20
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if cfg.ChipID == 0 {
		cfg.ChipID = 0x0102030405060708
	}
	c := &Channel{
		cfg:  cfg,
		log:  cfg.Logger,
		rng:  rand.New(rand.NewSource(cfg.Seed)),
		jobs: make(chan *svc.Message, 1),
		quit: make(chan struct{}),
	}
	if c.log == nil {
		c.log = logging.Default()
	}
	c.wg.Add(1)
	go c.serve()
	return c
}

// Allocate implements svc.Channel
func (c *Channel) Allocate(size int) (*svc.Buffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, svc.ErrClosed
	}
	if c.used+size > c.cfg.WindowSize {
		return nil, svc.ErrOutOfMemory
	}
	c.used += size
	return &svc.Buffer{B: make([]byte, size)}, nil
}

// Free implements svc.Channel
func (c *Channel) Free(b *svc.Buffer) {
	if b == nil {
		return
	}
	c.mu.Lock()
	c.used -= len(b.B)
	c.mu.Unlock()
}

// Send implements svc.Channel
func (c *Channel) Send(msg *svc.Message) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return svc.ErrClosed
	}
	c.mu.Unlock()

	select {
	case c.jobs <- msg:
		return nil
	default:
		return svc.ErrSend
	}
}

// Done implements svc.Channel
func (c *Channel) Done() {}

// SetCallback implements svc.Channel
func (c *Channel) SetCallback(fn svc.CompletionFunc) {
	c.mu.Lock()
	c.cb = fn
	c.mu.Unlock()
}

// Close implements svc.Channel
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.quit)
	c.wg.Wait()
	return nil
}

// serve runs the simulated service loop.
func (c *Channel) serve() {
	defer c.wg.Done()
	for {
		select {
		case <-c.quit:
			return
		case msg := <-c.jobs:
			if c.cfg.Latency > 0 {
				select {
				case <-c.quit:
					return
				case <-time.After(c.cfg.Latency):
				}
			}
			compl := c.execute(msg)

			c.mu.Lock()
			cb := c.cb
			c.mu.Unlock()
			if cb != nil {
				cb(compl)
			}
		}
	}
}

// execute fabricates the completion for one message.
func (c *Channel) execute(msg *svc.Message) svc.Completion {
	c.log.Debug("simulating command", "command", msg.Command.String())

	switch msg.Command {
	case svc.CmdRandomNumberGen:
		c.rng.Read(msg.Payload.B[:constants.RandomNumberSize])
		return okData(msg.Payload, constants.RandomNumberSize)

	case svc.CmdGetProvisionData:
		n := msg.PayloadLen
		if n > 256 {
			n = 256
		}
		for i := 0; i < n; i++ {
			msg.Payload.B[i] = byte(i)
		}
		return okData(msg.Payload, n)

	case svc.CmdGetRomPatchSha384:
		var seed [8]byte
		binary.LittleEndian.PutUint64(seed[:], c.cfg.ChipID)
		sum := sha512.Sum384(seed[:])
		copy(msg.Payload.B, sum[:])
		return okData(msg.Payload, constants.Sha384Size)

	case svc.CmdGetChipID:
		return svc.Completion{
			Status: svc.StatusOK,
			W2:     uint32(c.cfg.ChipID),
			W3:     uint32(c.cfg.ChipID >> 32),
		}

	case svc.CmdDataEncryption:
		produced := msg.PayloadLen + cryptoHeaderSize
		c.transform(msg.Payload.B[:msg.PayloadLen], msg.Output.B[cryptoHeaderSize:produced])
		c.setPending(msg, produced)
		return svc.Completion{Status: svc.StatusOK}

	case svc.CmdDataDecryption:
		produced := msg.PayloadLen - cryptoHeaderSize
		c.transform(msg.Payload.B[cryptoHeaderSize:msg.PayloadLen], msg.Output.B[:produced])
		c.setPending(msg, produced)
		return svc.Completion{Status: svc.StatusOK}

	case svc.CmdRequestService, svc.CmdSendCertificate:
		c.setPending(msg, 0)
		return svc.Completion{Status: svc.StatusOK}

	case svc.CmdPollServiceStatus:
		c.mu.Lock()
		p := c.pending
		c.pending = nil
		c.mu.Unlock()
		if p == nil {
			return svc.Completion{Status: svc.StatusInvalidParam}
		}
		binary.LittleEndian.PutUint32(msg.Payload.B, uint32(p.produced))
		return svc.Completion{
			Status:    svc.StatusCompleted,
			Buf:       msg.Payload,
			Size:      uint32(msg.PayloadLen),
			SizeValid: true,
		}

	case svc.CmdAttestationSubkey:
		return c.attestation(msg, constants.SubkeyRspMaxSize)

	case svc.CmdAttestationMeasurements:
		return c.attestation(msg, constants.MeasurementRspMaxSize)

	case svc.CmdAttestationCertificate:
		n := 512
		c.rng.Read(msg.Output.B[:n])
		return okData(msg.Output, n)

	case svc.CmdCounterSetPreauthorized,
		svc.CmdPsgSigmaTeardown,
		svc.CmdAttestationCertificateReload:
		return svc.Completion{Status: svc.StatusOK}

	default:
		return svc.Completion{Status: svc.StatusNoSupport}
	}
}

// transform applies the reversible keystream standing in for SDOS.
func (c *Channel) transform(src, dst []byte) {
	for i, b := range src {
		dst[i] = b ^ 0x5a
	}
}

func (c *Channel) setPending(msg *svc.Message, produced int) {
	c.mu.Lock()
	c.pending = &pendingOp{out: msg.Output, produced: produced}
	c.mu.Unlock()
}

func (c *Channel) attestation(msg *svc.Message, max int) svc.Completion {
	n := msg.PayloadLen * 2
	if n > max {
		n = max
	}
	if n > msg.OutputCap {
		n = msg.OutputCap
	}
	c.rng.Read(msg.Output.B[:n])
	return okData(msg.Output, n)
}

func okData(buf *svc.Buffer, n int) svc.Completion {
	return svc.Completion{
		Status:    svc.StatusOK,
		Buf:       buf,
		Size:      uint32(n),
		SizeValid: true,
	}
}

// Compile-time interface check
var _ svc.Channel = (*Channel)(nil)
