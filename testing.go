package fcs

import (
	"sync"

	"github.com/ehrlich-b/go-fcs/svc"
)

// MockChannel provides a mock implementation of svc.Channel for testing.
// It fabricates completion records from a per-command script or a handler
// function and tracks allocation balance and single-flight violations.
type MockChannel struct {
	mu sync.Mutex

	cb      svc.CompletionFunc
	script  map[svc.Command][]svc.Completion
	handler func(*svc.Message) svc.Completion

	// Method call tracking
	allocCalls int
	freeCalls  int
	sendCalls  int
	doneCalls  int
	live       int

	// Single-flight tracking: pending is set between Send and completion
	// delivery; a Send while pending is a protocol violation.
	pending    bool
	violations int

	// Fault injection
	allocBudget int // remaining successful allocations, -1 = unlimited
	sendErr     error
	hold        bool // suppress completion delivery (forces timeouts)
	closed      bool
}

// NewMockChannel creates a mock channel. With no script and no handler every
// message completes OK, echoing its payload region and length back.
func NewMockChannel() *MockChannel {
	return &MockChannel{
		script:      make(map[svc.Command][]svc.Completion),
		allocBudget: -1,
	}
}

// Script queues completion records for a command. Each Send of that command
// consumes one queued record in order.
func (m *MockChannel) Script(cmd svc.Command, completions ...svc.Completion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script[cmd] = append(m.script[cmd], completions...)
}

// SetHandler installs a function that fabricates the completion for each
// message. The handler sees the message after submission and may write result
// bytes into its regions. Scripted completions take precedence.
func (m *MockChannel) SetHandler(fn func(*svc.Message) svc.Completion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = fn
}

// FailAllocations makes Allocate succeed n more times and then fail with
// svc.ErrOutOfMemory. Pass 0 to fail immediately, -1 to never fail.
func (m *MockChannel) FailAllocations(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allocBudget = n
}

// FailSend makes every subsequent Send return err.
func (m *MockChannel) FailSend(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// Hold suppresses completion delivery so waiting callers time out. Held
// messages produce no completion at all.
func (m *MockChannel) Hold(hold bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hold = hold
	if !hold {
		m.pending = false
	}
}

// Allocate implements svc.Channel
func (m *MockChannel) Allocate(size int) (*svc.Buffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.allocCalls++

	if m.closed {
		return nil, svc.ErrClosed
	}
	if m.allocBudget == 0 {
		return nil, svc.ErrOutOfMemory
	}
	if m.allocBudget > 0 {
		m.allocBudget--
	}

	m.live++
	return &svc.Buffer{B: make([]byte, size)}, nil
}

// Free implements svc.Channel
func (m *MockChannel) Free(b *svc.Buffer) {
	if b == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.freeCalls++
	m.live--
}

// Send implements svc.Channel. The completion is delivered synchronously
// before Send returns, unless the channel is held.
func (m *MockChannel) Send(msg *svc.Message) error {
	m.mu.Lock()

	m.sendCalls++

	if m.closed {
		m.mu.Unlock()
		return svc.ErrClosed
	}
	if m.pending {
		m.violations++
	}
	if m.sendErr != nil {
		err := m.sendErr
		m.mu.Unlock()
		return err
	}
	if m.hold {
		m.pending = true
		m.mu.Unlock()
		return nil
	}

	c, ok := m.nextCompletion(msg)
	cb := m.cb
	m.mu.Unlock()

	if ok && cb != nil {
		cb(c)
	}
	return nil
}

// nextCompletion picks the scripted record for the command, falls back to the
// handler, then to a default OK echo. Called with the lock held.
func (m *MockChannel) nextCompletion(msg *svc.Message) (svc.Completion, bool) {
	if q := m.script[msg.Command]; len(q) > 0 {
		c := q[0]
		m.script[msg.Command] = q[1:]
		return c, true
	}
	if m.handler != nil {
		return m.handler(msg), true
	}
	return svc.Completion{
		Status:    svc.StatusOK,
		Buf:       msg.Payload,
		Size:      uint32(msg.PayloadLen),
		SizeValid: true,
	}, true
}

// Done implements svc.Channel
func (m *MockChannel) Done() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doneCalls++
}

// SetCallback implements svc.Channel
func (m *MockChannel) SetCallback(fn svc.CompletionFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cb = fn
}

// Close implements svc.Channel
func (m *MockChannel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Testing utility methods

// AllocCalls returns the number of Allocate calls
func (m *MockChannel) AllocCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allocCalls
}

// FreeCalls returns the number of Free calls with a non-nil buffer
func (m *MockChannel) FreeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.freeCalls
}

// LiveBuffers returns the number of allocated but not yet freed buffers
func (m *MockChannel) LiveBuffers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

// Balanced reports whether every successful allocation has been freed
func (m *MockChannel) Balanced() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live == 0
}

// SendCalls returns the number of Send calls
func (m *MockChannel) SendCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sendCalls
}

// DoneCalls returns the number of Done calls
func (m *MockChannel) DoneCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.doneCalls
}

// Violations returns the number of overlapping-submit violations observed
func (m *MockChannel) Violations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.violations
}

// Reset clears call counters and fault injection, keeping the callback
func (m *MockChannel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.allocCalls = 0
	m.freeCalls = 0
	m.sendCalls = 0
	m.doneCalls = 0
	m.live = 0
	m.pending = false
	m.violations = 0
	m.allocBudget = -1
	m.sendErr = nil
	m.hold = false
	m.script = make(map[svc.Command][]svc.Completion)
	m.handler = nil
}

// Compile-time interface check
var _ svc.Channel = (*MockChannel)(nil)
