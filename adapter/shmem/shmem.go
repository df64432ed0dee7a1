// Package shmem implements the service channel over a memory-mapped shared
// window. The host writes a message descriptor and rings the doorbell by
// advancing its sequence word; the service answers through the completion
// descriptor, which a poller goroutine watches.
package shmem

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-fcs/internal/logging"
	"github.com/ehrlich-b/go-fcs/svc"
)

// Config configures a shared-memory channel.
type Config struct {
	// Path is the device node or file backing the shared window.
	Path string

	// WindowSize is the mapping size in bytes. Regular files are grown to
	// it; device nodes must already expose at least this much. Default
	// 256 KiB.
	WindowSize int

	// PollInterval is the completion poll period. Default 100us.
	PollInterval time.Duration

	// Init writes a fresh header instead of validating an existing one.
	// Set when this side creates the window.
	Init bool

	// SyncOnDone flushes the mapping to the backing store at the end of
	// each call sequence. Only meaningful for file-backed windows.
	SyncOnDone bool

	// Logger overrides the default logger.
	Logger *logging.Logger
}

// Channel is a shared-memory service channel.
type Channel struct {
	cfg Config
	log *logging.Logger

	fd  int
	win []byte

	mu     sync.Mutex
	cb     svc.CompletionFunc
	alloc  *allocator
	seq    uint32
	closed bool

	quit chan struct{}
	wg   sync.WaitGroup
}

// Open maps the shared window at cfg.Path and starts the completion poller.
func Open(cfg Config) (*Channel, error) {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 256 << 10
	}
	if cfg.WindowSize < MinWindowSize {
		return nil, fmt.Errorf("shmem: window size %d below minimum %d", cfg.WindowSize, MinWindowSize)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Microsecond
	}

	fd, err := unix.Open(cfg.Path, unix.O_RDWR|unix.O_CREAT, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shmem: open %s: %w", cfg.Path, err)
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shmem: stat %s: %w", cfg.Path, err)
	}
	if st.Mode&unix.S_IFMT == unix.S_IFREG && st.Size < int64(cfg.WindowSize) {
		if err := unix.Ftruncate(fd, int64(cfg.WindowSize)); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("shmem: grow %s: %w", cfg.Path, err)
		}
	}

	win, err := unix.Mmap(fd, 0, cfg.WindowSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shmem: mmap %s: %w", cfg.Path, err)
	}

	if cfg.Init {
		writeHeader(win, uint32(cfg.WindowSize))
	} else if err := checkHeader(win); err != nil {
		unix.Munmap(win)
		unix.Close(fd)
		return nil, err
	}

	c := &Channel{
		cfg:   cfg,
		log:   cfg.Logger,
		fd:    fd,
		win:   win,
		alloc: newAllocator(dataRegionOff, uint32(cfg.WindowSize)-dataRegionOff),
		quit:  make(chan struct{}),
	}
	if c.log == nil {
		c.log = logging.Default()
	}

	c.wg.Add(1)
	go c.poll()
	return c, nil
}

// Allocate implements svc.Channel. The returned buffer is a view into the
// mapped window.
func (c *Channel) Allocate(size int) (*svc.Buffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, svc.ErrClosed
	}
	off, ok := c.alloc.alloc(uint32(size))
	if !ok {
		c.log.Warn("shared window exhausted", "requested", size, "largest_free", c.alloc.largest())
		return nil, svc.ErrOutOfMemory
	}
	return &svc.Buffer{
		B:   c.win[off : off+uint32(size)],
		Off: off,
	}, nil
}

// Free implements svc.Channel
func (c *Channel) Free(b *svc.Buffer) {
	if b == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.alloc.release(b.Off, uint32(len(b.B)))
}

// Send implements svc.Channel. The sequence word is stored after the other
// descriptor fields; the service treats its change as the doorbell.
func (c *Channel) Send(msg *svc.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return svc.ErrClosed
	}
	c.seq++
	writeMessage(c.win, msg, c.seq)
	return nil
}

// Done implements svc.Channel
func (c *Channel) Done() {
	if !c.cfg.SyncOnDone {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if err := unix.Msync(c.win, unix.MS_SYNC); err != nil {
		c.log.Warn("msync failed", "error", err)
	}
}

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

	err := unix.Munmap(c.win)
	if cerr := unix.Close(c.fd); err == nil {
		err = cerr
	}
	return err
}

// poll watches the completion descriptor and delivers new records.
func (c *Channel) poll() {
	defer c.wg.Done()

	t := time.NewTicker(c.cfg.PollInterval)
	defer t.Stop()

	var seen uint32
	for {
		select {
		case <-c.quit:
			return
		case <-t.C:
			wc := readCompletion(c.win)
			if wc.seq == seen {
				continue
			}
			seen = wc.seq
			c.deliver(wc)
		}
	}
}

// deliver translates a wire completion and invokes the callback.
func (c *Channel) deliver(wc wireCompletion) {
	compl := svc.Completion{
		Status:    wc.status,
		MboxErr:   wc.mboxErr,
		Size:      wc.size,
		SizeValid: wc.flags&complFlagSizeValid != 0,
		W2:        wc.w2,
		W3:        wc.w3,
	}
	if wc.flags&complFlagHasBuf != 0 {
		end := wc.bufOff + wc.bufLen
		if wc.bufOff < dataRegionOff || end > uint32(len(c.win)) || end < wc.bufOff {
			c.log.Error("completion references bytes outside the window",
				"off", wc.bufOff, "len", wc.bufLen)
			compl.Status = svc.StatusError
		} else {
			compl.Buf = &svc.Buffer{
				B:   c.win[wc.bufOff:end],
				Off: wc.bufOff,
			}
		}
	}

	c.mu.Lock()
	cb := c.cb
	c.mu.Unlock()
	if cb != nil {
		cb(compl)
	}
}

// Compile-time interface check
var _ svc.Channel = (*Channel)(nil)
