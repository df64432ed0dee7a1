package shmem

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	fcs "github.com/ehrlich-b/go-fcs"
	"github.com/ehrlich-b/go-fcs/internal/constants"
	"github.com/ehrlich-b/go-fcs/svc"
)

func TestAllocator(t *testing.T) {
	a := newAllocator(192, 1024)

	off1, ok := a.alloc(100)
	require.True(t, ok)
	require.Equal(t, uint32(192), off1)

	off2, ok := a.alloc(100)
	require.True(t, ok)
	require.Greater(t, off2, off1)

	// Requests are aligned, so a full-window claim after partial frees
	// only succeeds once everything coalesced back.
	a.release(off1, 100)
	_, ok = a.alloc(1024)
	require.False(t, ok)

	a.release(off2, 100)
	off3, ok := a.alloc(1024)
	require.True(t, ok)
	require.Equal(t, uint32(192), off3)
}

func TestAllocatorExhaustion(t *testing.T) {
	a := newAllocator(0, 64)

	_, ok := a.alloc(65)
	require.False(t, ok)

	off, ok := a.alloc(64)
	require.True(t, ok)

	_, ok = a.alloc(8)
	require.False(t, ok)

	a.release(off, 64)
	_, ok = a.alloc(64)
	require.True(t, ok)
}

func TestWireMessageRoundTrip(t *testing.T) {
	win := make([]byte, MinWindowSize)

	msg := &svc.Message{
		Command:    svc.CmdDataEncryption,
		Payload:    &svc.Buffer{B: make([]byte, 128), Off: 256},
		PayloadLen: 100,
		Output:     &svc.Buffer{B: make([]byte, 64), Off: 384},
		OutputCap:  64,
		Args:       [3]uint64{1, 2, 0xdeadbeefcafe},
	}
	writeMessage(win, msg, 7)

	got := readMessage(win)
	require.Equal(t, uint32(7), got.seq)
	require.Equal(t, svc.CmdDataEncryption, got.command)
	require.Equal(t, uint32(256), got.payloadOff)
	require.Equal(t, uint32(100), got.payloadLen)
	require.Equal(t, uint32(384), got.outputOff)
	require.Equal(t, uint32(64), got.outputCap)
	require.Equal(t, [3]uint64{1, 2, 0xdeadbeefcafe}, got.args)
}

func TestWireCompletionRoundTrip(t *testing.T) {
	win := make([]byte, MinWindowSize)

	want := wireCompletion{
		seq:     3,
		status:  svc.StatusCompleted,
		mboxErr: 0x42,
		bufOff:  256,
		bufLen:  64,
		size:    48,
		flags:   complFlagSizeValid | complFlagHasBuf,
		w2:      0xaaaa,
		w3:      0xbbbb,
	}
	writeCompletion(win, want)
	require.Equal(t, want, readCompletion(win))
}

func TestHeader(t *testing.T) {
	win := make([]byte, MinWindowSize)

	require.Error(t, checkHeader(win), "zeroed window must not validate")

	writeHeader(win, MinWindowSize)
	require.NoError(t, checkHeader(win))
}

func TestOpenRejectsBadWindow(t *testing.T) {
	_, err := Open(Config{
		Path:       filepath.Join(t.TempDir(), "window"),
		WindowSize: 128,
	})
	require.Error(t, err, "window below the layout minimum must be rejected")

	// A fresh window without Init has no valid header.
	_, err = Open(Config{
		Path: filepath.Join(t.TempDir(), "window"),
	})
	require.Error(t, err)
}

// fakeService polls the message slot of an open channel and answers like the
// remote side would.
func fakeService(t *testing.T, c *Channel, quit chan struct{}) {
	t.Helper()

	var seen, complSeq uint32
	for {
		select {
		case <-quit:
			return
		case <-time.After(50 * time.Microsecond):
		}

		m := readMessage(c.win)
		if m.seq == seen {
			continue
		}
		seen = m.seq
		complSeq++

		switch m.command {
		case svc.CmdRandomNumberGen:
			for i := uint32(0); i < m.payloadLen; i++ {
				c.win[m.payloadOff+i] = byte(i ^ 0x5a)
			}
			writeCompletion(c.win, wireCompletion{
				seq:    complSeq,
				status: svc.StatusOK,
				bufOff: m.payloadOff,
				bufLen: m.payloadLen,
				size:   m.payloadLen,
				flags:  complFlagSizeValid | complFlagHasBuf,
			})
		case svc.CmdGetChipID:
			writeCompletion(c.win, wireCompletion{
				seq:    complSeq,
				status: svc.StatusOK,
				w2:     0x12345678,
				w3:     0x9abcdef0,
			})
		case svc.CmdPsgSigmaTeardown:
			writeCompletion(c.win, wireCompletion{
				seq:    complSeq,
				status: svc.StatusOK,
			})
		default:
			writeCompletion(c.win, wireCompletion{
				seq:    complSeq,
				status: svc.StatusNoSupport,
			})
		}
	}
}

func TestChannelEndToEnd(t *testing.T) {
	ch, err := Open(Config{
		Path:       filepath.Join(t.TempDir(), "window"),
		WindowSize: MinWindowSize,
		Init:       true,
	})
	require.NoError(t, err)

	quit := make(chan struct{})
	go fakeService(t, ch, quit)
	defer close(quit)

	client := fcs.Open(ch, &fcs.Options{
		RequestTimeout:   time.Second,
		CompletedTimeout: time.Second,
	})
	defer client.Close()

	rnd, err := client.RandomNumber()
	require.NoError(t, err)
	require.Len(t, rnd, constants.RandomNumberSize)
	for i, b := range rnd {
		require.Equal(t, byte(i^0x5a), b, "byte %d", i)
	}

	id, err := client.ChipID()
	require.NoError(t, err)
	require.Equal(t, uint64(0x9abcdef012345678), id)

	require.NoError(t, client.SigmaTeardown(constants.SigmaSessionIDOne))
}
