// Package fcs is a client library for the FPGA crypto service. It bridges
// synchronous callers onto the service's asynchronous shared-memory channel:
// each operation submits a mailbox command, blocks for the completion record
// and returns a decoded result, with a second poll round trip for commands
// whose hardware execution outlives the first acknowledgment.
//
// A Client is safe for concurrent use. The underlying channel carries one
// message at a time, so concurrent operations serialize; callers observe
// ordinary blocking semantics.
package fcs

import (
	"encoding/binary"
	"time"

	"github.com/ehrlich-b/go-fcs/internal/constants"
	"github.com/ehrlich-b/go-fcs/internal/gateway"
	"github.com/ehrlich-b/go-fcs/internal/logging"
	"github.com/ehrlich-b/go-fcs/svc"
)

// InvalidPollStatus is the poll-status word reported when the service
// produced no status payload for a failed two-phase command.
const InvalidPollStatus = gateway.InvalidStatus

// Options configures a Client. The zero value selects defaults.
type Options struct {
	// RequestTimeout bounds the wait for the request-accepted
	// acknowledgment. Default 2s; attestation commands stretch it 10x.
	RequestTimeout time.Duration

	// CompletedTimeout bounds the wait for the poll phase of two-phase
	// commands. Default 30s.
	CompletedTimeout time.Duration

	// Observer receives per-operation measurements. Defaults to the
	// client's built-in metrics.
	Observer Observer

	// Logger overrides the default logger.
	Logger *logging.Logger
}

// Client issues crypto service operations over one service channel.
type Client struct {
	ch       svc.Channel
	gw       *gateway.Gateway
	metrics  *Metrics
	observer Observer
}

// Open wraps ch in a Client. The Client owns the channel until Close.
func Open(ch svc.Channel, opts *Options) *Client {
	if opts == nil {
		opts = &Options{}
	}
	c := &Client{
		ch:      ch,
		metrics: NewMetrics(),
	}
	c.gw = gateway.New(ch, gateway.Options{
		RequestTimeout:   opts.RequestTimeout,
		CompletedTimeout: opts.CompletedTimeout,
		Logger:           opts.Logger,
	})
	c.observer = opts.Observer
	if c.observer == nil {
		c.observer = NewMetricsObserver(c.metrics)
	}
	return c
}

// Close releases the channel. Operations must not be issued after Close.
func (c *Client) Close() error {
	c.metrics.Stop()
	return c.ch.Close()
}

// Metrics returns the client's live metrics.
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// MetricsSnapshot returns a point-in-time snapshot of the client's metrics.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

func (c *Client) observe(err error) {
	if err != nil && gateway.IsCode(err, gateway.CodeTimeout) {
		c.observer.ObserveTimeout()
	}
}

// RandomNumber asks the service for 32 bytes of hardware-generated
// randomness.
func (c *Client) RandomNumber() ([]byte, error) {
	start := time.Now()
	resp, err := c.gw.Exec(gateway.Request{Command: svc.CmdRandomNumberGen})
	c.observe(err)
	c.observer.ObserveQuery(uint64(len(resp.Data)), uint64(time.Since(start).Nanoseconds()), err == nil)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// GetProvisionData reads up to size bytes of device provisioning data.
func (c *Client) GetProvisionData(size int) ([]byte, error) {
	start := time.Now()
	resp, err := c.gw.Exec(gateway.Request{
		Command:   svc.CmdGetProvisionData,
		OutputCap: size,
	})
	c.observe(err)
	c.observer.ObserveQuery(uint64(len(resp.Data)), uint64(time.Since(start).Nanoseconds()), err == nil)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// RomPatchSha384 reads the 48-byte SHA-384 digest of the device ROM patch.
func (c *Client) RomPatchSha384() ([]byte, error) {
	start := time.Now()
	resp, err := c.gw.Exec(gateway.Request{Command: svc.CmdGetRomPatchSha384})
	c.observe(err)
	c.observer.ObserveQuery(uint64(len(resp.Data)), uint64(time.Since(start).Nanoseconds()), err == nil)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// ChipID reads the 64-bit chip identity. The service replies with two 32-bit
// halves; the low half occupies the low word of the result.
func (c *Client) ChipID() (uint64, error) {
	start := time.Now()
	resp, err := c.gw.Exec(gateway.Request{Command: svc.CmdGetChipID})
	c.observe(err)
	c.observer.ObserveQuery(8, uint64(time.Since(start).Nanoseconds()), err == nil)
	if err != nil {
		return 0, err
	}
	return uint64(resp.W3)<<32 | uint64(resp.W2), nil
}

// Encrypt runs src through the service's data encryption. dstCap declares the
// caller's result capacity and must lie within the encrypted-size bounds.
func (c *Client) Encrypt(src []byte, dstCap int) ([]byte, error) {
	start := time.Now()
	resp, err := c.gw.Exec(gateway.Request{
		Command:   svc.CmdDataEncryption,
		Payload:   src,
		OutputCap: dstCap,
	})
	c.observe(err)
	c.observer.ObserveCrypto(uint64(len(resp.Data)), uint64(time.Since(start).Nanoseconds()), err == nil)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Decrypt runs src through the service's data decryption. dstCap declares the
// caller's result capacity and must lie within the decrypted-size bounds.
func (c *Client) Decrypt(src []byte, dstCap int) ([]byte, error) {
	start := time.Now()
	resp, err := c.gw.Exec(gateway.Request{
		Command:   svc.CmdDataDecryption,
		Payload:   src,
		OutputCap: dstCap,
	})
	c.observe(err)
	c.observer.ObserveCrypto(uint64(len(resp.Data)), uint64(time.Since(start).Nanoseconds()), err == nil)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// AuthenticateImage submits a firmware image for signature verification. The
// service reports the verdict through the poll phase; a nil error means the
// image was accepted.
func (c *Client) AuthenticateImage(image []byte) error {
	start := time.Now()
	_, err := c.gw.Exec(gateway.Request{
		Command: svc.CmdRequestService,
		Payload: image,
	})
	c.observe(err)
	c.observer.ObserveControl(uint64(time.Since(start).Nanoseconds()), err == nil)
	return err
}

// SendCertificate submits a counter-set certificate prefixed by its 4-byte
// test word. On failure the returned status is the raw poll-status word the
// service reported, InvalidPollStatus when it produced none.
func (c *Client) SendCertificate(testWord uint32, cert []byte) (uint32, error) {
	var prefix [constants.CertTestWordSize]byte
	binary.LittleEndian.PutUint32(prefix[:], testWord)

	start := time.Now()
	resp, err := c.gw.Exec(gateway.Request{
		Command: svc.CmdSendCertificate,
		Prefix:  prefix[:],
		Payload: cert,
	})
	c.observe(err)
	c.observer.ObserveControl(uint64(time.Since(start).Nanoseconds()), err == nil)
	return resp.PollStatus, err
}

// CounterSetPreauthorized updates a preauthorized security counter without a
// certificate.
func (c *Client) CounterSetPreauthorized(counterType, value, testWord uint32) error {
	start := time.Now()
	_, err := c.gw.Exec(gateway.Request{
		Command: svc.CmdCounterSetPreauthorized,
		Args:    [3]uint64{uint64(counterType), uint64(value), uint64(testWord)},
	})
	c.observe(err)
	c.observer.ObserveControl(uint64(time.Since(start).Nanoseconds()), err == nil)
	return err
}

// SigmaTeardown tears down a SigMA session. Only the initial session and the
// unknown-session sentinel are valid identifiers.
func (c *Client) SigmaTeardown(sid uint32) error {
	if sid != constants.SigmaSessionIDOne && sid != constants.SigmaUnknownSession {
		return gateway.NewError("PSGSIGMA_TEARDOWN", gateway.CodeInvalidArgument, "invalid session ID")
	}
	start := time.Now()
	_, err := c.gw.Exec(gateway.Request{
		Command: svc.CmdPsgSigmaTeardown,
		Args:    [3]uint64{uint64(sid)},
	})
	c.observe(err)
	c.observer.ObserveControl(uint64(time.Since(start).Nanoseconds()), err == nil)
	return err
}

// AttestationSubkey requests an attestation subkey. cmd is the opaque subkey
// command, preceded on the wire by the 4-byte reserved word; rspCap declares
// the caller's response capacity.
func (c *Client) AttestationSubkey(resvWord uint32, cmd []byte, rspCap int) ([]byte, error) {
	return c.attestation(svc.CmdAttestationSubkey, resvWord, cmd, rspCap)
}

// AttestationMeasurements requests attestation measurements. Layout and
// capacity rules match AttestationSubkey.
func (c *Client) AttestationMeasurements(resvWord uint32, cmd []byte, rspCap int) ([]byte, error) {
	return c.attestation(svc.CmdAttestationMeasurements, resvWord, cmd, rspCap)
}

func (c *Client) attestation(command svc.Command, resvWord uint32, cmd []byte, rspCap int) ([]byte, error) {
	var prefix [constants.AttestationResvWordSize]byte
	binary.LittleEndian.PutUint32(prefix[:], resvWord)

	start := time.Now()
	resp, err := c.gw.Exec(gateway.Request{
		Command:   command,
		Prefix:    prefix[:],
		Payload:   cmd,
		OutputCap: rspCap,
	})
	c.observe(err)
	c.observer.ObserveAttestation(uint64(len(resp.Data)), uint64(time.Since(start).Nanoseconds()), err == nil)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// AttestationCertificate fetches the attestation certificate selected by the
// low four bits of request.
func (c *Client) AttestationCertificate(request uint32) ([]byte, error) {
	start := time.Now()
	resp, err := c.gw.Exec(gateway.Request{
		Command: svc.CmdAttestationCertificate,
		Args:    [3]uint64{uint64(request & 0xf)},
	})
	c.observe(err)
	c.observer.ObserveAttestation(uint64(len(resp.Data)), uint64(time.Since(start).Nanoseconds()), err == nil)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// CertificateReload asks the service to regenerate the attestation
// certificate selected by the low four bits of request.
func (c *Client) CertificateReload(request uint32) error {
	start := time.Now()
	_, err := c.gw.Exec(gateway.Request{
		Command: svc.CmdAttestationCertificateReload,
		Args:    [3]uint64{uint64(request & 0xf)},
	})
	c.observe(err)
	c.observer.ObserveAttestation(0, uint64(time.Since(start).Nanoseconds()), err == nil)
	return err
}
