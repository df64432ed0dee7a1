package gateway

import (
	"testing"
	"time"

	"github.com/ehrlich-b/go-fcs/internal/constants"
	"github.com/ehrlich-b/go-fcs/svc"
)

func TestLookup(t *testing.T) {
	s, ok := lookup(svc.CmdRandomNumberGen)
	if !ok {
		t.Fatal("known command not found")
	}
	if s.name != "RANDOM_NUMBER_GEN" || s.readback != constants.RandomNumberSize {
		t.Errorf("unexpected entry %+v", s)
	}

	if _, ok := lookup(svc.Command(0xdead)); ok {
		t.Error("unknown command should not resolve")
	}
}

func TestRequestTimeoutScale(t *testing.T) {
	base := 2 * time.Second

	plain, _ := lookup(svc.CmdRandomNumberGen)
	if got := plain.requestTimeout(base); got != base {
		t.Errorf("unscaled timeout = %v, want %v", got, base)
	}

	attest, _ := lookup(svc.CmdAttestationSubkey)
	if got := attest.requestTimeout(base); got != 10*base {
		t.Errorf("attestation timeout = %v, want %v", got, 10*base)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		cmd        svc.Command
		payloadLen int
		prefixLen  int
		outputCap  int
		wantErr    bool
	}{
		{"encryption in range", svc.CmdDataEncryption, constants.DecMinSize, 0, constants.EncMinSize, false},
		{"encryption src too small", svc.CmdDataEncryption, constants.DecMinSize - 1, 0, constants.EncMinSize, true},
		{"encryption src too large", svc.CmdDataEncryption, constants.DecMaxSize + 1, 0, constants.EncMinSize, true},
		{"encryption dst too small", svc.CmdDataEncryption, constants.DecMinSize, 0, constants.EncMinSize - 1, true},
		{"encryption dst too large", svc.CmdDataEncryption, constants.DecMinSize, 0, constants.EncMaxSize + 1, true},
		{"certificate needs test word", svc.CmdSendCertificate, 16, 0, 0, true},
		{"certificate with test word", svc.CmdSendCertificate, 16, constants.CertTestWordSize, 0, false},
		{"certificate empty payload", svc.CmdSendCertificate, 0, constants.CertTestWordSize, 0, true},
		{"subkey needs reserved word", svc.CmdAttestationSubkey, 16, 0, 64, true},
		{"subkey command too large", svc.CmdAttestationSubkey, constants.SubkeyCmdMaxSize + 1, constants.AttestationResvWordSize, 64, true},
		{"subkey response too large", svc.CmdAttestationSubkey, 16, constants.AttestationResvWordSize, constants.SubkeyRspMaxSize + 1, true},
		{"provision data needs capacity", svc.CmdGetProvisionData, 0, 0, 0, true},
		{"provision data with capacity", svc.CmdGetProvisionData, 0, 0, 256, false},
		{"image needs payload", svc.CmdRequestService, 0, 0, 0, true},
		{"teardown takes nothing", svc.CmdPsgSigmaTeardown, 0, 0, 0, false},
		{"stray prefix rejected", svc.CmdRandomNumberGen, 0, 4, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ok := lookup(tt.cmd)
			if !ok {
				t.Fatalf("command %v not in table", tt.cmd)
			}
			err := s.validate(tt.payloadLen, tt.prefixLen, tt.outputCap)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !IsCode(err, CodeInvalidArgument) {
				t.Errorf("validation failures must classify as invalid argument, got %v", err)
			}
		})
	}
}

func TestTableDecoderPairing(t *testing.T) {
	// Two-phase commands acknowledge through the plain decoder; the data
	// decoder belongs to the poll phase.
	for _, cmd := range []svc.Command{
		svc.CmdRequestService,
		svc.CmdSendCertificate,
		svc.CmdDataEncryption,
		svc.CmdDataDecryption,
	} {
		s, _ := lookup(cmd)
		if !s.poll {
			t.Errorf("%v must run the poll phase", cmd)
		}
		if s.kind != plainDecode {
			t.Errorf("%v acceptance must use the plain decoder", cmd)
		}
	}

	for _, cmd := range []svc.Command{
		svc.CmdAttestationSubkey,
		svc.CmdAttestationMeasurements,
		svc.CmdAttestationCertificate,
	} {
		s, _ := lookup(cmd)
		if s.kind != attestDecode || s.scale != constants.AttestationTimeoutScale {
			t.Errorf("%v must pair the attestation decoder with the stretched timeout", cmd)
		}
		if s.ceiling == 0 {
			t.Errorf("%v must carry a response ceiling", cmd)
		}
	}
}
