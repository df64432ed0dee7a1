package gateway

import (
	"testing"

	"github.com/ehrlich-b/go-fcs/svc"
)

func TestDecodePlain(t *testing.T) {
	tests := []struct {
		name     string
		c        svc.Completion
		wantErr  bool
		wantCode Code
	}{
		{"ok", svc.Completion{Status: svc.StatusOK}, false, ""},
		{"busy maps to timeout", svc.Completion{Status: svc.StatusBusy}, true, CodeTimeout},
		{"invalid param", svc.Completion{Status: svc.StatusInvalidParam}, true, CodeInvalidArgument},
		{"error", svc.Completion{Status: svc.StatusError, MboxErr: 0x7}, true, CodeRemote},
		{"unrecognized status", svc.Completion{Status: svc.StatusNoSupport}, true, CodeInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := DecodePlain("TEST_OP", 1, tt.c)
			if (r.Err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", r.Err, tt.wantErr)
			}
			if tt.wantErr && !IsCode(r.Err, tt.wantCode) {
				t.Errorf("code = %v, want %v", r.Err, tt.wantCode)
			}
		})
	}
}

func TestDecodePlainCarriesMboxWord(t *testing.T) {
	r := DecodePlain("TEST_OP", 2, svc.Completion{Status: svc.StatusError, MboxErr: 0x42})
	mbox, ok := MboxError(r.Err)
	if !ok || mbox != 0x42 {
		t.Errorf("MboxError = (%#x, %v), want (0x42, true)", mbox, ok)
	}
}

func TestDecodeData(t *testing.T) {
	buf := &svc.Buffer{B: make([]byte, 64)}

	t.Run("ok captures payload", func(t *testing.T) {
		r := DecodeData("TEST_OP", 1, svc.Completion{Status: svc.StatusOK, Buf: buf, Size: 32})
		if r.Err != nil {
			t.Fatalf("unexpected error %v", r.Err)
		}
		if r.Data != buf || r.Size != 32 {
			t.Errorf("result = (%v, %d)", r.Data, r.Size)
		}
	})

	t.Run("completed captures payload", func(t *testing.T) {
		r := DecodeData("TEST_OP", 2, svc.Completion{Status: svc.StatusCompleted, Buf: buf, Size: 16})
		if r.Err != nil || r.Size != 16 {
			t.Errorf("result = (%v, %d)", r.Err, r.Size)
		}
	})

	t.Run("error keeps partial payload when size is valid", func(t *testing.T) {
		r := DecodeData("TEST_OP", 2, svc.Completion{
			Status: svc.StatusError, MboxErr: 0x3, Buf: buf, Size: 8, SizeValid: true,
		})
		if !IsCode(r.Err, CodeRemote) {
			t.Fatalf("want remote error, got %v", r.Err)
		}
		if r.Data != buf || r.Size != 8 {
			t.Errorf("partial payload = (%v, %d)", r.Data, r.Size)
		}
	})

	t.Run("error without size reports zero", func(t *testing.T) {
		r := DecodeData("TEST_OP", 2, svc.Completion{Status: svc.StatusError, Buf: buf, Size: 8})
		if r.Size != 0 {
			t.Errorf("size = %d, want 0 when the service omitted it", r.Size)
		}
	})

	t.Run("unrecognized status drops payload", func(t *testing.T) {
		r := DecodeData("TEST_OP", 1, svc.Completion{Status: svc.StatusBusy, Buf: buf})
		if !IsCode(r.Err, CodeInvalidArgument) {
			t.Fatalf("want invalid argument, got %v", r.Err)
		}
		if r.Data != nil {
			t.Error("payload must not survive an unrecognized status")
		}
	})
}

func TestDecodeChipID(t *testing.T) {
	t.Run("ok captures identity halves", func(t *testing.T) {
		r := DecodeChipID("GET_CHIP_ID", 1, svc.Completion{Status: svc.StatusOK, W2: 0xaabb, W3: 0xccdd})
		if r.Err != nil || r.W2 != 0xaabb || r.W3 != 0xccdd {
			t.Errorf("result = (%v, %#x, %#x)", r.Err, r.W2, r.W3)
		}
	})

	t.Run("error", func(t *testing.T) {
		r := DecodeChipID("GET_CHIP_ID", 1, svc.Completion{Status: svc.StatusError, MboxErr: 0x1})
		if !IsCode(r.Err, CodeRemote) {
			t.Errorf("want remote error, got %v", r.Err)
		}
	})

	t.Run("raw status surfaces unmodified", func(t *testing.T) {
		r := DecodeChipID("GET_CHIP_ID", 1, svc.Completion{Status: svc.StatusNoSupport})
		if !IsCode(r.Err, CodeRemote) {
			t.Errorf("want raw status as remote error, got %v", r.Err)
		}
	})
}

func TestDecodeAttestation(t *testing.T) {
	buf := &svc.Buffer{B: make([]byte, 820)}

	t.Run("ok captures payload", func(t *testing.T) {
		r := DecodeAttestation("ATTESTATION_SUBKEY", 1, svc.Completion{Status: svc.StatusOK, Buf: buf, Size: 100})
		if r.Err != nil || r.Data != buf || r.Size != 100 {
			t.Errorf("result = (%v, %v, %d)", r.Err, r.Data, r.Size)
		}
	})

	t.Run("completed is not accepted", func(t *testing.T) {
		r := DecodeAttestation("ATTESTATION_SUBKEY", 1, svc.Completion{Status: svc.StatusCompleted, Buf: buf})
		if r.Err == nil {
			t.Error("attestation accepts OK only")
		}
	})

	t.Run("error", func(t *testing.T) {
		r := DecodeAttestation("ATTESTATION_SUBKEY", 1, svc.Completion{Status: svc.StatusError, MboxErr: 0x8})
		mbox, ok := MboxError(r.Err)
		if !ok || mbox != 0x8 {
			t.Errorf("MboxError = (%#x, %v)", mbox, ok)
		}
	})
}
