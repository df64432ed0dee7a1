package fcs

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ehrlich-b/go-fcs/internal/gateway"
)

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want []string
	}{
		{
			name: "code only",
			err:  &Error{Code: ErrCodeTimeout},
			want: []string{"fcs:", "timeout"},
		},
		{
			name: "command context",
			err:  &Error{Op: "DATA_ENCRYPTION", Code: ErrCodeInvalidArgument, Msg: "source size below minimum"},
			want: []string{"source size below minimum", "op=DATA_ENCRYPTION"},
		},
		{
			name: "phase context",
			err:  &Error{Op: "REQUEST_SERVICE", Phase: 2, Code: ErrCodeTimeout, Msg: "no completion from service"},
			want: []string{"op=REQUEST_SERVICE", "phase=2"},
		},
		{
			name: "remote error carries mailbox word",
			err:  &Error{Op: "SEND_CERTIFICATE", Phase: 1, Code: ErrCodeRemote, Mbox: 0x2a, Msg: "service reported mailbox error 0x2a"},
			want: []string{"mbox=0x2a"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("Error() = %q, missing %q", got, want)
				}
			}
		})
	}
}

func TestErrorIsMatchesByCode(t *testing.T) {
	a := gateway.NewError("DATA_ENCRYPTION", gateway.CodeTimeout, "no completion from service")
	b := gateway.NewError("GET_CHIP_ID", gateway.CodeTimeout, "different message")

	if !errors.Is(a, b) {
		t.Error("errors with the same code should match")
	}

	c := gateway.NewError("DATA_ENCRYPTION", gateway.CodeRemote, "")
	if errors.Is(a, c) {
		t.Error("errors with different codes should not match")
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("transport refused the descriptor")
	wrapped := gateway.WrapError("RANDOM_NUMBER_GEN", 1, gateway.CodeSubmitFailed, inner)

	if !errors.Is(wrapped, inner) {
		t.Error("wrapped error should match the inner error")
	}
	if !IsCode(wrapped, ErrCodeSubmitFailed) {
		t.Error("wrapped error should keep its code")
	}
}

func TestWrapErrorNil(t *testing.T) {
	if err := gateway.WrapError("RANDOM_NUMBER_GEN", 1, gateway.CodeSubmitFailed, nil); err != nil {
		t.Errorf("wrapping nil should return nil, got %v", err)
	}
}

func TestWrapErrorKeepsExistingCode(t *testing.T) {
	inner := gateway.NewError("POLL_SERVICE_STATUS", gateway.CodeOutOfMemory, "window exhausted")
	wrapped := gateway.WrapError("DATA_DECRYPTION", 2, gateway.CodeSubmitFailed, inner)

	if !IsCode(wrapped, ErrCodeOutOfMemory) {
		t.Errorf("wrapping should preserve the original code, got %v", wrapped)
	}
	if wrapped.Op != "DATA_DECRYPTION" {
		t.Errorf("wrapping should update the command context, got %q", wrapped.Op)
	}
}

func TestIsCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", gateway.NewError("GET_CHIP_ID", gateway.CodeRemote, ""))

	if !IsCode(err, ErrCodeRemote) {
		t.Error("IsCode should see through fmt.Errorf wrapping")
	}
	if IsCode(err, ErrCodeTimeout) {
		t.Error("IsCode should not match a different code")
	}
	if IsCode(errors.New("plain"), ErrCodeRemote) {
		t.Error("IsCode should not match a plain error")
	}
}

func TestIsTimeout(t *testing.T) {
	if !IsTimeout(gateway.NewError("DATA_ENCRYPTION", gateway.CodeTimeout, "")) {
		t.Error("timeout error not recognized")
	}
	if IsTimeout(gateway.NewError("DATA_ENCRYPTION", gateway.CodeRemote, "")) {
		t.Error("remote error misclassified as timeout")
	}
}

func TestMboxError(t *testing.T) {
	remote := &Error{Op: "SEND_CERTIFICATE", Code: ErrCodeRemote, Mbox: 0x83}

	mbox, ok := MboxError(fmt.Errorf("wrapped: %w", remote))
	if !ok || mbox != 0x83 {
		t.Errorf("MboxError = (%#x, %v), want (0x83, true)", mbox, ok)
	}

	if _, ok := MboxError(gateway.NewError("SEND_CERTIFICATE", gateway.CodeTimeout, "")); ok {
		t.Error("MboxError should reject non-remote errors")
	}
}
