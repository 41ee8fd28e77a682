package usp

import (
	"errors"
	"testing"
)

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("dial failed")
	err := Wrap(ErrorCodeConnectionFailure, "connect", cause)

	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is(err, cause) = false, want true")
	}
	if err.Code != ErrorCodeConnectionFailure {
		t.Fatalf("Code = %v, want ErrorCodeConnectionFailure", err.Code)
	}
}

func TestErrorCodeString(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{ErrorCodeSuccess, "SUCCESS"},
		{ErrorCodeWrongState, "WRONG_STATE"},
		{ErrorCodeAuthError, "AUTH_ERROR"},
		{ErrorCodeTransportGeneric, "TRANSPORT_ERROR_GENERIC"},
		{ErrorCode(999), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.code.String(); got != tt.want {
			t.Errorf("ErrorCode(%d).String() = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestTransportErrorCodeMapping(t *testing.T) {
	tests := []struct {
		in       TransportErrorCode
		wantCode ErrorCode
	}{
		{TransportErrorAuthentication, ErrorCodeAuthError},
		{TransportErrorConnectionFailure, ErrorCodeConnectionFailure},
		{TransportErrorDNSFailure, ErrorCodeConnectionFailure},
		{TransportErrorRemoteClosed, ErrorCodeConnectionRemoteClosed},
		{TransportErrorNone, ErrorCodeTransportGeneric},
	}
	for _, tt := range tests {
		code, msg := tt.in.toErrorCode()
		if code != tt.wantCode {
			t.Errorf("TransportErrorCode(%d).toErrorCode() code = %v, want %v", tt.in, code, tt.wantCode)
		}
		if tt.in == TransportErrorNone && msg != "Unknown transport error." {
			t.Errorf("TransportErrorNone message = %q, want %q", msg, "Unknown transport error.")
		}
	}
}
