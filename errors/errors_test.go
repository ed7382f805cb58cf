package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestHttpError_Is_MatchesCode(t *testing.T) {
	err := NewProtocolError(ProtocolErrorMissingContentLength, "status 200")

	if !stderrors.Is(err, ErrMissingContentLength) {
		t.Error("Expected error to match ErrMissingContentLength")
	}
	if stderrors.Is(err, ErrNoResponseHeader) {
		t.Error("Expected error not to match ErrNoResponseHeader")
	}
	if stderrors.Is(err, ErrConnectionClosed) {
		t.Error("Expected protocol error not to match a transport sentinel")
	}
}

func TestHttpError_Is_ThroughWrapping(t *testing.T) {
	err := fmt.Errorf("session failed: %w", NewTransportError(TransportErrorConnectionClosed, "peer hung up", io.EOF))

	if !stderrors.Is(err, ErrConnectionClosed) {
		t.Error("Expected wrapped error to match ErrConnectionClosed")
	}
	if !stderrors.Is(err, io.EOF) {
		t.Error("Expected underlying io.EOF to remain reachable")
	}
	if !IsConnectionClosed(err) {
		t.Error("Expected IsConnectionClosed to see through wrapping")
	}
}

func TestHttpError_Is_InvalidArgument(t *testing.T) {
	started := NewInvalidArgumentError("session already started")

	if !stderrors.Is(started, ErrInvalidArgument) {
		t.Error("Expected any invalid argument to match ErrInvalidArgument")
	}
	if stderrors.Is(started, NewInvalidArgumentError("pool is closed")) {
		t.Error("Expected different invalid argument messages not to match")
	}
}

func TestHttpError_Error_Format(t *testing.T) {
	err := NewTransportError(TransportErrorSocketConnectFailure, "failed to connect to 127.0.0.1:1", io.ErrUnexpectedEOF)
	msg := err.Error()

	if !strings.HasPrefix(msg, "Transport error (socket connection failed)") {
		t.Errorf("Unexpected prefix: %q", msg)
	}
	if !strings.Contains(msg, "caused by: unexpected EOF") {
		t.Errorf("Expected underlying cause in %q", msg)
	}

	var nilErr *HttpError
	if nilErr.Error() != "no error" {
		t.Errorf("Expected %q, got %q", "no error", nilErr.Error())
	}
}
