package transport

import (
	stderrors "errors"
	"io"
	"testing"

	"github.com/nczempin/httpc-engine/errors"
)

// stalledTransport accepts writes without consuming any bytes.
type stalledTransport struct {
	Transport
	calls int
}

func (s *stalledTransport) Write(buf []byte) (int, error) {
	s.calls++
	return 0, nil
}

// chunkedTransport writes at most two bytes per call.
type chunkedTransport struct {
	Transport
	written []byte
}

func (c *chunkedTransport) Write(buf []byte) (int, error) {
	n := min(len(buf), 2)
	c.written = append(c.written, buf[:n]...)
	return n, nil
}

func TestWriteAll_NoProgress(t *testing.T) {
	st := &stalledTransport{}

	err := writeAll(st, []byte("stuck"))
	expectTransportError(t, err, errors.TransportErrorSocketWriteFailure)
	if !stderrors.Is(err, io.ErrShortWrite) {
		t.Errorf("Expected io.ErrShortWrite in the chain, got %v", err)
	}
	if st.calls != 1 {
		t.Errorf("Expected 1 write call, got %d", st.calls)
	}
}

func TestWriteAll_ShortWrites(t *testing.T) {
	ct := &chunkedTransport{}

	if err := writeAll(ct, []byte("hello")); err != nil {
		t.Fatalf("writeAll failed: %v", err)
	}
	if string(ct.written) != "hello" {
		t.Errorf("Expected %q, got %q", "hello", ct.written)
	}
}
