package transport

import (
	"io"

	"github.com/nczempin/httpc-engine/errors"
)

// Transport defines the interface for blocking network I/O operations.
// Implementations include TCP and Unix domain sockets over the standard
// library, io_uring backed sockets, and TLS.
//
// Close may be called concurrently with a blocked Read or Write and must
// make it return.
type Transport interface {
	// Connect establishes a connection to the specified host and port.
	// For Unix sockets, the host parameter is the socket path and port is ignored.
	Connect(host string, port uint16) error

	// Write sends data to the connected peer.
	// Returns the number of bytes written or an error.
	Write(buf []byte) (int, error)

	// Read receives data from the connected peer.
	// Returns the number of bytes read or an error. The end of the stream is
	// reported as a TransportErrorConnectionClosed error.
	Read(buf []byte) (int, error)

	// Close closes the connection. It is idempotent.
	Close() error
}

// writeAll writes buf in full, looping over short writes.
func writeAll(t Transport, buf []byte) error {
	for len(buf) > 0 {
		n, err := t.Write(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.NewTransportError(errors.TransportErrorSocketWriteFailure, "write made no progress", io.ErrShortWrite)
		}
		buf = buf[n:]
	}
	return nil
}
