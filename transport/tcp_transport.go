package transport

import (
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"syscall"

	"github.com/nczempin/httpc-engine/errors"
)

// netTransport carries a net.Conn shared by the standard library transports.
// The mutex only guards the conn pointer so that Close can race a blocked Read.
type netTransport struct {
	mu   sync.Mutex
	conn net.Conn
}

func (t *netTransport) current() net.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

func (t *netTransport) set(conn net.Conn) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return errors.NewTransportError(
			errors.TransportErrorSocketConnectFailure,
			"already connected",
			nil,
		)
	}
	t.conn = conn
	return nil
}

// Write sends data over the connection
func (t *netTransport) Write(buf []byte) (int, error) {
	conn := t.current()
	if conn == nil {
		return 0, errors.NewTransportError(errors.TransportErrorSocketWriteFailure, "not connected", nil)
	}

	n, err := conn.Write(buf)
	if err != nil {
		// Check for broken pipe or connection reset
		if stderrors.Is(err, syscall.EPIPE) || stderrors.Is(err, syscall.ECONNRESET) || stderrors.Is(err, net.ErrClosed) {
			return n, errors.NewTransportError(errors.TransportErrorConnectionClosed, "connection closed during write", err)
		}
		return n, errors.NewTransportError(errors.TransportErrorSocketWriteFailure, "write failed", err)
	}

	return n, nil
}

// Read receives data from the connection
func (t *netTransport) Read(buf []byte) (int, error) {
	conn := t.current()
	if conn == nil {
		return 0, errors.NewTransportError(errors.TransportErrorSocketReadFailure, "not connected", nil)
	}

	n, err := conn.Read(buf)
	if err != nil {
		if stderrors.Is(err, io.EOF) || stderrors.Is(err, net.ErrClosed) || stderrors.Is(err, syscall.ECONNRESET) {
			return n, errors.NewTransportError(errors.TransportErrorConnectionClosed, "connection closed by peer", err)
		}
		return n, errors.NewTransportError(errors.TransportErrorSocketReadFailure, "read failed", err)
	}

	return n, nil
}

// Close closes the connection
func (t *netTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn == nil {
		return nil // Idempotent close
	}

	if err := conn.Close(); err != nil {
		return errors.NewTransportError(errors.TransportErrorConnectionClosed, "failed to close socket", err)
	}

	return nil
}

// TcpTransport implements the Transport interface using TCP sockets
type TcpTransport struct {
	netTransport
}

// NewTcpTransport creates a new TcpTransport instance
func NewTcpTransport() *TcpTransport {
	return &TcpTransport{}
}

// Connect establishes a TCP connection to the specified host and port
func (t *TcpTransport) Connect(host string, port uint16) error {
	conn, err := dialTCP(host, port)
	if err != nil {
		return err
	}
	if err := t.set(conn); err != nil {
		conn.Close()
		return err
	}
	return nil
}

// dialTCP dials host:port with TCP_NODELAY set, classifying failures the
// way the rest of the package reports them.
func dialTCP(host string, port uint16) (net.Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(int(port)))

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		// Classify network errors using type assertions
		var dnsErr *net.DNSError
		if stderrors.As(err, &dnsErr) {
			return nil, errors.NewTransportError(
				errors.TransportErrorDnsFailure,
				fmt.Sprintf("failed to resolve %s", host),
				err,
			)
		}
		return nil, errors.NewTransportError(
			errors.TransportErrorSocketConnectFailure,
			fmt.Sprintf("failed to connect to %s", addr),
			err,
		)
	}

	// Set TCP_NODELAY to disable Nagle's algorithm for lower latency
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			conn.Close()
			return nil, errors.NewTransportError(
				errors.TransportErrorSocketCreateFailure,
				"failed to set TCP_NODELAY",
				err,
			)
		}
	}

	return conn, nil
}

// UnixTransport implements the Transport interface using Unix domain sockets
type UnixTransport struct {
	netTransport
}

// NewUnixTransport creates a new UnixTransport instance
func NewUnixTransport() *UnixTransport {
	return &UnixTransport{}
}

// Connect establishes a Unix domain socket connection to the specified path.
// The port parameter is ignored for Unix sockets.
func (t *UnixTransport) Connect(path string, port uint16) error {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return errors.NewTransportError(
			errors.TransportErrorSocketConnectFailure,
			fmt.Sprintf("failed to connect to unix socket %s", path),
			err,
		)
	}
	if err := t.set(conn); err != nil {
		conn.Close()
		return err
	}
	return nil
}
