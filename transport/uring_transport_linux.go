//go:build linux

package transport

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"syscall"

	"github.com/iceber/iouring-go"
	"golang.org/x/sys/unix"

	"github.com/nczempin/httpc-engine/errors"
)

// UringTransport implements Transport using io_uring for async I/O.
// It speaks TCP or, when created with NewUringUnixTransport, Unix domain sockets.
type UringTransport struct {
	network string

	mu       sync.Mutex
	iour     *iouring.IOURing
	fd       int
	closed   bool
	inflight int
}

// NewUringTransport creates a new TCP transport with io_uring
func NewUringTransport(entries uint) (*UringTransport, error) {
	return newUringTransport("tcp", entries)
}

// NewUringUnixTransport creates a new Unix domain socket transport with io_uring
func NewUringUnixTransport(entries uint) (*UringTransport, error) {
	return newUringTransport("unix", entries)
}

func newUringTransport(network string, entries uint) (*UringTransport, error) {
	if entries == 0 {
		entries = 32
	}
	iour, err := iouring.New(entries)
	if err != nil {
		return nil, errors.NewTransportError(
			errors.TransportErrorIoUringInit,
			"failed to initialize io_uring",
			err,
		)
	}

	return &UringTransport{
		network: network,
		iour:    iour,
		fd:      -1,
	}, nil
}

// Connect establishes a connection using io_uring.
// For Unix sockets, host is the socket path and port is ignored.
func (t *UringTransport) Connect(host string, port uint16) error {
	t.mu.Lock()
	if t.fd >= 0 || t.closed {
		t.mu.Unlock()
		return errors.NewTransportError(
			errors.TransportErrorSocketConnectFailure,
			"already connected",
			nil,
		)
	}
	t.mu.Unlock()

	family, sa, err := resolveSockaddr(t.network, host, port)
	if err != nil {
		return err
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return errors.NewTransportError(
			errors.TransportErrorSocketCreateFailure,
			"failed to create socket",
			err,
		)
	}

	// Set socket to non-blocking mode for io_uring
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return errors.NewTransportError(
			errors.TransportErrorSocketCreateFailure,
			"failed to set non-blocking mode",
			err,
		)
	}

	if t.network == "tcp" {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
			unix.Close(fd)
			return errors.NewTransportError(
				errors.TransportErrorSocketCreateFailure,
				"failed to set TCP_NODELAY",
				err,
			)
		}
	}

	prep, err := iouring.Connect(fd, sa)
	if err != nil {
		unix.Close(fd)
		return errors.NewTransportError(
			errors.TransportErrorSocketConnectFailure,
			fmt.Sprintf("invalid address %s", describeAddr(t.network, host, port)),
			err,
		)
	}

	// Submit connect operation via io_uring
	iour, err := t.acquire()
	if err != nil {
		unix.Close(fd)
		return err
	}
	result, err := submit(iour, prep)
	t.release()
	if err == nil {
		if err = result.Err(); err != nil {
			err = errors.NewTransportError(
				errors.TransportErrorSocketConnectFailure,
				fmt.Sprintf("failed to connect to %s", describeAddr(t.network, host, port)),
				err,
			)
		}
	}
	if err != nil {
		unix.Close(fd)
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		unix.Close(fd)
		return errors.NewTransportError(errors.TransportErrorConnectionClosed, "closed during connect", nil)
	}
	t.fd = fd
	return nil
}

// acquire pins the ring for one operation. The ring stays open while any
// operation is in flight, even across Close.
func (t *UringTransport) acquire() (*iouring.IOURing, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.iour == nil {
		return nil, errors.NewTransportError(errors.TransportErrorConnectionClosed, "connection closed", nil)
	}
	t.inflight++
	return t.iour, nil
}

// acquireFd pins the ring and returns the connected socket.
func (t *UringTransport) acquireFd(code errors.TransportError) (*iouring.IOURing, int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.iour == nil {
		return nil, -1, errors.NewTransportError(errors.TransportErrorConnectionClosed, "connection closed", nil)
	}
	if t.fd < 0 {
		return nil, -1, errors.NewTransportError(code, "not connected", nil)
	}
	t.inflight++
	return t.iour, t.fd, nil
}

func (t *UringTransport) release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight--
	if t.closed && t.inflight == 0 && t.iour != nil {
		t.iour.Close()
		t.iour = nil
	}
}

// submit hands one request to the ring and waits for its result.
func submit(iour *iouring.IOURing, prepReq iouring.PrepRequest) (iouring.Result, error) {
	ch := make(chan iouring.Result, 1)
	if _, err := iour.SubmitRequest(prepReq, ch); err != nil {
		return nil, errors.NewTransportError(
			errors.TransportErrorIoUringSubmit,
			"failed to submit request",
			err,
		)
	}

	return <-ch, nil
}

// Write sends data over the connection using io_uring
func (t *UringTransport) Write(buf []byte) (int, error) {
	iour, fd, err := t.acquireFd(errors.TransportErrorSocketWriteFailure)
	if err != nil {
		return 0, err
	}
	defer t.release()

	totalWritten := 0
	for totalWritten < len(buf) {
		result, err := submit(iour, iouring.Write(fd, buf[totalWritten:]))
		if err != nil {
			return totalWritten, err
		}

		n, err := result.ReturnInt()
		if err != nil {
			return totalWritten, errors.NewTransportError(
				errors.TransportErrorSocketWriteFailure,
				"write failed",
				err,
			)
		}

		if n <= 0 {
			return totalWritten, errors.NewTransportError(
				errors.TransportErrorConnectionClosed,
				"connection closed during write",
				nil,
			)
		}

		totalWritten += n
	}

	return totalWritten, nil
}

// Read receives data from the connection using io_uring
func (t *UringTransport) Read(buf []byte) (int, error) {
	iour, fd, err := t.acquireFd(errors.TransportErrorSocketReadFailure)
	if err != nil {
		return 0, err
	}
	defer t.release()

	result, err := submit(iour, iouring.Read(fd, buf))
	if err != nil {
		return 0, err
	}

	n, err := result.ReturnInt()
	if err != nil {
		return 0, errors.NewTransportError(
			errors.TransportErrorSocketReadFailure,
			"read failed",
			err,
		)
	}

	if n == 0 && len(buf) > 0 {
		return 0, errors.NewTransportError(
			errors.TransportErrorConnectionClosed,
			"connection closed by peer",
			nil,
		)
	}

	return n, nil
}

// Close shuts the socket down, which completes any pending receive, and
// releases the ring once no request is in flight.
func (t *UringTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	var err error
	if t.fd >= 0 {
		unix.Shutdown(t.fd, unix.SHUT_RDWR)
		if cerr := unix.Close(t.fd); cerr != nil {
			err = errors.NewTransportError(
				errors.TransportErrorConnectionClosed,
				"failed to close socket",
				cerr,
			)
		}
		t.fd = -1
	}

	if t.inflight == 0 && t.iour != nil {
		t.iour.Close()
		t.iour = nil
	}

	return err
}

// resolveSockaddr returns the socket family and a syscall.Sockaddr for iouring.Connect.
func resolveSockaddr(network, host string, port uint16) (int, syscall.Sockaddr, error) {
	if network == "unix" {
		return unix.AF_UNIX, &syscall.SockaddrUnix{Name: host}, nil
	}

	// Resolve the address
	addr := net.JoinHostPort(host, strconv.Itoa(int(port)))
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return 0, nil, errors.NewTransportError(
			errors.TransportErrorDnsFailure,
			fmt.Sprintf("failed to resolve %s", addr),
			err,
		)
	}

	// Convert to syscall.Sockaddr
	if ip4 := tcpAddr.IP.To4(); ip4 != nil {
		sa4 := &syscall.SockaddrInet4{Port: tcpAddr.Port}
		copy(sa4.Addr[:], ip4)
		return unix.AF_INET, sa4, nil
	}
	sa6 := &syscall.SockaddrInet6{Port: tcpAddr.Port}
	copy(sa6.Addr[:], tcpAddr.IP)
	return unix.AF_INET6, sa6, nil
}

func describeAddr(network, host string, port uint16) string {
	if network == "unix" {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(int(port)))
}

func toUnixSockaddr(sa syscall.Sockaddr) unix.Sockaddr {
	switch sa := sa.(type) {
	case *syscall.SockaddrInet4:
		return &unix.SockaddrInet4{Port: sa.Port, Addr: sa.Addr}
	case *syscall.SockaddrInet6:
		return &unix.SockaddrInet6{Port: sa.Port, Addr: sa.Addr}
	case *syscall.SockaddrUnix:
		return &unix.SockaddrUnix{Name: sa.Name}
	}
	return nil
}
