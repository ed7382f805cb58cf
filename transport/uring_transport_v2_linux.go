//go:build linux

package transport

import (
	"fmt"
	"sync"

	"github.com/godzie44/go-uring/uring"
	"golang.org/x/sys/unix"

	"github.com/nczempin/httpc-engine/errors"
)

// UringTransportV2 implements Transport on godzie44/go-uring. Each ring is
// driven synchronously: one SQE is queued, submitted and reaped per call.
// Reads and writes use separate rings so a pending read never holds up a
// write.
type UringTransportV2 struct {
	network string

	mu       sync.Mutex
	rx, tx   *ringLane
	fd       int
	closed   bool
	inflight int
}

// ringLane is a ring with a single submitter at a time.
type ringLane struct {
	mu   sync.Mutex
	ring *uring.Ring
}

// NewUringTransportV2 creates a new TCP transport with io_uring (v2 using godzie44/go-uring)
func NewUringTransportV2(entries uint32) (*UringTransportV2, error) {
	return newUringTransportV2("tcp", entries)
}

// NewUringUnixTransportV2 creates a Unix domain socket transport on go-uring.
func NewUringUnixTransportV2(entries uint32) (*UringTransportV2, error) {
	return newUringTransportV2("unix", entries)
}

func newUringTransportV2(network string, entries uint32) (*UringTransportV2, error) {
	if entries == 0 {
		entries = 32
	}
	rx, err := uring.New(entries)
	if err != nil {
		return nil, errors.NewTransportError(
			errors.TransportErrorIoUringInit,
			"failed to initialize io_uring",
			err,
		)
	}
	tx, err := uring.New(entries)
	if err != nil {
		rx.Close()
		return nil, errors.NewTransportError(
			errors.TransportErrorIoUringInit,
			"failed to initialize io_uring",
			err,
		)
	}

	return &UringTransportV2{
		network: network,
		rx:      &ringLane{ring: rx},
		tx:      &ringLane{ring: tx},
		fd:      -1,
	}, nil
}

// Connect establishes the connection with a blocking connect(2); only
// reads and writes go through the ring.
func (t *UringTransportV2) Connect(host string, port uint16) error {
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

	if err := unix.Connect(fd, toUnixSockaddr(sa)); err != nil {
		unix.Close(fd)
		return errors.NewTransportError(
			errors.TransportErrorSocketConnectFailure,
			fmt.Sprintf("failed to connect to %s", describeAddr(t.network, host, port)),
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

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		unix.Close(fd)
		return errors.NewTransportError(errors.TransportErrorConnectionClosed, "closed during connect", nil)
	}
	t.fd = fd
	return nil
}

func (t *UringTransportV2) acquireFd(code errors.TransportError) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.rx == nil {
		return -1, errors.NewTransportError(errors.TransportErrorConnectionClosed, "connection closed", nil)
	}
	if t.fd < 0 {
		return -1, errors.NewTransportError(code, "not connected", nil)
	}
	t.inflight++
	return t.fd, nil
}

func (t *UringTransportV2) release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight--
	if t.closed && t.inflight == 0 {
		t.closeRings()
	}
}

// closeRings must be called with mu held.
func (t *UringTransportV2) closeRings() {
	if t.rx != nil {
		t.rx.ring.Close()
		t.tx.ring.Close()
		t.rx, t.tx = nil, nil
	}
}

// complete queues op, submits it and waits for its completion, returning cqe.Res.
func (l *ringLane) complete(op uring.Operation, code errors.TransportError) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ring := l.ring

	if err := ring.QueueSQE(op, 0, 0); err != nil {
		return 0, errors.NewTransportError(
			errors.TransportErrorIoUringSubmit,
			"failed to queue request",
			err,
		)
	}

	if _, err := ring.Submit(); err != nil {
		return 0, errors.NewTransportError(
			errors.TransportErrorIoUringSubmit,
			"failed to submit request",
			err,
		)
	}

	cqe, err := ring.WaitCQEvents(1)
	if err != nil {
		return 0, errors.NewTransportError(code, "failed to wait for completion", err)
	}

	if err := cqe.Error(); err != nil {
		ring.SeenCQE(cqe)
		return 0, errors.NewTransportError(code, "operation failed", err)
	}

	n := int(cqe.Res)
	ring.SeenCQE(cqe)
	return n, nil
}

// Write sends data over the connection using io_uring
func (t *UringTransportV2) Write(buf []byte) (int, error) {
	fd, err := t.acquireFd(errors.TransportErrorSocketWriteFailure)
	if err != nil {
		return 0, err
	}
	defer t.release()
	lane := t.tx

	totalWritten := 0
	for totalWritten < len(buf) {
		n, err := lane.complete(uring.Write(uintptr(fd), buf[totalWritten:], 0), errors.TransportErrorSocketWriteFailure)
		if err != nil {
			return totalWritten, err
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
func (t *UringTransportV2) Read(buf []byte) (int, error) {
	fd, err := t.acquireFd(errors.TransportErrorSocketReadFailure)
	if err != nil {
		return 0, err
	}
	defer t.release()

	n, err := t.rx.complete(uring.Read(uintptr(fd), buf, 0), errors.TransportErrorSocketReadFailure)
	if err != nil {
		return 0, err
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

// Close shuts the socket down and releases the ring once the pending
// operation, if any, has been reaped.
func (t *UringTransportV2) Close() error {
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

	if t.inflight == 0 {
		t.closeRings()
	}

	return err
}
