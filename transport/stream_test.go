package transport

import (
	stderrors "errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/nczempin/httpc-engine/dispatch"
	"github.com/nczempin/httpc-engine/errors"
)

// fakeTransport serves reads from a channel and records writes.
type fakeTransport struct {
	connectErr error
	reads      chan []byte

	mu      sync.Mutex
	written []byte
	closed  bool
	closedc chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{reads: make(chan []byte, 4), closedc: make(chan struct{})}
}

func (f *fakeTransport) Connect(host string, port uint16) error { return f.connectErr }

func (f *fakeTransport) Write(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, buf...)
	return len(buf), nil
}

func (f *fakeTransport) Read(buf []byte) (int, error) {
	select {
	case data, ok := <-f.reads:
		if !ok {
			return 0, errors.NewTransportError(errors.TransportErrorConnectionClosed, "eof", nil)
		}
		return copy(buf, data), nil
	case <-f.closedc:
		return 0, errors.NewTransportError(errors.TransportErrorConnectionClosed, "closed", nil)
	}
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.closedc)
	}
	return nil
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func newTestStream(t *testing.T, ft *fakeTransport) (Stream, *dispatch.Queue) {
	t.Helper()
	q := dispatch.NewQueue("stream-test")
	t.Cleanup(q.Stop)
	s := NewStream(func() (Transport, error) { return ft, nil }, "example.com", 80, q.Async)
	return s, q
}

func openStream(t *testing.T, s Stream) {
	t.Helper()
	errc := make(chan error, 1)
	s.Open(func(err error) { errc <- err })
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for Open")
	}
}

func TestStream_SendReceive(t *testing.T) {
	ft := newFakeTransport()
	s, _ := newTestStream(t, ft)
	openStream(t, s)

	sent := make(chan error, 1)
	s.Send([]byte("GET / HTTP/1.1\r\n\r\n"), func(err error) { sent <- err })
	if err := <-sent; err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	ft.mu.Lock()
	if string(ft.written) != "GET / HTTP/1.1\r\n\r\n" {
		t.Errorf("Unexpected bytes written: %q", ft.written)
	}
	ft.mu.Unlock()

	ft.reads <- []byte("hello")
	type result struct {
		data []byte
		eof  bool
		err  error
	}
	got := make(chan result, 1)
	s.Receive(1024, func(data []byte, eof bool, err error) { got <- result{data, eof, err} })
	r := <-got
	if r.err != nil || r.eof || string(r.data) != "hello" {
		t.Errorf("Expected data %q without eof, got %q eof=%v err=%v", "hello", r.data, r.eof, r.err)
	}

	close(ft.reads)
	s.Receive(1024, func(data []byte, eof bool, err error) { got <- result{data, eof, err} })
	r = <-got
	if r.err != nil || !r.eof || len(r.data) != 0 {
		t.Errorf("Expected a clean eof, got %q eof=%v err=%v", r.data, r.eof, r.err)
	}
}

func TestStream_ReceiveRespectsMax(t *testing.T) {
	ft := newFakeTransport()
	s, _ := newTestStream(t, ft)
	openStream(t, s)

	ft.reads <- []byte("0123456789")
	got := make(chan []byte, 1)
	s.Receive(4, func(data []byte, eof bool, err error) { got <- data })
	if data := <-got; string(data) != "0123" {
		t.Errorf("Expected %q, got %q", "0123", data)
	}
}

func TestStream_OpenFailure(t *testing.T) {
	ft := newFakeTransport()
	ft.connectErr = errors.NewTransportError(errors.TransportErrorSocketConnectFailure, "refused", nil)
	s, _ := newTestStream(t, ft)

	errc := make(chan error, 1)
	s.Open(func(err error) { errc <- err })
	err := <-errc
	if !stderrors.Is(err, ft.connectErr) {
		t.Errorf("Expected connect failure, got %v", err)
	}
	if !ft.isClosed() {
		t.Error("Expected transport to be closed after a failed connect")
	}
}

func TestStream_CancelDropsPendingReceive(t *testing.T) {
	ft := newFakeTransport()
	s, q := newTestStream(t, ft)
	openStream(t, s)

	delivered := make(chan struct{}, 1)
	s.Receive(1024, func(data []byte, eof bool, err error) { delivered <- struct{}{} })

	acked := make(chan struct{})
	s.Cancel(func() { close(acked) })

	select {
	case <-acked:
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for cancel acknowledgement")
	}
	if !ft.isClosed() {
		t.Error("Expected Cancel to close the transport")
	}

	// Anything the read goroutine posted has run by the time Sync returns.
	time.Sleep(20 * time.Millisecond)
	q.Sync(func() {})
	select {
	case <-delivered:
		t.Error("Expected the receive completion to be dropped after Cancel")
	default:
	}
}

func TestStream_SendBeforeOpen(t *testing.T) {
	s, _ := newTestStream(t, newFakeTransport())

	errc := make(chan error, 1)
	s.Send([]byte("x"), func(err error) { errc <- err })
	expectTransportError(t, <-errc, errors.TransportErrorSocketWriteFailure)
}

func TestStream_OverTcp(t *testing.T) {
	host, port, cleanup := setupTcpTestServer(t, func(conn net.Conn) {
		buf := make([]byte, 64)
		n, _ := conn.Read(buf)
		conn.Write(buf[:n])
	})
	defer cleanup()

	q := dispatch.NewQueue("stream-tcp")
	defer q.Stop()
	s := NewStream(func() (Transport, error) { return NewTcpTransport(), nil }, host, port, q.Async)
	openStream(t, s)

	sent := make(chan error, 1)
	s.Send([]byte("echo"), func(err error) { sent <- err })
	if err := <-sent; err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	got := make(chan string, 1)
	s.Receive(64, func(data []byte, eof bool, err error) { got <- string(data) })
	if data := <-got; data != "echo" {
		t.Errorf("Expected %q, got %q", "echo", data)
	}

	acked := make(chan struct{})
	s.Cancel(func() { close(acked) })
	<-acked
}
