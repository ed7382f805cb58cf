package transport

import (
	"sync"
	"sync/atomic"

	"github.com/nczempin/httpc-engine/errors"
)

// Stream is a completion-style byte stream. Every method returns at once and
// reports its outcome through done, which the implementation must deliver
// on the caller's worker context. At most one Send and one Receive are
// outstanding at a time.
//
// Wrapping a Stream is the way to add timeouts: cancel it when a deadline
// passes and the pending completions are dropped.
type Stream interface {
	Open(done func(err error))
	Send(p []byte, done func(err error))
	// Receive reads at most max bytes. eof reports that the peer ended the
	// stream; data may be non-empty on the same completion.
	Receive(max int, done func(data []byte, eof bool, err error))
	// Cancel stops the stream. Completions of operations still in flight
	// are never delivered; done runs on the worker once the stream is down.
	Cancel(done func())
}

var readBuffers = sync.Pool{
	New: func() any {
		b := make([]byte, 64*1024)
		return &b
	},
}

// blockingStream adapts a blocking Transport to Stream by running each
// call on its own goroutine and posting the result back.
type blockingStream struct {
	dial func() (Transport, error)
	host string
	port uint16
	post func(func())

	cancelled atomic.Bool
	mu        sync.Mutex
	t         Transport
}

// NewStream returns a Stream that dials with dial on Open and connects to
// host:port. post must run its argument on the worker context.
func NewStream(dial func() (Transport, error), host string, port uint16, post func(func())) Stream {
	return &blockingStream{dial: dial, host: host, port: port, post: post}
}

func (s *blockingStream) deliver(fn func()) {
	s.post(func() {
		if s.cancelled.Load() {
			return
		}
		fn()
	})
}

func (s *blockingStream) transport() Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t
}

func (s *blockingStream) Open(done func(err error)) {
	go func() {
		t, err := s.dial()
		if err == nil {
			err = t.Connect(s.host, s.port)
			if err != nil {
				t.Close()
			}
		}
		if err != nil {
			s.deliver(func() { done(err) })
			return
		}

		s.mu.Lock()
		if s.cancelled.Load() {
			s.mu.Unlock()
			t.Close()
			return
		}
		s.t = t
		s.mu.Unlock()
		s.deliver(func() { done(nil) })
	}()
}

func (s *blockingStream) Send(p []byte, done func(err error)) {
	t := s.transport()
	if t == nil {
		s.deliver(func() {
			done(errors.NewTransportError(errors.TransportErrorSocketWriteFailure, "stream not open", nil))
		})
		return
	}
	go func() {
		err := writeAll(t, p)
		s.deliver(func() { done(err) })
	}()
}

func (s *blockingStream) Receive(max int, done func(data []byte, eof bool, err error)) {
	t := s.transport()
	if t == nil {
		s.deliver(func() {
			done(nil, false, errors.NewTransportError(errors.TransportErrorSocketReadFailure, "stream not open", nil))
		})
		return
	}
	go func() {
		bp := readBuffers.Get().(*[]byte)
		buf := *bp
		if max > 0 && max < len(buf) {
			buf = buf[:max]
		}

		n, err := t.Read(buf)
		var data []byte
		if n > 0 {
			data = append([]byte(nil), buf[:n]...)
		}
		readBuffers.Put(bp)

		eof := false
		if errors.IsConnectionClosed(err) {
			eof, err = true, nil
		}
		s.deliver(func() { done(data, eof, err) })
	}()
}

func (s *blockingStream) Cancel(done func()) {
	s.mu.Lock()
	s.cancelled.Store(true)
	t := s.t
	s.t = nil
	s.mu.Unlock()

	go func() {
		if t != nil {
			t.Close()
		}
		s.post(done)
	}()
}
