package pool

import (
	"bytes"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/nczempin/httpc-engine/protocol"
	"github.com/nczempin/httpc-engine/transport"
)

type fakeRead struct {
	data string
	eof  bool
	err  error
}

// fakeStream is a scripted transport.Stream. It is only touched on the
// pool worker, so tests inspect it through Pool.worker.Sync.
type fakeStream struct {
	endpoint protocol.Endpoint
	post     func(func())

	openErr  error
	holdOpen bool
	script   []fakeRead

	pendingOpen func(error)
	pendingRecv func([]byte, bool, error)
	sent        bytes.Buffer
	sends       []int
	receives    int
	cancelled   bool
}

func (f *fakeStream) Open(done func(error)) {
	if f.holdOpen {
		f.pendingOpen = done
		return
	}
	err := f.openErr
	f.post(func() { done(err) })
}

func (f *fakeStream) Send(p []byte, done func(error)) {
	f.sent.Write(p)
	f.sends = append(f.sends, len(p))
	f.post(func() { done(nil) })
}

func (f *fakeStream) Receive(max int, done func([]byte, bool, error)) {
	f.receives++
	if len(f.script) == 0 {
		f.pendingRecv = done
		return
	}
	r := f.script[0]
	f.script = f.script[1:]
	f.post(func() { done([]byte(r.data), r.eof, r.err) })
}

func (f *fakeStream) Cancel(done func()) {
	f.cancelled = true
	f.post(done)
}

// fakeDialer hands out fakeStreams configured by setup, in dial order.
type fakeDialer struct {
	setup   func(n int, f *fakeStream)
	streams []*fakeStream
}

func (d *fakeDialer) dial(ep protocol.Endpoint, post func(func())) transport.Stream {
	f := &fakeStream{endpoint: ep, post: post}
	if d.setup != nil {
		d.setup(len(d.streams), f)
	}
	d.streams = append(d.streams, f)
	return f
}

func newTestPool(t *testing.T, setup func(n int, f *fakeStream)) (*Pool, *fakeDialer) {
	t.Helper()
	d := &fakeDialer{setup: setup}
	cfg := DefaultConfig()
	cfg.Logger = zaptest.NewLogger(t)
	cfg.Dial = d.dial
	p := New(cfg)
	t.Cleanup(p.Close)
	return p, d
}

// onWorker runs fn on the pool worker and waits for it.
func onWorker(p *Pool, fn func()) {
	p.worker.Sync(fn)
}

// waitFor polls cond on the worker until it holds or a second passes.
func waitFor(t *testing.T, p *Pool, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		var ok bool
		onWorker(p, func() { ok = cond() })
		if ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("Timeout waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (d *fakeDialer) stream(i int) *fakeStream {
	if i >= len(d.streams) {
		return nil
	}
	return d.streams[i]
}

type result struct {
	resp *protocol.HttpResponse
	err  error
}

func collector() (Handler, chan result) {
	ch := make(chan result, 8)
	return func(resp *protocol.HttpResponse, err error) { ch <- result{resp, err} }, ch
}

func await(t *testing.T, ch chan result) result {
	t.Helper()
	select {
	case r := <-ch:
		if (r.resp == nil) == (r.err == nil) {
			t.Fatalf("Expected exactly one of response and error, got %v and %v", r.resp, r.err)
		}
		return r
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for session handler")
	}
	return result{}
}

func getRequest(t *testing.T, host, path string) *protocol.HttpRequest {
	t.Helper()
	ep, err := protocol.NewEndpoint(protocol.SchemeHTTP, host, 80)
	if err != nil {
		t.Fatalf("NewEndpoint failed: %v", err)
	}
	return &protocol.HttpRequest{Endpoint: ep, Method: protocol.MethodGet, Path: path}
}

func startSession(t *testing.T, p *Pool, req *protocol.HttpRequest, h Handler) *Session {
	t.Helper()
	s, err := NewSession(p, req)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	if err := s.Start(h); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return s
}
