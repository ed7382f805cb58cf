package pool

import (
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/nczempin/httpc-engine/errors"
	"github.com/nczempin/httpc-engine/protocol"
)

// SessionState is the lifecycle state of a Session.
type SessionState int

const (
	SessionCreated SessionState = iota
	SessionConnecting
	SessionConnected
	SessionRequestHeaderSent
	SessionResponseHeaderReceived
	SessionResponseBodyReceiving
	SessionCompleted
	SessionFailed
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionCreated:
		return "created"
	case SessionConnecting:
		return "connecting"
	case SessionConnected:
		return "connected"
	case SessionRequestHeaderSent:
		return "request-header-sent"
	case SessionResponseHeaderReceived:
		return "response-header-received"
	case SessionResponseBodyReceiving:
		return "response-body-receiving"
	case SessionCompleted:
		return "completed"
	case SessionFailed:
		return "failed"
	case SessionClosed:
		return "closed"
	}
	return fmt.Sprintf("SessionState(%d)", int(s))
}

func (s SessionState) terminal() bool {
	return s == SessionCompleted || s == SessionFailed || s == SessionClosed
}

// Handler receives the outcome of a session: exactly one of resp and err is non-nil.
type Handler func(resp *protocol.HttpResponse, err error)

var (
	ErrSessionStarted = errors.NewInvalidArgumentError("session already started")
	ErrPoolClosed     = errors.NewInvalidArgumentError("pool is closed")
)

// Session is one request/response exchange. Create it with NewSession,
// run it with Start and release it with Close. The handler passed to Start
// is called exactly once, on the pool's completion context.
type Session struct {
	pool    *Pool
	request *protocol.HttpRequest
	header  []byte

	state    SessionState
	handler  Handler
	response *protocol.HttpResponse
	conn     *Connection
	closed   bool
	fired    bool
	bodySent int64
}

// NewSession validates req and copies it into a new session bound to p.
func NewSession(p *Pool, req *protocol.HttpRequest) (*Session, error) {
	if p == nil {
		return nil, errors.NewInvalidArgumentError("nil pool")
	}
	if req == nil {
		return nil, errors.NewInvalidArgumentError("nil request")
	}
	if !req.Endpoint.Valid() {
		return nil, errors.NewInvalidArgumentError(fmt.Sprintf("invalid endpoint %v", req.Endpoint))
	}
	if req.Method == "" || !httpguts.ValidHeaderFieldName(string(req.Method)) {
		return nil, errors.NewInvalidArgumentError(fmt.Sprintf("invalid method %q", req.Method))
	}
	if !validPath(req.Path) {
		return nil, errors.NewInvalidArgumentError(fmt.Sprintf("invalid request target %q", req.Path))
	}
	if req.Body != nil && req.ContentLength < 0 {
		return nil, errors.NewInvalidArgumentError("request body needs a non-negative content length")
	}

	r := req.Clone()
	header, err := protocol.WriteRequestHeader(r, p.cfg.UserAgent)
	if err != nil {
		return nil, err
	}

	return &Session{pool: p, request: r, header: header}, nil
}

func validPath(path string) bool {
	if path != "*" && !strings.HasPrefix(path, "/") {
		return false
	}
	for i := 0; i < len(path); i++ {
		if path[i] <= ' ' || path[i] == 0x7f {
			return false
		}
	}
	return true
}

// Request returns the session's copy of the request.
func (s *Session) Request() *protocol.HttpRequest { return s.request }

// Start queues the session on its pool. handler is called exactly once
// with the response or the failure.
func (s *Session) Start(handler Handler) error {
	if handler == nil {
		return errors.NewInvalidArgumentError("nil handler")
	}

	var err error
	ran := s.pool.worker.Sync(func() {
		switch {
		case s.state != SessionCreated || s.closed:
			err = ErrSessionStarted
		case s.pool.closed:
			err = ErrPoolClosed
		default:
			s.handler = handler
			s.state = SessionConnecting
			s.pool.addSession(s)
		}
	})
	if !ran {
		return ErrPoolClosed
	}
	return err
}

// Close releases the session. If it was started and has not finished, the
// handler receives a connection-closed error. Close is idempotent.
func (s *Session) Close() {
	s.pool.worker.Sync(s.close)
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	var st SessionState
	if !s.pool.worker.Sync(func() { st = s.state }) {
		// the worker is gone; wait for it to finish so the read is safe
		s.pool.worker.Stop()
		st = s.state
	}
	return st
}

func (s *Session) expect(want SessionState) {
	if s.state != want {
		panic(fmt.Sprintf("pool: session in state %s, expected %s", s.state, want))
	}
}

func (s *Session) dispatch(resp *protocol.HttpResponse, err error) {
	if s.fired {
		return
	}
	s.fired = true
	h := s.handler
	s.pool.completion.Async(func() { h(resp, err) })
}

func (s *Session) close() {
	if s.closed {
		return
	}
	s.closed = true
	s.pool.removeSession(s)

	switch {
	case s.state == SessionCreated:
		s.state = SessionClosed
	case s.state.terminal():
	default:
		conn := s.conn
		s.conn = nil
		s.state = SessionClosed
		closedErr := errors.NewTransportError(errors.TransportErrorConnectionClosed, "session closed", nil)
		s.dispatch(nil, closedErr)
		if conn != nil {
			s.pool.connectionError(conn, closedErr)
		}
	}
	s.pool.requestRebalance()
}

func (s *Session) onAttachConnection(c *Connection) {
	s.expect(SessionConnecting)
	s.conn = c
	s.state = SessionConnected
}

func (s *Session) onRequestHeaderSend() []byte {
	s.expect(SessionConnected)
	s.state = SessionRequestHeaderSent
	return s.header
}

// onRequestBodySend pulls the next body chunk; nil means the body is done.
func (s *Session) onRequestBodySend() ([]byte, error) {
	s.expect(SessionRequestHeaderSent)
	body := s.request.Body
	if body == nil {
		return nil, nil
	}

	remaining := s.request.ContentLength - s.bodySent
	if remaining == 0 {
		var extra [1]byte
		if n, _ := body.Read(extra[:]); n > 0 {
			return nil, errors.NewProtocolError(
				errors.ProtocolErrorInvalidRequestBody,
				fmt.Sprintf("body is longer than the declared %d bytes", s.request.ContentLength),
			)
		}
		return nil, nil
	}

	size := int64(s.pool.cfg.BodyChunkSize)
	if remaining < size {
		size = remaining
	}
	chunk := make([]byte, size)
	n, err := io.ReadFull(body, chunk)
	s.bodySent += int64(n)
	if err != nil {
		msg := fmt.Sprintf("body ended after %d of %d bytes", s.bodySent, s.request.ContentLength)
		if !stderrors.Is(err, io.EOF) && !stderrors.Is(err, io.ErrUnexpectedEOF) {
			msg = fmt.Sprintf("reading body: %v", err)
		}
		return nil, errors.NewProtocolError(errors.ProtocolErrorInvalidRequestBody, msg)
	}
	return chunk, nil
}

// onResponseHeader stores the header and moves on to the body. A response
// that must carry a body but has no usable Content-Length is an error.
func (s *Session) onResponseHeader(resp *protocol.HttpResponse) error {
	s.expect(SessionRequestHeaderSent)
	s.response = resp
	s.state = SessionResponseHeaderReceived

	if bodiless(s.request.Method, resp.StatusCode) {
		resp.ContentLength = 0
	} else {
		n, ok := resp.Headers.ContentLength()
		if !ok {
			return errors.NewProtocolError(
				errors.ProtocolErrorMissingContentLength,
				fmt.Sprintf("status %d response without a usable Content-Length", resp.StatusCode),
			)
		}
		resp.ContentLength = n
	}

	s.state = SessionResponseBodyReceiving
	return nil
}

// bodiless reports responses that never carry a body whatever their
// Content-Length says.
func bodiless(method protocol.HttpMethod, status int) bool {
	return method == protocol.MethodHead || status == 204 || status == 304
}

func (s *Session) onResponseBody(body []byte) {
	s.expect(SessionResponseBodyReceiving)
	s.response.Body = body
	s.state = SessionCompleted
}

func (s *Session) onDetachConnection() {
	s.expect(SessionCompleted)
	s.conn = nil
	s.dispatch(s.response, nil)
	s.close()
}

func (s *Session) onError(err error) {
	if s.state.terminal() {
		return
	}
	s.state = SessionFailed
	s.conn = nil
	s.dispatch(nil, err)
	s.close()
}
