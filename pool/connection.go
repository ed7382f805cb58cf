package pool

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/net/http/httpguts"

	"github.com/nczempin/httpc-engine/errors"
	"github.com/nczempin/httpc-engine/protocol"
	"github.com/nczempin/httpc-engine/transport"
)

type connState int

const (
	connCreated connState = iota
	connConnecting
	connActive
	connClosing
	connClosed
)

func (s connState) String() string {
	switch s {
	case connCreated:
		return "created"
	case connConnecting:
		return "connecting"
	case connActive:
		return "active"
	case connClosing:
		return "closing"
	case connClosed:
		return "closed"
	}
	return fmt.Sprintf("connState(%d)", int(s))
}

// Connection carries one exchange at a time over a transport stream. All
// methods run on the pool's worker context.
type Connection struct {
	id       uint64
	endpoint protocol.Endpoint
	stream   transport.Stream
	log      *zap.Logger

	state   connState
	buf     recvBuffer
	eof     bool
	session *Session
	// spent is set once the peer announced it will close after the last
	// response; such a connection is never attached again.
	spent bool

	// receiving guards the receive loop: true while a cycle runs or a read
	// is outstanding.
	receiving bool
	// sending is true until the attached session's request is fully written.
	sending bool
	readChunk int

	onError func(*Connection, error)
}

func newConnection(id uint64, ep protocol.Endpoint, stream transport.Stream, log *zap.Logger, readChunk int) *Connection {
	return &Connection{
		id:        id,
		endpoint:  ep,
		stream:    stream,
		log:       log.With(zap.Uint64("conn", id), zap.Stringer("endpoint", ep)),
		readChunk: readChunk,
	}
}

func (c *Connection) setState(next connState) {
	if next <= c.state || (next == connClosed && c.state != connClosing) {
		panic(fmt.Sprintf("pool: connection %d cannot move from %s to %s", c.id, c.state, next))
	}
	c.state = next
}

// idle reports whether the connection can take a session right now.
func (c *Connection) idle() bool {
	return c.state == connActive && c.session == nil && !c.spent
}

// open starts connecting. done receives the transport error, if any; a
// failed connection stays Connecting and must be closed by the caller.
func (c *Connection) open(done func(error)) {
	c.setState(connConnecting)
	c.log.Debug("opening connection")
	c.stream.Open(func(err error) {
		if c.state != connConnecting {
			return
		}
		if err != nil {
			done(err)
			return
		}
		c.setState(connActive)
		done(nil)
	})
}

// attach binds s to the connection and starts sending its request.
func (c *Connection) attach(s *Session) {
	if c.state != connActive || c.session != nil || c.spent {
		panic(fmt.Sprintf("pool: attach to connection %d in state %s", c.id, c.state))
	}
	c.session = s
	c.sending = true
	s.onAttachConnection(c)
	c.log.Debug("session attached")

	c.stream.Send(s.onRequestHeaderSend(), func(err error) {
		if c.session != s {
			return
		}
		if err != nil {
			c.fail(err)
			return
		}
		c.sendBody(s)
	})
}

func (c *Connection) sendBody(s *Session) {
	chunk, err := s.onRequestBodySend()
	if err != nil {
		c.fail(err)
		return
	}
	if chunk == nil {
		c.sending = false
		c.receive()
		return
	}
	c.stream.Send(chunk, func(err error) {
		if c.session != s {
			return
		}
		if err != nil {
			c.fail(err)
			return
		}
		c.sendBody(s)
	})
}

// receive runs the receive loop unless a cycle is already in progress.
func (c *Connection) receive() {
	if c.receiving {
		return
	}
	c.receiving = true
	c.cycle()
}

func (c *Connection) cycle() {
	for {
		if c.state != connActive {
			c.receiving = false
			return
		}

		s := c.session
		if s == nil {
			c.idleCycle()
			return
		}
		if c.sending {
			// bytes read so far stay buffered until the request is out
			c.receiving = false
			return
		}

		switch s.state {
		case SessionRequestHeaderSent:
			resp, n, err := protocol.ParseResponseHeader(c.buf.Bytes(), c.eof)
			if err != nil {
				c.receiving = false
				c.fail(err)
				return
			}
			if resp != nil {
				c.buf.Consume(n)
				if err := s.onResponseHeader(resp); err != nil {
					c.receiving = false
					c.fail(err)
					return
				}
				continue
			}

		case SessionResponseBodyReceiving:
			if want := s.response.ContentLength; c.buf.Len() >= want {
				s.onResponseBody(c.buf.Next(want))
				c.detach()
				continue
			}

		default:
			panic(fmt.Sprintf("pool: receive loop on connection %d with session in state %s", c.id, s.state))
		}

		if c.eof {
			c.receiving = false
			c.fail(errors.NewTransportError(
				errors.TransportErrorConnectionClosed,
				"stream ended before the response was complete",
				nil,
			))
			return
		}

		c.stream.Receive(c.readChunk, c.onReceive)
		return
	}
}

// idleCycle handles the loop while no session is attached. An idle
// connection keeps one read outstanding so that a peer close is noticed
// before the connection is handed to the next session.
func (c *Connection) idleCycle() {
	switch {
	case c.buf.Len() > 0:
		c.receiving = false
		c.fail(errors.NewProtocolError(
			errors.ProtocolErrorViolation,
			fmt.Sprintf("%d unsolicited bytes", c.buf.Len()),
		))
	case c.eof:
		c.receiving = false
		c.spent = true
		c.fail(errors.NewTransportError(errors.TransportErrorConnectionClosed, "idle connection closed by peer", nil))
	case c.spent:
		c.receiving = false
	default:
		c.stream.Receive(c.readChunk, c.onReceive)
	}
}

func (c *Connection) onReceive(data []byte, eof bool, err error) {
	if c.state != connActive {
		return
	}
	if err != nil {
		c.receiving = false
		c.fail(err)
		return
	}
	c.buf.Write(data)
	if eof {
		c.eof = true
	}
	c.cycle()
}

func (c *Connection) detach() {
	s := c.session
	c.session = nil
	if c.eof || closeRequested(s.response) {
		c.spent = true
	}
	c.log.Debug("session detached", zap.Int("status", s.response.StatusCode), zap.Bool("spent", c.spent))
	s.onDetachConnection()
}

func closeRequested(resp *protocol.HttpResponse) bool {
	v, ok := resp.Headers.Lookup("Connection")
	return ok && httpguts.HeaderValuesContainsToken([]string{v}, "close")
}

func (c *Connection) fail(err error) {
	if c.onError != nil {
		c.onError(c, err)
	}
}

// close cancels the stream and calls done once the cancellation is
// acknowledged. It reports false, without calling done, when the connection
// was already closing.
func (c *Connection) close(done func()) bool {
	if c.state >= connClosing {
		return false
	}
	c.setState(connClosing)
	c.session = nil
	c.onError = nil
	c.log.Debug("closing connection")
	c.stream.Cancel(func() {
		c.setState(connClosed)
		c.log.Debug("connection closed")
		done()
	})
	return true
}
