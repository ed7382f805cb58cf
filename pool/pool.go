// Package pool runs HTTP/1.1 exchanges over pooled connections.
//
// A Pool owns every live Session and Connection. All of their state lives
// on the pool's worker context, a serial dispatch.Queue; exported methods
// hand off into it and return once the transition is visible. After every
// state-affecting event the pool runs a rebalance pass that attaches
// waiting sessions to idle connections, opens connections for endpoints
// nobody serves yet and closes connections nobody needs. Idle open
// connections stay pooled until the peer ends them or the pool closes.
package pool

import (
	"go.uber.org/zap"

	"github.com/nczempin/httpc-engine/dispatch"
	"github.com/nczempin/httpc-engine/errors"
	"github.com/nczempin/httpc-engine/protocol"
)

// Stats is a snapshot of the pool's bookkeeping.
type Stats struct {
	Sessions    int
	Connections int
}

type Pool struct {
	cfg  Config
	log  *zap.Logger
	dial StreamFactory

	worker          *dispatch.Queue
	completion      dispatch.Executor
	ownedCompletion *dispatch.Queue

	// Worker-owned state.
	sessions         []*Session
	connections      []*Connection
	nextConnID       uint64
	rebalancePending bool
	closed           bool
	drained          chan struct{}
	drainedSignalled bool
}

// New creates a pool and starts its worker.
func New(cfg Config) *Pool {
	cfg = cfg.withDefaults()
	p := &Pool{
		cfg:     cfg,
		log:     cfg.Logger.Named("httpc.pool"),
		dial:    cfg.Dial,
		worker:  dispatch.NewQueue("httpc.pool.worker"),
		drained: make(chan struct{}),
	}
	if cfg.Completion != nil {
		p.completion = cfg.Completion
	} else {
		p.ownedCompletion = dispatch.NewQueue("httpc.pool.completion")
		p.completion = p.ownedCompletion
	}
	return p
}

// Stats returns the number of registered sessions and live connections.
func (p *Pool) Stats() Stats {
	var st Stats
	p.worker.Sync(func() {
		st = Stats{Sessions: len(p.sessions), Connections: len(p.connections)}
	})
	return st
}

// Close fails every outstanding session with a connection-closed error,
// closes every connection and waits until their transports are down. It
// then stops the worker and, if the pool created it, the completion queue,
// which lets pending handlers finish first. Close must not be called from
// a handler running on the pool's own completion queue.
func (p *Pool) Close() {
	p.worker.Sync(func() {
		if p.closed {
			return
		}
		p.closed = true
		p.log.Debug("closing pool", zap.Int("sessions", len(p.sessions)), zap.Int("connections", len(p.connections)))

		for _, s := range append([]*Session(nil), p.sessions...) {
			s.close()
		}
		for _, c := range append([]*Connection(nil), p.connections...) {
			p.closeConnection(c)
		}
		p.checkDrained()
	})
	<-p.drained

	p.worker.Stop()
	if p.ownedCompletion != nil {
		p.ownedCompletion.Stop()
	}
}

func (p *Pool) checkDrained() {
	if p.closed && len(p.connections) == 0 && !p.drainedSignalled {
		p.drainedSignalled = true
		close(p.drained)
	}
}

func (p *Pool) addSession(s *Session) {
	p.sessions = append(p.sessions, s)
	p.requestRebalance()
}

func (p *Pool) removeSession(s *Session) {
	for i, other := range p.sessions {
		if other == s {
			p.sessions = append(p.sessions[:i], p.sessions[i+1:]...)
			return
		}
	}
}

func (p *Pool) removeConnection(c *Connection) {
	for i, other := range p.connections {
		if other == c {
			p.connections = append(p.connections[:i], p.connections[i+1:]...)
			return
		}
	}
}

// requestRebalance queues one rebalance pass; requests made while a pass
// is already queued fold into it.
func (p *Pool) requestRebalance() {
	if p.rebalancePending || p.closed {
		return
	}
	p.rebalancePending = true
	p.worker.Async(p.rebalance)
}

func (p *Pool) rebalance() {
	p.rebalancePending = false
	if p.closed {
		return
	}

	for _, s := range append([]*Session(nil), p.sessions...) {
		if s.state != SessionConnecting {
			continue
		}
		ep := s.request.Endpoint

		var idle *Connection
		candidates := false
		for _, c := range p.connections {
			if c.endpoint != ep || c.spent {
				continue
			}
			switch c.state {
			case connConnecting:
				candidates = true
			case connActive:
				candidates = true
				if idle == nil && c.idle() {
					idle = c
				}
			}
		}

		switch {
		case !candidates:
			p.openConnection(ep)
		case idle != nil:
			idle.attach(s)
		}
	}

	for _, c := range append([]*Connection(nil), p.connections...) {
		switch c.state {
		case connConnecting:
			if p.waiting(c.endpoint) == 0 {
				p.log.Debug("closing unneeded connection", zap.Uint64("conn", c.id))
				p.closeConnection(c)
			}
		case connActive:
			switch {
			case c.session != nil:
			case c.spent:
				p.closeConnection(c)
			default:
				c.receive()
			}
		}
	}
}

// waiting counts sessions queued for ep and not yet attached.
func (p *Pool) waiting(ep protocol.Endpoint) int {
	n := 0
	for _, s := range p.sessions {
		if s.state == SessionConnecting && s.request.Endpoint == ep {
			n++
		}
	}
	return n
}

func (p *Pool) openConnection(ep protocol.Endpoint) {
	p.nextConnID++
	c := newConnection(p.nextConnID, ep, p.dial(ep, p.worker.Async), p.log, p.cfg.ReadChunkSize)
	c.onError = p.connectionError
	p.connections = append(p.connections, c)

	c.open(func(err error) {
		if err != nil {
			p.openFailed(c, err)
			return
		}
		c.log.Debug("connection open")
		p.requestRebalance()
	})
}

// openFailed notifies every session waiting for the endpoint, then closes c.
func (p *Pool) openFailed(c *Connection, err error) {
	c.log.Warn("connection open failed", zap.Error(err))

	var waiting []*Session
	for _, s := range p.sessions {
		if s.state == SessionConnecting && s.request.Endpoint == c.endpoint {
			waiting = append(waiting, s)
		}
	}
	for _, s := range waiting {
		s.onError(err)
	}
	p.closeConnection(c)
}

// connectionError is the error handler of every live connection: the
// attached session, if any, gets err and the connection is closed.
func (p *Pool) connectionError(c *Connection, err error) {
	s := c.session
	if s == nil && errors.IsConnectionClosed(err) {
		c.log.Debug("idle connection closed", zap.Error(err))
	} else {
		c.log.Warn("connection failed", zap.Error(err))
	}
	p.closeConnection(c)
	if s != nil {
		s.onError(err)
	}
}

func (p *Pool) closeConnection(c *Connection) {
	closing := c.close(func() {
		p.removeConnection(c)
		p.checkDrained()
		p.requestRebalance()
	})
	if closing {
		p.requestRebalance()
	}
}
