package pool

import (
	"go.uber.org/zap"

	"github.com/nczempin/httpc-engine/dispatch"
	"github.com/nczempin/httpc-engine/protocol"
	"github.com/nczempin/httpc-engine/transport"
)

// StreamFactory builds the stream for a new connection to ep. post runs a
// closure on the pool's worker context; stream completions must go through it.
type StreamFactory func(ep protocol.Endpoint, post func(func())) transport.Stream

// Config holds the pool settings. The zero value is not usable; start from
// DefaultConfig.
type Config struct {
	Logger *zap.Logger

	// Completion is where session handlers run. Nil gives the pool its own
	// serial queue, stopped by Close.
	Completion dispatch.Executor

	// Transport picks the socket implementation for the default StreamFactory.
	Transport transport.Config
	// Dial overrides how connection streams are built.
	Dial StreamFactory

	UserAgent     string
	ReadChunkSize int
	BodyChunkSize int
}

const (
	DefaultUserAgent     = "httpc-engine"
	DefaultReadChunkSize = 1 << 20
	DefaultBodyChunkSize = 64 << 10
)

func DefaultConfig() Config {
	return Config{
		Logger:        zap.NewNop(),
		Transport:     transport.DefaultConfig(),
		UserAgent:     DefaultUserAgent,
		ReadChunkSize: DefaultReadChunkSize,
		BodyChunkSize: DefaultBodyChunkSize,
	}
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.ReadChunkSize <= 0 {
		c.ReadChunkSize = DefaultReadChunkSize
	}
	if c.BodyChunkSize <= 0 {
		c.BodyChunkSize = DefaultBodyChunkSize
	}
	if c.Transport.Kind == "" {
		c.Transport.Kind = transport.KindNet
	}
	if c.Dial == nil {
		tc := c.Transport
		c.Dial = func(ep protocol.Endpoint, post func(func())) transport.Stream {
			dial := func() (transport.Transport, error) { return transport.New(tc, ep.Scheme) }
			return transport.NewStream(dial, ep.Host, ep.Port, post)
		}
	}
	return c
}
