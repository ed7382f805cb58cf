package transport

import (
	"fmt"
	"strings"

	utls "github.com/refraction-networking/utls"

	"github.com/nczempin/httpc-engine/errors"
	"github.com/nczempin/httpc-engine/protocol"
)

// Kind selects the socket implementation used for plain connections.
type Kind string

const (
	KindNet     Kind = "net"      // standard library sockets
	KindUring   Kind = "uring"    // iceber/iouring-go
	KindUringV2 Kind = "uring-v2" // godzie44/go-uring
)

// ParseKind maps a flag value onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(s)); k {
	case KindNet, KindUring, KindUringV2:
		return k, nil
	case "":
		return KindNet, nil
	}
	return "", errors.NewInvalidArgumentError(fmt.Sprintf("unknown transport kind %q", s))
}

// Config controls which Transport New builds for an endpoint.
type Config struct {
	Kind Kind

	// TLS settings, used for https endpoints only.
	InsecureSkipVerify bool
	ClientHello        utls.ClientHelloID

	// RingEntries sizes the submission queue of the io_uring transports.
	RingEntries uint32
}

func DefaultConfig() Config {
	return Config{
		Kind:        KindNet,
		ClientHello: utls.HelloGolang,
		RingEntries: 32,
	}
}

var clientHellos = map[string]utls.ClientHelloID{
	"golang":     utls.HelloGolang,
	"chrome":     utls.HelloChrome_Auto,
	"firefox":    utls.HelloFirefox_Auto,
	"safari":     utls.HelloSafari_Auto,
	"ios":        utls.HelloIOS_Auto,
	"edge":       utls.HelloEdge_Auto,
	"randomized": utls.HelloRandomized,
}

// ParseClientHello maps a fingerprint name such as "chrome" onto a uTLS hello.
func ParseClientHello(name string) (utls.ClientHelloID, error) {
	if name == "" {
		return utls.HelloGolang, nil
	}
	hello, ok := clientHellos[strings.ToLower(name)]
	if !ok {
		return utls.ClientHelloID{}, errors.NewInvalidArgumentError(fmt.Sprintf("unknown client hello %q", name))
	}
	return hello, nil
}

// New builds an unconnected Transport for scheme. TLS always runs over the
// standard library socket, so https with an io_uring kind is rejected.
func New(cfg Config, scheme protocol.Scheme) (Transport, error) {
	switch scheme {
	case protocol.SchemeHTTPS:
		if cfg.Kind != KindNet && cfg.Kind != "" {
			return nil, errors.NewTransportError(
				errors.TransportErrorUnsupported,
				fmt.Sprintf("https is not supported by the %s transport", cfg.Kind),
				nil,
			)
		}
		return NewTlsTransport(cfg.ClientHello, cfg.InsecureSkipVerify), nil

	case protocol.SchemeHTTP:
		switch cfg.Kind {
		case KindUring:
			t, err := NewUringTransport(uint(cfg.RingEntries))
			if err != nil {
				return nil, err
			}
			return t, nil
		case KindUringV2:
			t, err := NewUringTransportV2(cfg.RingEntries)
			if err != nil {
				return nil, err
			}
			return t, nil
		}
		return NewTcpTransport(), nil

	case protocol.SchemeUnix:
		switch cfg.Kind {
		case KindUring:
			t, err := NewUringUnixTransport(uint(cfg.RingEntries))
			if err != nil {
				return nil, err
			}
			return t, nil
		case KindUringV2:
			t, err := NewUringUnixTransportV2(cfg.RingEntries)
			if err != nil {
				return nil, err
			}
			return t, nil
		}
		return NewUnixTransport(), nil
	}

	return nil, errors.NewInvalidArgumentError(fmt.Sprintf("unsupported scheme %q", scheme))
}
