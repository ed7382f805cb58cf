package transport

import (
	"fmt"

	utls "github.com/refraction-networking/utls"

	"github.com/nczempin/httpc-engine/errors"
)

// TlsTransport implements Transport as TLS over a TCP connection. The client
// hello is built by uTLS so callers can pick a fingerprint; the default is
// the Go standard library hello.
type TlsTransport struct {
	netTransport
	hello              utls.ClientHelloID
	insecureSkipVerify bool
}

// NewTlsTransport creates a TlsTransport. An empty hello selects utls.HelloGolang.
func NewTlsTransport(hello utls.ClientHelloID, insecureSkipVerify bool) *TlsTransport {
	if hello.Client == "" {
		hello = utls.HelloGolang
	}
	return &TlsTransport{
		hello:              hello,
		insecureSkipVerify: insecureSkipVerify,
	}
}

// Connect dials host:port and completes the TLS handshake with host as the
// server name. Only http/1.1 is offered via ALPN.
func (t *TlsTransport) Connect(host string, port uint16) error {
	raw, err := dialTCP(host, port)
	if err != nil {
		return err
	}

	conn := utls.UClient(raw, &utls.Config{
		ServerName:         host,
		InsecureSkipVerify: t.insecureSkipVerify,
		NextProtos:         []string{"http/1.1"},
	}, t.hello)
	if err := conn.Handshake(); err != nil {
		raw.Close()
		return errors.NewTransportError(
			errors.TransportErrorTlsHandshakeFailure,
			fmt.Sprintf("TLS handshake with %s failed", host),
			err,
		)
	}

	if proto := conn.ConnectionState().NegotiatedProtocol; proto != "" && proto != "http/1.1" {
		conn.Close()
		return errors.NewTransportError(
			errors.TransportErrorUnsupported,
			fmt.Sprintf("server negotiated %q, only http/1.1 is spoken", proto),
			nil,
		)
	}

	if err := t.set(conn); err != nil {
		conn.Close()
		return err
	}
	return nil
}
