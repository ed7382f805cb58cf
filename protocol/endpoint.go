package protocol

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"golang.org/x/net/idna"

	"github.com/nczempin/httpc-engine/errors"
)

// Scheme selects how an endpoint is reached.
type Scheme string

const (
	SchemeHTTP  Scheme = "http"
	SchemeHTTPS Scheme = "https"
	// SchemeUnix speaks plain HTTP over a Unix domain socket; Host is the socket path.
	SchemeUnix Scheme = "http+unix"
)

// DefaultPort returns the port used when a URL names none.
func (s Scheme) DefaultPort() uint16 {
	switch s {
	case SchemeHTTP:
		return 80
	case SchemeHTTPS:
		return 443
	default:
		return 0
	}
}

// Endpoint identifies an origin. Two connections are interchangeable iff
// their endpoints are equal, so Endpoint is used directly as a map key.
type Endpoint struct {
	Scheme Scheme
	Host   string
	Port   uint16
}

// NewEndpoint validates and normalizes an endpoint. Host names are converted
// to lower-case ASCII (IDNA); a zero port selects the scheme default.
func NewEndpoint(scheme Scheme, host string, port uint16) (Endpoint, error) {
	switch scheme {
	case SchemeHTTP, SchemeHTTPS:
	case SchemeUnix:
		if host == "" {
			return Endpoint{}, errors.NewInvalidArgumentError("unix endpoint needs a socket path")
		}
		return Endpoint{Scheme: scheme, Host: host}, nil
	default:
		return Endpoint{}, errors.NewInvalidArgumentError(fmt.Sprintf("unsupported scheme %q", scheme))
	}

	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if host == "" {
		return Endpoint{}, errors.NewInvalidArgumentError("endpoint needs a host")
	}
	if net.ParseIP(host) == nil {
		ascii, err := idna.Lookup.ToASCII(host)
		if err != nil {
			return Endpoint{}, &errors.HttpError{
				Type:          errors.ErrorInvalidArgument,
				Message:       fmt.Sprintf("invalid host %q", host),
				UnderlyingErr: err,
			}
		}
		host = ascii
	}
	if port == 0 {
		port = scheme.DefaultPort()
	}
	return Endpoint{Scheme: scheme, Host: strings.ToLower(host), Port: port}, nil
}

// Valid reports whether the endpoint can be dialed.
func (e Endpoint) Valid() bool {
	switch e.Scheme {
	case SchemeHTTP, SchemeHTTPS:
		return e.Host != "" && e.Port != 0
	case SchemeUnix:
		return e.Host != ""
	}
	return false
}

// HostHeader returns the value of the Host field for requests to e.
// The port is included only when it differs from the scheme default.
func (e Endpoint) HostHeader() string {
	if e.Scheme == SchemeUnix {
		return "localhost"
	}
	if e.Port != e.Scheme.DefaultPort() {
		return net.JoinHostPort(e.Host, strconv.Itoa(int(e.Port)))
	}
	if strings.IndexByte(e.Host, ':') >= 0 {
		return "[" + e.Host + "]"
	}
	return e.Host
}

func (e Endpoint) String() string {
	if e.Scheme == SchemeUnix {
		return string(e.Scheme) + "://" + e.Host
	}
	return string(e.Scheme) + "://" + e.HostHeader()
}
