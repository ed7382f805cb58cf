//go:build !linux

package transport

import "github.com/nczempin/httpc-engine/errors"

func errNoUring() error {
	return errors.NewTransportError(errors.TransportErrorUnsupported, "io_uring is only available on linux", nil)
}

// UringTransport is unavailable off linux; the constructors always fail.
type UringTransport struct{ Transport }

func NewUringTransport(entries uint) (*UringTransport, error)     { return nil, errNoUring() }
func NewUringUnixTransport(entries uint) (*UringTransport, error) { return nil, errNoUring() }

// UringTransportV2 is unavailable off linux; the constructors always fail.
type UringTransportV2 struct{ Transport }

func NewUringTransportV2(entries uint32) (*UringTransportV2, error)     { return nil, errNoUring() }
func NewUringUnixTransportV2(entries uint32) (*UringTransportV2, error) { return nil, errNoUring() }
