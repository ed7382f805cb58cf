package errors

import "fmt"

// ErrorType represents the category of error
type ErrorType int

const (
	ErrorNone ErrorType = iota
	ErrorTransport
	ErrorProtocol
	ErrorInvalidArgument
)

// TransportError represents transport-layer specific errors
type TransportError int

const (
	TransportErrorNone TransportError = iota
	TransportErrorSocketCreateFailure
	TransportErrorSocketConnectFailure
	TransportErrorSocketReadFailure
	TransportErrorSocketWriteFailure
	TransportErrorConnectionClosed
	TransportErrorDnsFailure
	TransportErrorTlsHandshakeFailure
	TransportErrorIoUringInit
	TransportErrorIoUringSubmit
	TransportErrorUnsupported
)

func (e TransportError) String() string {
	switch e {
	case TransportErrorSocketCreateFailure:
		return "socket creation failed"
	case TransportErrorSocketConnectFailure:
		return "socket connection failed"
	case TransportErrorSocketReadFailure:
		return "socket read failed"
	case TransportErrorSocketWriteFailure:
		return "socket write failed"
	case TransportErrorConnectionClosed:
		return "connection closed"
	case TransportErrorDnsFailure:
		return "DNS lookup failed"
	case TransportErrorTlsHandshakeFailure:
		return "TLS handshake failed"
	case TransportErrorIoUringInit:
		return "io_uring initialization failed"
	case TransportErrorIoUringSubmit:
		return "io_uring submission failed"
	case TransportErrorUnsupported:
		return "unsupported transport"
	default:
		return fmt.Sprintf("transport error %d", int(e))
	}
}

// ProtocolError represents protocol-layer specific errors
type ProtocolError int

const (
	ProtocolErrorNone ProtocolError = iota
	ProtocolErrorTooLargeHeader
	ProtocolErrorNoResponseHeader
	ProtocolErrorInvalidResponseHeader
	ProtocolErrorMissingContentLength
	ProtocolErrorViolation
	ProtocolErrorInvalidRequestBody
)

func (e ProtocolError) String() string {
	switch e {
	case ProtocolErrorTooLargeHeader:
		return "response header is too large"
	case ProtocolErrorNoResponseHeader:
		return "no response header"
	case ProtocolErrorInvalidResponseHeader:
		return "response header is invalid format"
	case ProtocolErrorMissingContentLength:
		return "response header has no content length"
	case ProtocolErrorViolation:
		return "protocol violation"
	case ProtocolErrorInvalidRequestBody:
		return "request body does not match its content length"
	default:
		return fmt.Sprintf("protocol error %d", int(e))
	}
}

// HttpError is the main error type for the HTTP client
type HttpError struct {
	Type          ErrorType
	TransportErr  TransportError
	ProtocolErr   ProtocolError
	Message       string
	UnderlyingErr error
}

// Error implements the error interface
func (e *HttpError) Error() string {
	if e == nil {
		return "no error"
	}

	var typeStr string
	switch e.Type {
	case ErrorTransport:
		typeStr = fmt.Sprintf("Transport error (%s)", e.TransportErr)
	case ErrorProtocol:
		typeStr = fmt.Sprintf("Protocol error (%s)", e.ProtocolErr)
	case ErrorInvalidArgument:
		typeStr = "Invalid argument"
	default:
		typeStr = "Unknown error"
	}

	if e.Message != "" {
		typeStr = fmt.Sprintf("%s: %s", typeStr, e.Message)
	}

	if e.UnderlyingErr != nil {
		return fmt.Sprintf("%s (caused by: %v)", typeStr, e.UnderlyingErr)
	}

	return typeStr
}

// Unwrap returns the underlying error for error chain support
func (e *HttpError) Unwrap() error {
	return e.UnderlyingErr
}

// Is reports whether target is an *HttpError of the same category and code.
// Message and underlying error are ignored, so the package sentinels can be
// matched with errors.Is.
func (e *HttpError) Is(target error) bool {
	t, ok := target.(*HttpError)
	if !ok || e == nil || t == nil {
		return false
	}
	if e.Type != t.Type {
		return false
	}
	switch e.Type {
	case ErrorTransport:
		return e.TransportErr == t.TransportErr
	case ErrorProtocol:
		return e.ProtocolErr == t.ProtocolErr
	case ErrorInvalidArgument:
		// invalid arguments only match by message; an empty sentinel message matches any
		return t.Message == "" || e.Message == t.Message
	}
	return true
}

var (
	ErrTooLargeHeader        = NewProtocolError(ProtocolErrorTooLargeHeader, "")
	ErrNoResponseHeader      = NewProtocolError(ProtocolErrorNoResponseHeader, "")
	ErrInvalidResponseHeader = NewProtocolError(ProtocolErrorInvalidResponseHeader, "")
	ErrMissingContentLength  = NewProtocolError(ProtocolErrorMissingContentLength, "")
	ErrProtocolViolation     = NewProtocolError(ProtocolErrorViolation, "")
	ErrInvalidRequestBody    = NewProtocolError(ProtocolErrorInvalidRequestBody, "")
	ErrConnectionClosed      = NewTransportError(TransportErrorConnectionClosed, "", nil)
	ErrInvalidArgument       = NewInvalidArgumentError("")
)

// NewTransportError creates a new transport error
func NewTransportError(err TransportError, message string, underlying error) *HttpError {
	return &HttpError{
		Type:          ErrorTransport,
		TransportErr:  err,
		Message:       message,
		UnderlyingErr: underlying,
	}
}

// NewProtocolError creates a new protocol error
func NewProtocolError(err ProtocolError, message string) *HttpError {
	return &HttpError{
		Type:        ErrorProtocol,
		ProtocolErr: err,
		Message:     message,
	}
}

// NewInvalidArgumentError creates a new invalid argument error
func NewInvalidArgumentError(message string) *HttpError {
	return &HttpError{
		Type:    ErrorInvalidArgument,
		Message: message,
	}
}

// IsConnectionClosed reports whether err carries the connection-closed transport code.
func IsConnectionClosed(err error) bool {
	for err != nil {
		if he, ok := err.(*HttpError); ok && he.Type == ErrorTransport && he.TransportErr == TransportErrorConnectionClosed {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
