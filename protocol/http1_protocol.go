package protocol

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/nczempin/httpc-engine/errors"
)

// MaxHeaderSize bounds how many bytes may accumulate without a header terminator.
const MaxHeaderSize = 1000 * 1000

var (
	headerSeparator = []byte("\r\n\r\n")
	lineSeparator   = []byte("\r\n")
)

// ParseResponseHeader tries to parse a response header at the front of buf.
//
// It returns (nil, 0, nil) when buf holds no complete header yet and more
// data may arrive. On success it returns a response with an empty body and
// the number of bytes consumed (header block plus terminator); bytes after
// that are left for the caller. The function keeps no state between calls.
func ParseResponseHeader(buf []byte, streamEnded bool) (*HttpResponse, int, error) {
	pos := bytes.Index(buf, headerSeparator)
	if pos < 0 {
		if len(buf) > MaxHeaderSize {
			return nil, 0, errors.NewProtocolError(
				errors.ProtocolErrorTooLargeHeader,
				fmt.Sprintf("%d bytes without header terminator", len(buf)),
			)
		}
		if streamEnded {
			return nil, 0, errors.NewProtocolError(
				errors.ProtocolErrorNoResponseHeader,
				"stream ended before header terminator",
			)
		}
		return nil, 0, nil
	}

	headerBlock := buf[:pos]

	// Split into status line and rest of headers
	statusLine, fieldBlock := headerBlock, []byte(nil)
	if i := bytes.Index(headerBlock, lineSeparator); i >= 0 {
		statusLine, fieldBlock = headerBlock[:i], headerBlock[i+len(lineSeparator):]
	}

	// Parse status line: "HTTP/1.1 200 OK"
	statusParts := strings.Split(string(statusLine), " ")
	if len(statusParts) < 3 {
		return nil, 0, errors.NewProtocolError(
			errors.ProtocolErrorInvalidResponseHeader,
			fmt.Sprintf("invalid status line %q", statusLine),
		)
	}

	statusCode, err := strconv.Atoi(statusParts[1])
	if err != nil {
		return nil, 0, errors.NewProtocolError(
			errors.ProtocolErrorInvalidResponseHeader,
			fmt.Sprintf("invalid status code: %s", statusParts[1]),
		)
	}

	return &HttpResponse{
		StatusCode:    statusCode,
		StatusMessage: strings.TrimSpace(strings.Join(statusParts[2:], " ")),
		Headers:       parseFields(fieldBlock),
		ContentLength: -1,
	}, pos + len(headerSeparator), nil
}

// parseFields reads "Name: Value" lines. A line without a colon, or whose
// name is not a valid field name, is skipped without touching other fields.
func parseFields(block []byte) Header {
	headers := make(Header)
	for len(block) > 0 {
		line := block
		if i := bytes.Index(block, lineSeparator); i >= 0 {
			line, block = block[:i], block[i+len(lineSeparator):]
		} else {
			block = nil
		}

		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			continue
		}
		name := string(line[:colon])
		if !httpguts.ValidHeaderFieldName(name) {
			continue
		}
		headers.Set(name, strings.TrimSpace(string(line[colon+1:])))
	}
	return headers
}

// WriteRequestHeader serializes the request line and header fields of req,
// terminated by an empty line. Host, Connection and Content-Length are always
// written by the engine; caller-supplied copies of those fields are dropped.
// A caller-supplied User-Agent or Content-Type replaces the engine's.
func WriteRequestHeader(req *HttpRequest, userAgent string) ([]byte, error) {
	for _, header := range req.Headers {
		if !httpguts.ValidHeaderFieldName(header.Key) {
			return nil, errors.NewInvalidArgumentError(fmt.Sprintf("invalid header field name %q", header.Key))
		}
		if !httpguts.ValidHeaderFieldValue(header.Value) {
			return nil, errors.NewInvalidArgumentError(fmt.Sprintf("invalid header field value for %q", header.Key))
		}
	}

	buf := make([]byte, 0, 256)

	// Request line
	buf = append(buf, string(req.Method)...)
	buf = append(buf, ' ')
	buf = append(buf, req.Path...)
	buf = append(buf, " HTTP/1.1\r\n"...)

	buf = appendField(buf, "Host", req.Endpoint.HostHeader())
	buf = appendField(buf, "Connection", "close")
	if userAgent != "" && !hasField(req.Headers, "User-Agent") {
		buf = appendField(buf, "User-Agent", userAgent)
	}
	if req.Body != nil {
		if req.ContentType != "" && !hasField(req.Headers, "Content-Type") {
			buf = appendField(buf, "Content-Type", req.ContentType)
		}
		buf = appendField(buf, "Content-Length", strconv.FormatInt(req.ContentLength, 10))
	}

	// Headers
	for _, header := range req.Headers {
		if strings.EqualFold(header.Key, "Host") ||
			strings.EqualFold(header.Key, "Connection") ||
			strings.EqualFold(header.Key, "Content-Length") {
			continue
		}
		buf = appendField(buf, header.Key, header.Value)
	}

	// Blank line
	return append(buf, lineSeparator...), nil
}

func hasField(headers []HttpHeader, key string) bool {
	for _, header := range headers {
		if strings.EqualFold(header.Key, key) {
			return true
		}
	}
	return false
}

func appendField(buf []byte, key, value string) []byte {
	buf = append(buf, key...)
	buf = append(buf, ": "...)
	buf = append(buf, value...)
	return append(buf, lineSeparator...)
}
