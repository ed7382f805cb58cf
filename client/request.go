package client

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"

	"github.com/nczempin/httpc-engine/errors"
	"github.com/nczempin/httpc-engine/protocol"
)

// NewRequest resolves rawURL into an endpoint and request target. Only http
// and https URLs are accepted; use NewUnixRequest for Unix sockets. A nil
// body sends no body at all, an empty one sends Content-Length: 0.
func NewRequest(method protocol.HttpMethod, rawURL string, body []byte, contentType string) (*protocol.HttpRequest, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.NewInvalidArgumentError(fmt.Sprintf("invalid URL %q: %v", rawURL, err))
	}

	scheme := protocol.Scheme(u.Scheme)
	if scheme != protocol.SchemeHTTP && scheme != protocol.SchemeHTTPS {
		return nil, errors.NewInvalidArgumentError(fmt.Sprintf("unsupported URL scheme %q", u.Scheme))
	}

	var port uint16
	if p := u.Port(); p != "" {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil || n == 0 {
			return nil, errors.NewInvalidArgumentError(fmt.Sprintf("invalid port %q", p))
		}
		port = uint16(n)
	}

	ep, err := protocol.NewEndpoint(scheme, u.Hostname(), port)
	if err != nil {
		return nil, err
	}

	req := &protocol.HttpRequest{
		Endpoint: ep,
		Method:   method,
		Path:     requestTarget(u),
	}
	setBody(req, body, contentType)
	return req, nil
}

// NewUnixRequest builds a request to the HTTP server listening on socketPath.
func NewUnixRequest(socketPath string, method protocol.HttpMethod, path string) (*protocol.HttpRequest, error) {
	ep, err := protocol.NewEndpoint(protocol.SchemeUnix, socketPath, 0)
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = "/"
	}
	return &protocol.HttpRequest{Endpoint: ep, Method: method, Path: path}, nil
}

func requestTarget(u *url.URL) string {
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return path
}

func setBody(req *protocol.HttpRequest, body []byte, contentType string) {
	if body == nil {
		return
	}
	req.Body = bytes.NewReader(body)
	req.ContentLength = int64(len(body))
	req.ContentType = contentType
}
