package protocol

import (
	"io"
	"strconv"
	"strings"
)

// HttpMethod represents HTTP request methods
type HttpMethod string

const (
	MethodGet    HttpMethod = "GET"
	MethodHead   HttpMethod = "HEAD"
	MethodPost   HttpMethod = "POST"
	MethodPut    HttpMethod = "PUT"
	MethodPatch  HttpMethod = "PATCH"
	MethodDelete HttpMethod = "DELETE"
)

// HttpHeader represents an HTTP header key-value pair
type HttpHeader struct {
	Key   string
	Value string
}

// HttpRequest represents an HTTP request.
// Body is pulled in chunks while the request is sent; it must yield exactly
// ContentLength bytes. ContentLength is ignored when Body is nil.
type HttpRequest struct {
	Endpoint      Endpoint
	Method        HttpMethod
	Path          string
	Headers       []HttpHeader
	Body          io.Reader
	ContentLength int64
	ContentType   string
}

// Clone returns a copy of r that shares the body reader but not the header slice.
func (r *HttpRequest) Clone() *HttpRequest {
	c := *r
	c.Headers = append([]HttpHeader(nil), r.Headers...)
	return &c
}

// Header holds response header fields. Lookup is case-insensitive;
// when a field repeats, the last occurrence wins.
type Header map[string]string

// Get returns the value of the named field, or "" if absent.
func (h Header) Get(name string) string {
	return h[strings.ToLower(name)]
}

// Lookup returns the value of the named field and whether it was present.
func (h Header) Lookup(name string) (string, bool) {
	v, ok := h[strings.ToLower(name)]
	return v, ok
}

// Set stores value under name, replacing any previous value.
func (h Header) Set(name, value string) {
	h[strings.ToLower(name)] = value
}

// ContentLength returns the parsed Content-Length field.
// ok is false when the field is absent or not a plain decimal number.
func (h Header) ContentLength() (n int, ok bool) {
	v, present := h.Lookup("Content-Length")
	if !present {
		return 0, false
	}
	u, err := strconv.ParseUint(strings.TrimSpace(v), 10, strconv.IntSize-1)
	if err != nil {
		return 0, false
	}
	return int(u), true
}

// HttpResponse represents an HTTP response
type HttpResponse struct {
	StatusCode    int
	StatusMessage string
	Headers       Header
	Body          []byte
	ContentLength int
}
