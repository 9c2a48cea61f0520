package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// ErrResponseSent is returned when a response is modified or sent after Send.
var ErrResponseSent = errors.New("response already sent")

// Status codes produced by the server
const (
	StatusOK                  = 200
	StatusPermanentRedirect   = 308
	StatusNotFound            = 404
	StatusInternalServerError = 500
)

// DefaultVersion is the protocol version written on every status line.
const DefaultVersion = "HTTP/1.1"

// DefaultContentType applies when no Content-Type header was set.
const DefaultContentType = "text/html"

var statusText = map[int]string{
	StatusOK:                  "OK",
	StatusPermanentRedirect:   "Permanent Redirect",
	StatusNotFound:            "Page Not Found",
	StatusInternalServerError: "Internal Server Error",
}

// StatusText returns the reason phrase for code, or "" when it is unknown.
func StatusText(code int) string {
	return statusText[code]
}

type header struct {
	name  string
	value string
}

// Response builds a single HTTP response over a connection. Headers and
// status may be changed until Send; Send writes everything and closes conn.
type Response struct {
	conn       io.WriteCloser
	version    string
	statusCode int
	headers    []header
	sent       bool
}

// NewResponse creates a 200 HTTP/1.1 response bound to conn.
func NewResponse(conn io.WriteCloser) *Response {
	return &Response{
		conn:       conn,
		version:    DefaultVersion,
		statusCode: StatusOK,
	}
}

// SetHeader sets name to value. Setting an existing name replaces the value
// in place, keeping the original position.
func (r *Response) SetHeader(name, value string) error {
	if r.sent {
		return ErrResponseSent
	}
	for i := range r.headers {
		if r.headers[i].name == name {
			r.headers[i].value = value
			return nil
		}
	}
	r.headers = append(r.headers, header{name: name, value: value})
	return nil
}

// Header returns the value set for name.
func (r *Response) Header(name string) (string, bool) {
	for _, h := range r.headers {
		if h.name == name {
			return h.value, true
		}
	}
	return "", false
}

// SetStatus sets the status code.
func (r *Response) SetStatus(code int) error {
	if r.sent {
		return ErrResponseSent
	}
	r.statusCode = code
	return nil
}

// StatusCode returns the current status code.
func (r *Response) StatusCode() int {
	return r.statusCode
}

// Sent reports whether Send has been called.
func (r *Response) Sent() bool {
	return r.sent
}

// Send writes the status line, headers, a blank line and body (if any) to
// the connection and closes it. It may be called once.
func (r *Response) Send(body []byte) error {
	if r.sent {
		return ErrResponseSent
	}
	r.sent = true

	if _, ok := r.Header("Content-Type"); !ok {
		r.headers = append(r.headers, header{name: "Content-Type", value: DefaultContentType})
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %d %s\r\n", r.version, r.statusCode, StatusText(r.statusCode))
	for _, h := range r.headers {
		fmt.Fprintf(&buf, "%s: %s\r\n", h.name, h.value)
	}
	buf.WriteString("\r\n")
	buf.Write(body)

	_, werr := r.conn.Write(buf.Bytes())
	cerr := r.conn.Close()
	if werr != nil {
		return fmt.Errorf("failed to write response: %w", werr)
	}
	if cerr != nil {
		return fmt.Errorf("failed to close connection: %w", cerr)
	}
	return nil
}
