package http

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func ExpectEqual(t *testing.T, expect, actual string) {
	t.Helper()
	if expect != actual {
		t.Errorf("Got %q, want %q", actual, expect)
	}
}

type MockConn struct {
	bytes.Buffer
	closed   int
	writes   int
	writeErr error
}

func (m *MockConn) Write(p []byte) (int, error) {
	m.writes++
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	return m.Buffer.Write(p)
}

func (m *MockConn) Close() error {
	m.closed++
	return nil
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		method string
		path   string
	}{
		{"full request", "GET /index.html HTTP/1.1\r\nHost: localhost\r\n\r\n", "GET", "/index.html"},
		{"request line only", "GET /a/b HTTP/1.1", "GET", "/a/b"},
		{"extra spaces", "GET   /spaced    HTTP/1.1\r\n", "GET", "/spaced"},
		{"headers ignored", "HEAD /x HTTP/1.0\r\nX-Path: /y\r\n\r\nbody /z", "HEAD", "/x"},
		{"method only", "GET\r\n", "GET", ""},
		{"empty", "", "", ""},
		{"blank line first", "\r\nGET / HTTP/1.1\r\n", "", ""},
		{"binary garbage", "\x00\x01\x02", "\x00\x01\x02", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := ParseRequest([]byte(tt.raw))
			ExpectEqual(t, tt.method, req.Method)
			ExpectEqual(t, tt.path, req.Path)
		})
	}
}

func TestParseRequestVersion(t *testing.T) {
	req := ParseRequest([]byte("GET / HTTP/1.1\r\n\r\n"))
	ExpectEqual(t, "HTTP/1.1", req.Version)
}

func TestResponseDefaults(t *testing.T) {
	conn := &MockConn{}
	res := NewResponse(conn)
	if err := res.Send(nil); err != nil {
		t.Fatalf("Send error: %v", err)
	}

	ExpectEqual(t, "HTTP/1.1 200 OK\r\nContent-Type: text/html\r\n\r\n", conn.String())
	if conn.closed != 1 {
		t.Errorf("connection closed %d times, want 1", conn.closed)
	}
}

func TestResponseHeaderOrderAndBody(t *testing.T) {
	conn := &MockConn{}
	res := NewResponse(conn)
	res.SetStatus(StatusPermanentRedirect)
	res.SetHeader("Location", "/new.png")
	res.SetHeader("Content-Type", "image/png")
	res.SetHeader("X-Extra", "1")
	res.SetHeader("Location", "/newer.png")

	if err := res.Send([]byte("payload")); err != nil {
		t.Fatalf("Send error: %v", err)
	}

	expect := strings.Join([]string{
		"HTTP/1.1 308 Permanent Redirect\r\n",
		"Location: /newer.png\r\n",
		"Content-Type: image/png\r\n",
		"X-Extra: 1\r\n",
		"\r\n",
		"payload",
	}, "")
	ExpectEqual(t, expect, conn.String())
}

func TestResponseStatusLines(t *testing.T) {
	tests := map[int]string{
		StatusOK:                  "HTTP/1.1 200 OK\r\n",
		StatusPermanentRedirect:   "HTTP/1.1 308 Permanent Redirect\r\n",
		StatusNotFound:            "HTTP/1.1 404 Page Not Found\r\n",
		StatusInternalServerError: "HTTP/1.1 500 Internal Server Error\r\n",
		418:                       "HTTP/1.1 418 \r\n",
	}

	for code, want := range tests {
		conn := &MockConn{}
		res := NewResponse(conn)
		res.SetStatus(code)
		if err := res.Send(nil); err != nil {
			t.Fatalf("Send(%d) error: %v", code, err)
		}
		if !strings.HasPrefix(conn.String(), want) {
			t.Errorf("status %d: got %q, want prefix %q", code, conn.String(), want)
		}
		if !strings.HasSuffix(conn.String(), "\r\n\r\n") {
			t.Errorf("status %d: header block not terminated: %q", code, conn.String())
		}
	}
}

func TestResponseSendOnce(t *testing.T) {
	conn := &MockConn{}
	res := NewResponse(conn)
	if err := res.Send([]byte("one")); err != nil {
		t.Fatalf("first Send error: %v", err)
	}
	first := conn.String()

	if err := res.Send([]byte("two")); !errors.Is(err, ErrResponseSent) {
		t.Errorf("second Send error = %v, want ErrResponseSent", err)
	}
	if err := res.SetHeader("X", "y"); !errors.Is(err, ErrResponseSent) {
		t.Errorf("SetHeader after Send error = %v", err)
	}
	if err := res.SetStatus(StatusNotFound); !errors.Is(err, ErrResponseSent) {
		t.Errorf("SetStatus after Send error = %v", err)
	}

	ExpectEqual(t, first, conn.String())
	if conn.writes != 1 || conn.closed != 1 {
		t.Errorf("writes=%d closed=%d, want 1/1", conn.writes, conn.closed)
	}
	if strings.Count(conn.String(), "HTTP/1.1") != 1 {
		t.Errorf("expected exactly one status line: %q", conn.String())
	}
	if !res.Sent() || res.StatusCode() != StatusOK {
		t.Errorf("Sent()=%v StatusCode()=%d", res.Sent(), res.StatusCode())
	}
}

func TestResponseWriteErrorStillCloses(t *testing.T) {
	conn := &MockConn{writeErr: errors.New("broken pipe")}
	res := NewResponse(conn)

	if err := res.Send([]byte("x")); err == nil {
		t.Error("Send should report the write failure")
	}
	if conn.closed != 1 {
		t.Errorf("connection closed %d times, want 1", conn.closed)
	}
}

func TestStatusText(t *testing.T) {
	ExpectEqual(t, "Page Not Found", StatusText(404))
	ExpectEqual(t, "", StatusText(999))
}
