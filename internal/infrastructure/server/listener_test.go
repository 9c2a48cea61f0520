package server

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"

	"github.com/rootserve/core/internal/adapters/filesystem"
	"github.com/rootserve/core/internal/adapters/markdown"
	"github.com/rootserve/core/internal/application/services"
	"github.com/rootserve/core/internal/domain/entities"
	"github.com/rootserve/core/internal/domain/registry"
	"github.com/rootserve/core/internal/infrastructure/config"
	"github.com/rootserve/core/internal/infrastructure/logger"
	"github.com/rootserve/core/internal/infrastructure/metrics"
	"github.com/rootserve/core/internal/ports"
)

type panicContent struct{}

func (panicContent) Serve(ctx context.Context, req entities.Request, w ports.ResponseWriter) (int, error) {
	panic("boom")
}

func newContent(t *testing.T) *services.ContentService {
	t.Helper()

	mem := afero.NewMemMapFs()
	if err := afero.WriteFile(mem, "/www/index.html", []byte("<p>home</p>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(mem, "/www/readme.md", []byte("# Hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	return services.NewContentService(services.ContentOptions{
		RootDirectory:  "/www",
		Redirects:      entities.NewRedirectTable(map[string]string{"/home": "/index.html"}),
		MIMETypes:      registry.NewMIMETypes(nil),
		Postprocessors: registry.NewPostprocessors(markdown.Postprocessors()),
	}, filesystem.New(mem), logger.NewNop())
}

// startListener serves content on a loopback port and returns a stop
// function that shuts the listener down and waits for Serve to return.
func startListener(t *testing.T, content ports.ContentService, security config.SecurityConfig) (*Listener, string, *metrics.Metrics, func()) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	m := metrics.New()
	l := NewListener(content, config.ServerConfig{
		ReadTimeout:     2 * time.Second,
		WriteTimeout:    2 * time.Second,
		MaxRequestBytes: 8192,
	}, security, m, logger.NewNop())

	errCh := make(chan error, 1)
	go func() { errCh <- l.Serve(ln) }()

	stopped := false
	stop := func() {
		if stopped {
			return
		}
		stopped = true
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := l.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
		if err := <-errCh; !errors.Is(err, ErrListenerClosed) {
			t.Errorf("Serve returned %v, want ErrListenerClosed", err)
		}
	}
	t.Cleanup(stop)

	return l, ln.Addr().String(), m, stop
}

// exchange sends raw and returns everything the server wrote before
// closing. Read errors are ignored since a dropped connection may reset.
func exchange(addr, raw string) (string, error) {
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	if raw != "" {
		if _, err := conn.Write([]byte(raw)); err != nil {
			return "", nil
		}
	}
	data, _ := io.ReadAll(conn)
	return string(data), nil
}

func roundTrip(t *testing.T, addr, raw string) string {
	t.Helper()
	got, err := exchange(addr, raw)
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func TestListenerServesFile(t *testing.T) {
	_, addr, _, _ := startListener(t, newContent(t), config.SecurityConfig{})

	got := roundTrip(t, addr, "GET /index.html HTTP/1.1\r\nHost: localhost\r\n\r\n")
	want := "HTTP/1.1 200 OK\r\nContent-Type: text/html\r\n\r\n<p>home</p>"
	if got != want {
		t.Errorf("Got %q, want %q", got, want)
	}
}

func TestListenerRedirectAndNotFound(t *testing.T) {
	_, addr, _, _ := startListener(t, newContent(t), config.SecurityConfig{})

	got := roundTrip(t, addr, "GET /home HTTP/1.1\r\n\r\n")
	if !strings.HasPrefix(got, "HTTP/1.1 308 Permanent Redirect\r\nLocation: /index.html\r\n") {
		t.Errorf("redirect = %q", got)
	}

	got = roundTrip(t, addr, "GET /missing HTTP/1.1\r\n\r\n")
	if got != "HTTP/1.1 404 Page Not Found\r\nContent-Type: text/plain\r\n\r\n" {
		t.Errorf("not found = %q", got)
	}

	// A request line without a path cannot name anything.
	got = roundTrip(t, addr, "GET\r\n\r\n")
	if !strings.HasPrefix(got, "HTTP/1.1 404 Page Not Found\r\n") {
		t.Errorf("malformed = %q", got)
	}
}

func TestListenerRendersMarkdown(t *testing.T) {
	_, addr, _, _ := startListener(t, newContent(t), config.SecurityConfig{})

	got := roundTrip(t, addr, "GET /readme.md HTTP/1.1\r\n\r\n")
	if !strings.Contains(got, "<h1>Hello</h1>") {
		t.Errorf("markdown = %q", got)
	}
}

func TestListenerConcurrentConnections(t *testing.T) {
	_, addr, m, stop := startListener(t, newContent(t), config.SecurityConfig{})

	const n = 20
	results := make(chan string, n)
	for i := 0; i < n; i++ {
		go func() {
			got, err := exchange(addr, "GET /index.html HTTP/1.1\r\n\r\n")
			if err != nil {
				got = err.Error()
			}
			results <- got
		}()
	}
	for i := 0; i < n; i++ {
		if got := <-results; !strings.HasPrefix(got, "HTTP/1.1 200 OK\r\n") {
			t.Errorf("response %d = %q", i, got)
		}
	}

	stop()
	got, err := testutil.GatherAndCount(m.Registry(), "rootserve_requests_total")
	if err != nil {
		t.Fatal(err)
	}
	if got != 1 {
		t.Errorf("request series = %d, want 1", got)
	}
}

func TestListenerRecoversFromPanic(t *testing.T) {
	_, addr, _, _ := startListener(t, panicContent{}, config.SecurityConfig{})

	got := roundTrip(t, addr, "GET / HTTP/1.1\r\n\r\n")
	if got != "HTTP/1.1 500 Internal Server Error\r\nContent-Type: text/html\r\n\r\n" {
		t.Errorf("Got %q", got)
	}

	// The listener keeps accepting after a panic.
	got = roundTrip(t, addr, "GET / HTTP/1.1\r\n\r\n")
	if !strings.HasPrefix(got, "HTTP/1.1 500 ") {
		t.Errorf("second response = %q", got)
	}
}

func TestListenerEmptyConnection(t *testing.T) {
	_, addr, _, _ := startListener(t, newContent(t), config.SecurityConfig{})

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	conn.(*net.TCPConn).CloseWrite()
	conn.SetDeadline(time.Now().Add(2 * time.Second))
	data, _ := io.ReadAll(conn)
	conn.Close()

	if len(data) != 0 {
		t.Errorf("empty connection got %q", data)
	}
}

func TestListenerRateLimit(t *testing.T) {
	_, addr, _, _ := startListener(t, newContent(t), config.SecurityConfig{RateLimitRequests: 1, RateLimitBurst: 1})

	if got := roundTrip(t, addr, "GET /index.html HTTP/1.1\r\n\r\n"); !strings.HasPrefix(got, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("first = %q", got)
	}
	if got := roundTrip(t, addr, "GET /index.html HTTP/1.1\r\n\r\n"); got != "" {
		t.Errorf("second connection should be dropped, got %q", got)
	}
}

func TestListenerShutdown(t *testing.T) {
	l, addr, _, stop := startListener(t, newContent(t), config.SecurityConfig{})

	deadline := time.Now().Add(2 * time.Second)
	for !l.Ready() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !l.Ready() {
		t.Fatal("listener never became ready")
	}

	stop()
	if l.Ready() {
		t.Error("listener still ready after shutdown")
	}
	if _, err := net.DialTimeout("tcp", addr, 200*time.Millisecond); err == nil {
		t.Error("dial succeeded after shutdown")
	}
}

func TestServeAfterShutdown(t *testing.T) {
	l := NewListener(newContent(t), config.ServerConfig{MaxRequestBytes: 64}, config.SecurityConfig{}, nil, logger.NewNop())
	if err := l.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Serve(ln); !errors.Is(err, ErrListenerClosed) {
		t.Errorf("Serve = %v, want ErrListenerClosed", err)
	}
}

func TestNextBackoff(t *testing.T) {
	d := nextBackoff(0)
	if d != 5*time.Millisecond {
		t.Errorf("first backoff = %v", d)
	}
	for i := 0; i < 20; i++ {
		d = nextBackoff(d)
	}
	if d != time.Second {
		t.Errorf("capped backoff = %v", d)
	}
}
