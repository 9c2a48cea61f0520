package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	httpadapter "github.com/rootserve/core/internal/adapters/http"
	"github.com/rootserve/core/internal/infrastructure/config"
	"github.com/rootserve/core/internal/infrastructure/logger"
	"github.com/rootserve/core/internal/infrastructure/metrics"
	"github.com/rootserve/core/internal/ports"
)

// ErrListenerClosed is returned by Serve after Shutdown
var ErrListenerClosed = errors.New("listener closed")

// Listener accepts TCP connections and answers exactly one request on each.
// Every connection is served on its own goroutine, so a slow filesystem
// operation only holds up its own request.
type Listener struct {
	content ports.ContentService
	config  config.ServerConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
	limiter *ipLimiter

	mu       sync.Mutex
	ln       net.Listener
	wg       sync.WaitGroup
	shutdown atomic.Bool
}

// NewListener creates a new connection listener
func NewListener(content ports.ContentService, cfg config.ServerConfig, security config.SecurityConfig, m *metrics.Metrics, appLogger *logger.Logger) *Listener {
	if m == nil {
		m = metrics.New()
	}
	return &Listener{
		content: content,
		config:  cfg,
		logger:  appLogger.WithComponent("listener"),
		metrics: m,
		limiter: newIPLimiter(security.RateLimitRequests, security.RateLimitBurst),
	}
}

// ListenAndServe listens on address and serves until Shutdown
func (l *Listener) ListenAndServe(address string) error {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	return l.Serve(ln)
}

// Serve accepts connections on ln until Shutdown is called
func (l *Listener) Serve(ln net.Listener) error {
	l.mu.Lock()
	if l.shutdown.Load() {
		l.mu.Unlock()
		ln.Close()
		return ErrListenerClosed
	}
	l.ln = ln
	l.mu.Unlock()

	l.logger.Infow("Accepting connections", "address", ln.Addr().String())

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if l.shutdown.Load() {
				return ErrListenerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = nextBackoff(backoff)
				l.logger.Warnw("Accept failed, retrying", "error", err, "backoff", backoff)
				time.Sleep(backoff)
				continue
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		backoff = 0

		l.wg.Add(1)
		go l.handleConnection(conn)
	}
}

// Addr returns the bound address, or nil before Serve
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Ready reports whether the listener is accepting connections
func (l *Listener) Ready() bool {
	return l.Addr() != nil && !l.shutdown.Load()
}

// Shutdown stops accepting and waits for in-flight connections or ctx
func (l *Listener) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	l.shutdown.Store(true)
	var err error
	if l.ln != nil {
		err = l.ln.Close()
	}
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Listener) handleConnection(conn net.Conn) {
	defer l.wg.Done()

	l.metrics.ConnectionOpened()
	defer l.metrics.ConnectionClosed()

	remote := conn.RemoteAddr().String()
	log := l.logger.WithConnID(uuid.NewString()).WithRemote(remote)

	if !l.limiter.Allow(conn.RemoteAddr()) {
		l.metrics.ConnectionRejected()
		log.Warnw("Connection rate limited")
		conn.Close()
		return
	}

	if l.config.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(l.config.ReadTimeout))
	}

	// One read is one request; partial requests are not reassembled.
	buf := make([]byte, l.config.MaxRequestBytes)
	n, err := conn.Read(buf)
	if n == 0 {
		l.metrics.ReadFailed()
		log.Debugw("No request received", "error", err)
		conn.Close()
		return
	}

	start := time.Now()
	req := httpadapter.ParseRequest(buf[:n])
	res := httpadapter.NewResponse(conn)

	defer func() {
		if r := recover(); r != nil {
			log.Errorw("Panic while serving request", "panic", r, "path", req.Path)
			if !res.Sent() {
				res.SetStatus(httpadapter.StatusInternalServerError)
				res.Send(nil)
			} else {
				conn.Close()
			}
			l.metrics.ObserveRequest(req.Method, httpadapter.StatusInternalServerError, time.Since(start))
		}
	}()

	if l.config.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(l.config.WriteTimeout))
	}

	ctx := logger.NewContext(context.Background(), log)
	status, err := l.content.Serve(ctx, req, res)
	if err != nil {
		// The client may already be gone; nothing else to do.
		log.Warnw("Failed to send response", "error", err)
	}

	duration := time.Since(start)
	l.metrics.ObserveRequest(req.Method, status, duration)
	log.LogHTTPRequest(req.Method, req.Path, status, float64(duration.Nanoseconds())/1000000)
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}
