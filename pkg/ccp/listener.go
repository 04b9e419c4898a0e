package ccp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/ccpnet/ccp/internal/logger"
	"github.com/lithammer/shortuuid/v4"
)

// Listener runs the host-side accept loop: bind, accept, filter by
// whitelist, and spawn one connection worker plus receiver per accepted
// peer. Timpani itself has no raw TCP accept loop to ground this on (its
// only listener is an http.Server); the per-connection goroutine-per-Accept
// shape follows general Go server idiom also visible in the pack's
// baranov1ch-http2 server loop.
type Listener struct {
	ln        net.Listener
	whitelist map[string]struct{}
	registry  *Registry
	logger    *slog.Logger

	mu     sync.Mutex
	conns  map[string]*conn
	closed bool
}

// NewListener binds addr (host:port) and returns a Listener that will only
// accept connections from the given whitelist of peer IP addresses. An
// empty whitelist accepts no one: callers that want to accept everyone
// must list every address explicitly, since the governing protocol treats
// the whitelist as the sole admission control.
//
// The base logger is pulled from ctx via logger.FromContext, so callers
// that installed one with logger.InContext get it threaded through to
// every accepted session's per-session logger.
func NewListener(ctx context.Context, addr string, whitelist []string, registry *Registry) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("ccp: failed to listen on %s: %w", addr, err)
	}

	baseLogger := logger.FromContext(ctx)

	wl := make(map[string]struct{}, len(whitelist))
	for _, ip := range whitelist {
		if ip != "" {
			wl[ip] = struct{}{}
		}
	}

	return &Listener{
		ln:        ln,
		whitelist: wl,
		registry:  registry,
		logger:    baseLogger,
		conns:     make(map[string]*conn),
	}, nil
}

// Addr returns the listener's bound network address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Serve accepts connections until Close is called, at which point it
// returns nil. Any other accept error is returned to the caller.
func (l *Listener) Serve() error {
	for {
		nc, err := l.ln.Accept()
		if err != nil {
			l.mu.Lock()
			closed := l.closed
			l.mu.Unlock()
			if closed {
				return nil
			}
			return fmt.Errorf("ccp: accept failed: %w", err)
		}

		if !l.allowed(nc) {
			l.logger.Warn("rejected connection from non-whitelisted peer",
				slog.String("peer", nc.RemoteAddr().String()))
			_ = nc.Close()
			continue
		}

		l.spawn(nc)
	}
}

func (l *Listener) allowed(nc net.Conn) bool {
	host, _, err := net.SplitHostPort(nc.RemoteAddr().String())
	if err != nil {
		return false
	}
	_, ok := l.whitelist[host]
	return ok
}

func (l *Listener) spawn(nc net.Conn) {
	id := shortuuid.New()
	sessionLogger := logger.WithSession(l.logger, id, nc.RemoteAddr().String())

	c := newConn(nc, sessionLogger)
	r := newReceiver(c, l.registry, nc.RemoteAddr().String(), sessionLogger)

	l.mu.Lock()
	l.conns[id] = c
	l.mu.Unlock()

	sessionLogger.Debug("accepted connection")

	go func() {
		defer func() {
			l.mu.Lock()
			delete(l.conns, id)
			l.mu.Unlock()
			sessionLogger.Debug("connection worker stopped")
		}()
		c.readLoop(r.onFrame, r.onConnClosed, r.onConnAborted)
	}()
}

// Close stops accepting new connections and closes every live one. It's
// safe to call more than once.
func (l *Listener) Close() error {
	l.mu.Lock()
	l.closed = true
	conns := make([]*conn, 0, len(l.conns))
	for _, c := range l.conns {
		conns = append(conns, c)
	}
	l.mu.Unlock()

	for _, c := range conns {
		c.stop()
	}
	return l.ln.Close()
}
