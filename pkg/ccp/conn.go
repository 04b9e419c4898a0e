package ccp

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
)

// conn is the per-socket worker: one goroutine reads and dispatches frames,
// while writes from any goroutine are serialized through a single mutex.
// Closing is idempotent and distinguishes a self-initiated close from a
// genuine peer-side close or abort, mirroring SagerNet-smux's dieOnce
// pattern in Session.Close.
type conn struct {
	nc     net.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	stopOnce sync.Once
	closed   atomic.Bool
}

func newConn(nc net.Conn, logger *slog.Logger) *conn {
	return &conn{nc: nc, logger: logger}
}

// onFrameFunc handles one received frame's payload. It must not block on
// anything that depends on further frames arriving.
type onFrameFunc func(payload []byte)

// readLoop reads and dispatches frames until the connection ends, then
// calls exactly one of onClose or onAbort (never both), unless the
// connection was closed by this side itself, in which case neither fires:
// a self-initiated stop already carries its own notification path.
func (c *conn) readLoop(onFrame onFrameFunc, onClose func(), onAbort func(err error)) {
	for {
		payload, err := ReadFrame(c.nc)
		if err != nil {
			if c.closed.Load() {
				return
			}
			if errors.Is(err, ErrConnectionClosed) {
				onClose()
			} else {
				onAbort(err)
			}
			c.stop()
			return
		}

		if !c.dispatch(onFrame, payload) {
			// A bug in the handling code panicked; treat it the same as a
			// transport abort, but the panic itself was already logged by
			// dispatch for operator visibility.
			if !c.closed.Load() {
				onAbort(fmt.Errorf("%w: frame handler panicked", ErrAborted))
			}
			c.stop()
			return
		}
	}
}

// dispatch calls onFrame, recovering from any panic so that one
// misbehaving session can never take down the rest of the process. It
// returns false if a panic was recovered.
func (c *conn) dispatch(onFrame onFrameFunc, payload []byte) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("frame handler panicked", slog.Any("panic", r))
			ok = false
		}
	}()
	onFrame(payload)
	return true
}

// writeFrame serializes concurrent writers: multiple goroutines (a raw
// handler's own threads among them) may call this at once.
func (c *conn) writeFrame(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteFrame(c.nc, payload)
}

// stop closes the underlying socket exactly once. Any read already blocked
// in readLoop unblocks with an error that readLoop recognizes as
// self-inflicted via the closed flag, and swallows.
func (c *conn) stop() {
	c.stopOnce.Do(func() {
		c.closed.Store(true)
		_ = c.nc.Close()
	})
}

func (c *conn) RemoteAddr() net.Addr {
	return c.nc.RemoteAddr()
}
