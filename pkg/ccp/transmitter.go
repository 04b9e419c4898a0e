package ccp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// Transmitter is the client-side state machine: it dials a host, starts a
// session under a plugin name, and exchanges DATA frames. It's grounded on
// the original protocol's SRCDSClient, including its callback-per-outcome
// shape and its mid-connect teardown race.
type Transmitter struct {
	addr       string
	pluginName string
	logger     *slog.Logger

	onConnectionError func(error)
	onConnected       func()
	onCommAccepted    func()
	onNobodyHome      func()
	onCommEnd         func()
	onProtocolError   func()
	onCommError       func()
	onDataReceived    func([]byte)
	onConnectionAbort func()

	mu         sync.Mutex
	mode       Mode
	conn       *conn
	teardown   bool
	cancelDial context.CancelFunc
}

// Option configures a Transmitter's callbacks at construction time.
type Option func(*Transmitter)

func WithConnectionErrorHandler(f func(error)) Option { return func(t *Transmitter) { t.onConnectionError = f } }
func WithConnectedHandler(f func()) Option            { return func(t *Transmitter) { t.onConnected = f } }
func WithCommAcceptedHandler(f func()) Option         { return func(t *Transmitter) { t.onCommAccepted = f } }
func WithNobodyHomeHandler(f func()) Option           { return func(t *Transmitter) { t.onNobodyHome = f } }
func WithCommEndHandler(f func()) Option              { return func(t *Transmitter) { t.onCommEnd = f } }
func WithProtocolErrorHandler(f func()) Option        { return func(t *Transmitter) { t.onProtocolError = f } }
func WithCommErrorHandler(f func()) Option            { return func(t *Transmitter) { t.onCommError = f } }
func WithDataReceivedHandler(f func([]byte)) Option   { return func(t *Transmitter) { t.onDataReceived = f } }
func WithConnectionAbortHandler(f func()) Option      { return func(t *Transmitter) { t.onConnectionAbort = f } }

// NewTransmitter returns a Transmitter for addr (host:port), identifying
// itself under pluginName once SetMode is called.
func NewTransmitter(addr, pluginName string, logger *slog.Logger, opts ...Option) *Transmitter {
	t := &Transmitter{addr: addr, pluginName: pluginName, logger: logger, mode: ModeUndefined}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Mode returns the transmitter's current state.
func (t *Transmitter) Mode() Mode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mode
}

// Start dials the host. It can only be called once per Transmitter.
//
// If Close races Start while the dial is in flight, the dial is cancelled
// via ctx rather than via closing a socket that may not exist yet on the
// caller's side of a blocking connect — the Go analogue of the original's
// close-the-not-yet-connected-socket race, since context cancellation is
// the idiomatic way to interrupt an in-flight DialContext.
func (t *Transmitter) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.mode != ModeUndefined {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	dialCtx, cancel := context.WithCancel(ctx)
	t.mode = ModeConnecting
	t.cancelDial = cancel
	t.mu.Unlock()

	nc, err := (&net.Dialer{}).DialContext(dialCtx, "tcp", t.addr)

	t.mu.Lock()
	teardown := t.teardown
	t.cancelDial = nil
	t.mu.Unlock()

	if teardown {
		if nc != nil {
			_ = nc.Close()
		}
		t.mu.Lock()
		t.mode = ModeEnded
		t.mu.Unlock()
		return nil
	}

	if err != nil {
		t.mu.Lock()
		t.mode = ModeEnded
		t.mu.Unlock()
		if t.onConnectionError != nil {
			t.onConnectionError(err)
		}
		return err
	}

	t.mu.Lock()
	t.mode = ModeConnected
	t.conn = newConn(nc, t.logger)
	c := t.conn
	t.mu.Unlock()

	go c.readLoop(t.onFrame, t.onConnClosed, t.onConnAborted)

	if t.onConnected != nil {
		t.onConnected()
	}
	return nil
}

// SetMode starts a request-based or raw session by sending the
// corresponding COMM_START_* code with this transmitter's plugin name.
// Valid only while the transmitter is ModeConnected.
func (t *Transmitter) SetMode(mode Mode) error {
	if mode != ModeRequestBased && mode != ModeRaw {
		return fmt.Errorf("%w: mode must be RequestBased or Raw", ErrInvalidState)
	}

	t.mu.Lock()
	if t.mode != ModeConnected {
		t.mu.Unlock()
		return ErrInvalidState
	}
	t.mode = mode
	c := t.conn
	t.mu.Unlock()

	code := CommStartRequestBased
	if mode == ModeRaw {
		code = CommStartRaw
	}

	frame := make([]byte, 1+len(t.pluginName))
	frame[0] = byte(code)
	copy(frame[1:], t.pluginName)
	return c.writeFrame(frame)
}

// SendData sends a DATA frame. Valid only in ModeRequestBased or ModeRaw.
func (t *Transmitter) SendData(data []byte) error {
	t.mu.Lock()
	mode := t.mode
	c := t.conn
	t.mu.Unlock()

	if mode != ModeRequestBased && mode != ModeRaw {
		return ErrInvalidState
	}

	frame := make([]byte, 1+len(data))
	frame[0] = byte(Data)
	copy(frame[1:], data)
	return c.writeFrame(frame)
}

// Stop ends an active session cleanly, sending COMM_END. Valid only in
// ModeRequestBased or ModeRaw.
func (t *Transmitter) Stop() error {
	t.mu.Lock()
	if t.mode != ModeRequestBased && t.mode != ModeRaw {
		t.mu.Unlock()
		return ErrInvalidState
	}
	t.mode = ModeEnded
	c := t.conn
	t.mu.Unlock()

	err := c.writeFrame([]byte{byte(CommEnd)})
	c.stop()
	if t.onCommEnd != nil {
		t.onCommEnd()
	}
	return err
}

// Close tears the transmitter down from whatever state it's in, the Go
// analogue of the original's _unload_instance: a no-op if already
// terminal, a cancellation if a dial is in flight, an immediate socket
// close if connected-but-not-yet-started, a clean Stop for an active
// session, and a move straight to ModeEnded if Start was never called.
func (t *Transmitter) Close() {
	t.mu.Lock()
	switch t.mode {
	case ModeConnecting:
		t.teardown = true
		cancel := t.cancelDial
		t.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	case ModeEnded, ModeError:
		t.mu.Unlock()
	case ModeConnected:
		t.mode = ModeEnded
		c := t.conn
		t.mu.Unlock()
		if c != nil {
			c.stop()
		}
	case ModeRequestBased, ModeRaw:
		t.mu.Unlock()
		_ = t.Stop()
	default: // ModeUndefined
		t.mode = ModeEnded
		t.mu.Unlock()
	}
}

func (t *Transmitter) onFrame(payload []byte) {
	if len(payload) == 0 {
		t.endWithProtocolError()
		return
	}

	code := Code(payload[0])
	data := payload[1:]

	switch code {
	case CommEnd:
		t.endCleanly()
	case ProtocolError:
		t.endWithProtocolError()
	case CommAccepted:
		t.invokeCommAccepted()
	case NobodyHome:
		t.endWithHostDisposition(t.onNobodyHome)
	case CommError:
		t.endWithHostDisposition(t.onCommError)
	case Data:
		t.invokeDataReceived(data)
	default:
		t.endWithProtocolError()
	}
}

func (t *Transmitter) endCleanly() {
	t.mu.Lock()
	t.mode = ModeEnded
	c := t.conn
	t.mu.Unlock()
	_ = c.writeFrame([]byte{byte(CommEnd)})
	c.stop()
	if t.onCommEnd != nil {
		t.onCommEnd()
	}
}

func (t *Transmitter) endWithProtocolError() {
	t.mu.Lock()
	t.mode = ModeError
	c := t.conn
	t.mu.Unlock()
	t.logger.Warn("protocol violation", slog.Any("error", ErrProtocolViolation), slog.String("addr", t.addr))
	c.stop()
	if t.onProtocolError != nil {
		t.onProtocolError()
	}
}

// endWithHostDisposition handles NOBODY_HOME and COMM_ERROR: both reply
// with a COMM_END and tear down, differing only in which user callback fires.
func (t *Transmitter) endWithHostDisposition(callback func()) {
	t.mu.Lock()
	t.mode = ModeEnded
	c := t.conn
	t.mu.Unlock()
	_ = c.writeFrame([]byte{byte(CommEnd)})
	c.stop()
	if callback != nil {
		callback()
	}
}

// invokeCommAccepted and invokeDataReceived recover from a panicking user
// callback themselves, applying the specific disposition the governing
// protocol calls for (send COMM_END, close) rather than the connection
// worker's generic abort handling.
func (t *Transmitter) invokeCommAccepted() {
	defer t.recoverCallback()
	if t.onCommAccepted != nil {
		t.onCommAccepted()
	}
}

func (t *Transmitter) invokeDataReceived(data []byte) {
	defer t.recoverCallback()
	if t.onDataReceived != nil {
		t.onDataReceived(data)
	}
}

func (t *Transmitter) recoverCallback() {
	if r := recover(); r != nil {
		t.logger.Error("transmitter callback panicked", slog.Any("panic", r))
		t.mu.Lock()
		t.mode = ModeEnded
		c := t.conn
		t.mu.Unlock()
		if c != nil {
			_ = c.writeFrame([]byte{byte(CommEnd)})
			c.stop()
		}
	}
}

// onConnClosed and onConnAborted are both wired, as in the original, to
// the same user-facing disposition: the client side doesn't distinguish a
// graceful close from an abort, it just reports the session as aborted.
func (t *Transmitter) onConnClosed() {
	t.endAsAborted()
}

func (t *Transmitter) onConnAborted(_ error) {
	t.endAsAborted()
}

func (t *Transmitter) endAsAborted() {
	t.mu.Lock()
	if t.mode == ModeEnded || t.mode == ModeError {
		t.mu.Unlock()
		return
	}
	t.mode = ModeEnded
	t.mu.Unlock()

	if t.onConnectionAbort != nil {
		t.onConnectionAbort()
	}
}
