package ccp

import (
	"log/slog"
	"sync"
	"unicode/utf8"
)

// receiver is the host-side state machine for a single accepted
// connection. It's grounded closely on the original protocol's
// CCPReceiveClient.on_message_receive, rule for rule.
type receiver struct {
	conn     *conn
	registry *Registry
	peerAddr string
	logger   *slog.Logger

	stateMu    sync.Mutex
	mode       Mode
	pluginName string
	rawHandler RawHandler
}

func newReceiver(c *conn, registry *Registry, peerAddr string, logger *slog.Logger) *receiver {
	return &receiver{
		conn:     c,
		registry: registry,
		peerAddr: peerAddr,
		logger:   logger,
		mode:     ModeUndefined,
	}
}

// onFrame dispatches a single received frame. It's called from the
// connection's single reader goroutine, so the mode/pluginName reads and
// writes it performs directly don't themselves need the mutex for
// ordering — the mutex exists to keep them race-free against the
// SessionHandle methods, which a raw handler may call from any goroutine.
func (r *receiver) onFrame(payload []byte) {
	if len(payload) == 0 {
		r.protocolError()
		return
	}

	code := Code(payload[0])
	arg := payload[1:]

	// Rule: COMM_END is accepted in any mode, and always ends the session.
	if code == CommEnd {
		r.stateMu.Lock()
		r.dropRawHandlerLocked()
		r.mode = ModeEnded
		r.stateMu.Unlock()
		r.conn.stop()
		return
	}

	r.stateMu.Lock()
	mode := r.mode
	r.stateMu.Unlock()

	if mode == ModeEndRequestSent {
		// Only COMM_END is tolerated once we've sent a terminating code
		// (COMM_END, NOBODY_HOME or COMM_ERROR) ourselves.
		r.protocolError()
		return
	}

	switch code {
	case CommStartRequestBased, CommStartRaw:
		r.handleStart(code, arg, mode)
	case Data:
		r.handleData(arg, mode)
	default:
		r.protocolError()
	}
}

func (r *receiver) handleStart(code Code, arg []byte, mode Mode) {
	if mode != ModeUndefined {
		r.protocolError()
		return
	}

	if !utf8.Valid(arg) {
		r.protocolError()
		return
	}
	name := string(arg)

	switch code {
	case CommStartRequestBased:
		if _, ok := r.registry.lookupRequestBased(name); ok {
			r.setModeAndPlugin(ModeRequestBased, name)
			r.send(CommAccepted)
			return
		}
		r.setModeAndPlugin(ModeEndRequestSent, name)
		r.send(NobodyHome)

	case CommStartRaw:
		factory, ok := r.registry.lookupRaw(name)
		if !ok {
			r.setModeAndPlugin(ModeEndRequestSent, name)
			r.send(NobodyHome)
			return
		}

		handler, err := r.constructRawHandler(factory, name)
		if err != nil {
			r.logger.Error("raw handler construction failed",
				slog.String("plugin", name), slog.Any("error", err))
			r.setModeAndPlugin(ModeEndRequestSent, name)
			r.send(CommError)
			return
		}

		r.stateMu.Lock()
		r.pluginName = name
		r.mode = ModeRaw
		r.rawHandler = handler
		r.stateMu.Unlock()
		r.send(CommAccepted)
	}
}

// constructRawHandler invokes factory, recovering from a panic and
// reporting it the same way a returned error is reported: visibly logged,
// degrading the session rather than tearing down the connection.
func (r *receiver) constructRawHandler(factory RawHandlerFactory, name string) (handler RawHandler, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = recoveredError(rec)
		}
	}()
	return factory(r.peerAddr, &SessionHandle{recv: r})
}

func (r *receiver) handleData(arg []byte, mode Mode) {
	switch mode {
	case ModeRequestBased:
		r.stateMu.Lock()
		name := r.pluginName
		r.stateMu.Unlock()

		fn, ok := r.registry.lookupRequestBased(name)
		if !ok {
			r.setModeAndPlugin(ModeEndRequestSent, name)
			r.send(NobodyHome)
			return
		}

		resp, err := r.invokeRequestHandler(fn, arg)
		if err != nil {
			r.logger.Error("request handler failed",
				slog.String("plugin", name), slog.Any("error", err))
			r.setModeAndPlugin(ModeEndRequestSent, name)
			r.send(CommError)
			return
		}
		r.sendPayload(Data, resp)

	case ModeRaw:
		r.stateMu.Lock()
		h := r.rawHandler
		r.stateMu.Unlock()
		if h == nil {
			return
		}
		r.deliverRawData(h, arg)

	default:
		r.protocolError()
	}
}

func (r *receiver) invokeRequestHandler(fn RequestHandlerFunc, arg []byte) (resp []byte, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = recoveredError(rec)
		}
	}()
	return fn(r.peerAddr, arg)
}

// deliverRawData invokes a live raw handler's data callback, recovering
// from a panic since the interface contract has no error return for it:
// a misbehaving handler is logged and otherwise ignored, rather than
// tearing the connection down, since the governing protocol defines no
// error disposition for this path.
func (r *receiver) deliverRawData(h RawHandler, data []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("raw handler OnDataReceived panicked", slog.Any("panic", rec))
		}
	}()
	h.OnDataReceived(data)
}

func (r *receiver) protocolError() {
	r.stateMu.Lock()
	r.dropRawHandlerLocked()
	r.mode = ModeError
	r.stateMu.Unlock()
	r.logger.Warn("protocol violation", slog.Any("error", ErrProtocolViolation), slog.String("peer", r.peerAddr))
	r.send(ProtocolError)
	r.conn.stop()
}

func (r *receiver) send(code Code) {
	if err := r.conn.writeFrame([]byte{byte(code)}); err != nil {
		r.logger.Debug("failed to send frame", slog.String("code", code.String()), slog.Any("error", err))
	}
}

func (r *receiver) sendPayload(code Code, payload []byte) {
	frame := make([]byte, 1+len(payload))
	frame[0] = byte(code)
	copy(frame[1:], payload)
	if err := r.conn.writeFrame(frame); err != nil {
		r.logger.Debug("failed to send frame", slog.String("code", code.String()), slog.Any("error", err))
	}
}

func (r *receiver) setModeAndPlugin(mode Mode, name string) {
	r.stateMu.Lock()
	r.mode = mode
	r.pluginName = name
	r.stateMu.Unlock()
}

// dropRawHandlerLocked clears the live raw handler reference without
// invoking OnConnectionAbort: it must be called with stateMu held, and
// only from paths that represent a normal (non-abort) end of session.
func (r *receiver) dropRawHandlerLocked() {
	r.rawHandler = nil
}

// onConnClosed is called by the connection worker when the peer closed the
// socket at a frame boundary without ever sending a COMM_END. A live raw
// handler sees this the same way as a transport abort: if the session was
// in ModeRaw, its OnConnectionAbort fires exactly once.
func (r *receiver) onConnClosed() {
	r.stateMu.Lock()
	wasRaw := r.mode == ModeRaw
	h := r.rawHandler
	r.dropRawHandlerLocked()
	if r.mode != ModeEnded && r.mode != ModeError {
		r.mode = ModeEnded
	}
	r.stateMu.Unlock()

	if wasRaw && h != nil {
		r.deliverAbort(h)
	}
}

// onConnAborted is called by the connection worker when the socket failed
// mid-frame. If the session was in ModeRaw with a live handler, its
// OnConnectionAbort fires exactly once: the mode flip happens under the
// same lock a racing SessionHandle.Stop/Unload call would also take, so
// whichever one runs first wins and the other sees a non-Raw mode.
func (r *receiver) onConnAborted(_ error) {
	r.stateMu.Lock()
	wasRaw := r.mode == ModeRaw
	h := r.rawHandler
	r.rawHandler = nil
	r.mode = ModeEnded
	r.stateMu.Unlock()

	if wasRaw && h != nil {
		r.deliverAbort(h)
	}
}

func (r *receiver) deliverAbort(h RawHandler) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("raw handler OnConnectionAbort panicked", slog.Any("panic", rec))
		}
	}()
	h.OnConnectionAbort()
}

func (r *receiver) rawSendData(data []byte) error {
	r.stateMu.Lock()
	if r.mode != ModeRaw {
		r.stateMu.Unlock()
		return ErrInvalidState
	}
	r.stateMu.Unlock()

	r.sendPayload(Data, data)
	return nil
}

func (r *receiver) rawStop() error {
	r.stateMu.Lock()
	if r.mode != ModeRaw {
		r.stateMu.Unlock()
		return ErrInvalidState
	}
	r.rawHandler = nil
	r.mode = ModeEndRequestSent
	r.stateMu.Unlock()

	r.send(CommEnd)
	return nil
}

func (r *receiver) rawUnload() error {
	r.stateMu.Lock()
	if r.mode != ModeRaw {
		r.stateMu.Unlock()
		return ErrInvalidState
	}
	r.rawHandler = nil
	r.mode = ModeEndRequestSent
	r.stateMu.Unlock()

	r.send(NobodyHome)
	return nil
}
