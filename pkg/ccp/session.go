package ccp

// SessionHandle is the capability object a raw handler receives at
// construction time, and may call from any goroutine for the lifetime of
// the session. It wraps the subset of the receiver's state that's safe to
// expose across goroutines: send_data, stop, and unload from the original
// protocol's RawReceiver contract.
type SessionHandle struct {
	recv *receiver
}

// SendData sends a DATA frame carrying data to the peer. Valid only while
// the session is in ModeRaw.
func (h *SessionHandle) SendData(data []byte) error {
	return h.recv.rawSendData(data)
}

// Stop ends the session with a COMM_END, handing control of the teardown
// back to the protocol layer. Valid only while the session is in ModeRaw.
func (h *SessionHandle) Stop() error {
	return h.recv.rawStop()
}

// Unload ends the session with a NOBODY_HOME, as if the plugin had never
// been registered. Valid only while the session is in ModeRaw.
func (h *SessionHandle) Unload() error {
	return h.recv.rawUnload()
}

// PeerAddr returns the remote address of the connection this session
// belongs to.
func (h *SessionHandle) PeerAddr() string {
	return h.recv.peerAddr
}
