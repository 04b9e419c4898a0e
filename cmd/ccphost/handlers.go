package main

import "log/slog"

// teeHandler is a demo raw handler: it logs every byte stream it receives
// and every abort, without talking back to the peer.
type teeHandler struct {
	peerAddr string
}

func newTeeHandler(peerAddr string) *teeHandler {
	return &teeHandler{peerAddr: peerAddr}
}

func (h *teeHandler) OnDataReceived(data []byte) {
	slog.Debug("tee handler received data", slog.String("peer", h.peerAddr), slog.Int("bytes", len(data)))
}

func (h *teeHandler) OnConnectionAbort() {
	slog.Debug("tee handler's session was aborted", slog.String("peer", h.peerAddr))
}
