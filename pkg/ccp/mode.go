package ccp

// Mode is a session's communication mode, shared by the host-side receiver
// and the client-side transmitter (which alone uses Connecting/Connected).
type Mode int

const (
	// ModeUndefined is the initial state, before a COMM_START_* handshake
	// (receiver) or before Start/SetMode has run (transmitter).
	ModeUndefined Mode = iota

	// ModeConnecting and ModeConnected are transmitter-only transient
	// states: a dial is in flight, or a socket is open but no
	// COMM_START_* has been sent yet.
	ModeConnecting
	ModeConnected

	// ModeRequestBased and ModeRaw are the two live session modes.
	ModeRequestBased
	ModeRaw

	// ModeEndRequestSent means this side has sent a terminating code
	// (COMM_END, NOBODY_HOME or COMM_ERROR) and no further codes except
	// COMM_END are accepted from the peer.
	ModeEndRequestSent

	// ModeEnded is the terminal, clean-shutdown state.
	ModeEnded

	// ModeError is the terminal, protocol-violation state.
	ModeError
)

func (m Mode) String() string {
	switch m {
	case ModeUndefined:
		return "UNDEFINED"
	case ModeConnecting:
		return "CONNECTING"
	case ModeConnected:
		return "CONNECTED"
	case ModeRequestBased:
		return "REQUEST_BASED"
	case ModeRaw:
		return "RAW"
	case ModeEndRequestSent:
		return "END_REQUEST_SENT"
	case ModeEnded:
		return "ENDED"
	case ModeError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
