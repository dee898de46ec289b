package websocket

import "github.com/coalflow/websocket/wserrors"

// connState is the lifecycle of a connection: a fresh connection starts in
// stateHandshake, moves to stateActive once the opening handshake completes,
// and from there to one of the two closing states depending on who
// initiates the close handshake, finally settling in stateClosed once the
// underlying transport is torn down.
type connState uint8

const (
	stateHandshake     connState = iota // opening handshake not yet complete
	stateActive                         // open; data and control frames flow both ways
	stateClosedByUs                     // we sent Close, waiting for the peer's echo
	stateClosedByPeer                   // peer sent Close, we have echoed it
	stateCloseAcked                     // both close frames have been exchanged
	stateClosed                         // transport torn down
)

func (s connState) String() string {
	switch s {
	case stateHandshake:
		return "handshake"
	case stateActive:
		return "active"
	case stateClosedByUs:
		return "closed-by-us"
	case stateClosedByPeer:
		return "closed-by-peer"
	case stateCloseAcked:
		return "close-acked"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// stateMachine tracks a single connection's lifecycle and decides, for each
// incoming control frame, what the connection should do next. It holds no
// I/O of its own — conn.go drives it and performs the actual reads/writes.
type stateMachine struct {
	role  Role
	state connState

	// closeCode/closeReason record the code and reason carried by whichever
	// Close frame initiated the close handshake — ours if we sent first,
	// the peer's if they did — for CloseInfo's return value.
	closeCode   CloseCode
	closeReason string
}

func newStateMachine(role Role) *stateMachine {
	return &stateMachine{role: role, state: stateHandshake}
}

// HandshakeDone transitions out of stateHandshake once the opening handshake
// has completed successfully.
func (sm *stateMachine) HandshakeDone() {
	sm.state = stateActive
}

// CanSend reports whether an application message or control frame may still
// be written to the peer.
func (sm *stateMachine) CanSend() bool {
	return sm.state == stateActive
}

// CanReceiveData reports whether a Text/Binary/Continuation frame is legal to
// receive in the current state. Once either side has sent a Close frame,
// further data frames from the peer are discarded rather than treated as an
// error.
func (sm *stateMachine) CanReceiveData() bool {
	return sm.state == stateActive
}

// InitiateClose records that we are the one sending the first Close frame,
// moving stateActive -> stateClosedByUs. It is a protocol error to initiate a
// close more than once, and cc must be a code this engine is allowed to send.
func (sm *stateMachine) InitiateClose(cc CloseCode, reason string) error {
	if sm.state != stateActive {
		return wserrors.ErrSendAfterClose
	}
	if !ValidCloseCode(cc) {
		return wserrors.ErrInvalidCloseCode
	}
	sm.state = stateClosedByUs
	sm.closeCode, sm.closeReason = cc, reason
	return nil
}

// closeAction tells the caller what to do after ObserveClose returns.
type closeAction uint8

const (
	// closeActionEcho means the caller must echo the received Close frame
	// back to the peer verbatim (same code, same reason) and then the
	// transport may be torn down.
	closeActionEcho closeAction = iota
	// closeActionAcked means a close we initiated has now been acknowledged
	// by the peer's echo; the transport may be torn down.
	closeActionAcked
	// closeActionIgnore means a Close frame arrived after the handshake was
	// already complete on both sides; it is discarded.
	closeActionIgnore
)

// ObserveClose processes an incoming Close frame and returns the resulting
// action. When the peer started the close handshake, cc/reason are recorded
// for CloseInfo; when we started it, the code and reason we sent stay
// recorded.
func (sm *stateMachine) ObserveClose(cc CloseCode, reason string) closeAction {
	switch sm.state {
	case stateActive:
		sm.state = stateClosedByPeer
		sm.closeCode, sm.closeReason = cc, reason
		return closeActionEcho
	case stateClosedByUs:
		sm.state = stateCloseAcked
		return closeActionAcked
	default:
		return closeActionIgnore
	}
}

// Closed marks the connection fully torn down, after the transport has been
// closed.
func (sm *stateMachine) Closed() {
	sm.state = stateClosed
}

// IsClosed reports whether the transport has been torn down.
func (sm *stateMachine) IsClosed() bool {
	return sm.state == stateClosed
}

// CloseInfo returns the code and reason recorded by whichever Close frame
// started the close handshake.
func (sm *stateMachine) CloseInfo() (CloseCode, string) {
	return sm.closeCode, sm.closeReason
}
