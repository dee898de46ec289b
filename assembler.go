package websocket

import "github.com/coalflow/websocket/wserrors"

// Message is a complete, reassembled WebSocket message: either a whole
// single-frame message or the concatenation of a fragmented sequence.
type Message struct {
	Type MessageType
	Data []byte
}

// messageAssembler joins a run of data frames (Text/Binary followed by zero
// or more Continuation frames) into a Message, enforcing the fragmentation
// rules of section 5.4 of RFC 6455: a data opcode may not appear while a
// message is already in progress, a continuation frame may not appear
// without one, and a text message's payload must be valid UTF-8 once all of
// its fragments are taken together. Control frames never reach the
// assembler — the caller interleaves them around fragmented messages itself.
//
// Fragments accumulate directly into buf rather than as a list of the
// per-frame slices they arrived in: Recv hands Push a payload it owns for
// exactly one call, so each payload is copied into buf as it arrives. Once
// the message is complete, buf is copied into a freshly allocated slice for
// the returned Message, and buf is kept for the next message.
type messageAssembler struct {
	active bool
	mtype  MessageType
	buf    []byte
	utf8   utf8Validator

	maxMessageSize int
}

func newMessageAssembler(maxMessageSize int) *messageAssembler {
	return &messageAssembler{maxMessageSize: maxMessageSize}
}

// Push feeds one data frame into the assembler. It returns a non-nil Message
// once f completes a message (f.IsFin()); otherwise it returns (nil, nil) to
// indicate the message is still being assembled.
func (a *messageAssembler) Push(f *Frame) (*Message, error) {
	opcode := f.Opcode()

	if opcode == OpcodeContinuation {
		if !a.active {
			return nil, wserrors.ErrUnexpectedContinuation
		}
	} else {
		if a.active {
			return nil, wserrors.ErrExpectedContinuation
		}
		a.active = true
		a.mtype = MessageType(opcode)
		a.buf = a.buf[:0]
		a.utf8.Reset()
	}

	payload := f.Payload()

	if a.maxMessageSize > 0 && len(a.buf)+len(payload) > a.maxMessageSize {
		a.active = false
		return nil, wserrors.ErrMessageTooBig
	}

	if a.mtype == MessageText {
		if !a.utf8.Feed(payload) {
			a.active = false
			return nil, wserrors.ErrInvalidUTF8
		}
	}

	a.buf = append(a.buf, payload...)

	if !f.IsFin() {
		return nil, nil
	}

	a.active = false
	if a.mtype == MessageText && !a.utf8.Accepting() {
		return nil, wserrors.ErrInvalidUTF8
	}

	out := make([]byte, len(a.buf))
	copy(out, a.buf)
	return &Message{Type: a.mtype, Data: out}, nil
}

// InProgress reports whether a fragmented message is currently being
// assembled — i.e. a Text or Binary frame has arrived without its matching
// fin frame yet.
func (a *messageAssembler) InProgress() bool {
	return a.active
}

// Abandon discards any partially assembled message, used when the
// connection closes or errors out mid-fragment.
func (a *messageAssembler) Abandon() {
	a.active = false
	a.buf = a.buf[:0]
	a.utf8.Reset()
}
