package websocket

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/coalflow/websocket/wserrors"
)

// Frame is a single RFC 6455 wire frame. It is the unit the codec decodes and
// encodes; the assembler joins a run of frames into a Message.
type Frame struct {
	header  [2]byte
	extra   [8]byte // extended length (2 or 8 bytes) or unused
	mask    [4]byte
	payload []byte
}

func newFrame() *Frame {
	return &Frame{payload: make([]byte, 0, 128)}
}

func (f *Frame) reset() {
	f.header = [2]byte{}
	f.extra = [8]byte{}
	f.mask = [4]byte{}
	f.payload = f.payload[:0]
}

func (f *Frame) IsFin() bool  { return f.header[0]&bitFIN != 0 }
func (f *Frame) IsRSV1() bool { return f.header[0]&bitRSV1 != 0 }
func (f *Frame) IsRSV2() bool { return f.header[0]&bitRSV2 != 0 }
func (f *Frame) IsRSV3() bool { return f.header[0]&bitRSV3 != 0 }

func (f *Frame) Opcode() Opcode { return Opcode(f.header[0] & bitmaskOpcode) }

func (f *Frame) IsMasked() bool { return f.header[1]&bitIsMasked != 0 }

func (f *Frame) Payload() []byte { return f.payload }

func (f *Frame) SetFin() { f.header[0] |= bitFIN }

func (f *Frame) SetOpcode(c Opcode) {
	f.header[0] &^= bitmaskOpcode
	f.header[0] |= byte(c) & bitmaskOpcode
}

// SetPayload copies b into the frame's payload buffer.
func (f *Frame) SetPayload(b []byte) {
	f.payload = append(f.payload[:0], b...)
}

// Mask masks the payload in place with a freshly generated key and sets the
// mask bit. Used by clients: RFC 6455 requires every client-to-server frame
// to be masked.
func (f *Frame) Mask() {
	f.header[1] |= bitIsMasked
	genMask(f.mask[:])
	applyMask(f.mask[:], f.payload)
}

// ReadFrom decodes one frame from r, validating the structural rules that do
// not require connection state: minimal-length encoding, the high bit of a
// 64-bit length, and the control-frame fin/length constraints. Rules that
// depend on role (RSV bits, mask direction, reserved opcodes) are checked by
// the caller, since a bare Frame does not know its connection's role.
func (f *Frame) ReadFrom(r io.Reader, maxPayload int) (int64, error) {
	f.reset()

	var nt int64
	n, err := io.ReadFull(r, f.header[:])
	nt += int64(n)
	if err != nil {
		return nt, err
	}

	length := uint64(f.header[1] & bitmaskPayloadLength)
	switch length {
	case 126:
		n, err = io.ReadFull(r, f.extra[:2])
		nt += int64(n)
		if err != nil {
			return nt, err
		}
		length = uint64(binary.BigEndian.Uint16(f.extra[:2]))
		if length < 126 {
			return nt, wserrors.ErrMinimalLengthViolation
		}
	case 127:
		n, err = io.ReadFull(r, f.extra[:8])
		nt += int64(n)
		if err != nil {
			return nt, err
		}
		length = binary.BigEndian.Uint64(f.extra[:8])
		if length > math.MaxInt64 {
			return nt, wserrors.ErrInvalidPayloadLength
		}
		if length < 65536 {
			return nt, wserrors.ErrMinimalLengthViolation
		}
	}

	opcode := f.Opcode()
	if opcode.IsControl() {
		if !f.IsFin() {
			return nt, wserrors.ErrInvalidControlFrame
		}
		if length > MaxControlFramePayload {
			return nt, wserrors.ErrControlFrameTooBig
		}
	}

	if maxPayload > 0 && length > uint64(maxPayload) {
		return nt, wserrors.ErrPayloadTooBig
	}

	if f.IsMasked() {
		n, err = io.ReadFull(r, f.mask[:])
		nt += int64(n)
		if err != nil {
			return nt, err
		}
	}

	if length > 0 {
		f.payload = growPayload(f.payload, int(length))
		n, err = io.ReadFull(r, f.payload)
		nt += int64(n)
		if err != nil {
			return nt, err
		}
		if f.IsMasked() {
			applyMask(f.mask[:], f.payload)
		}
	}

	return nt, nil
}

func growPayload(b []byte, n int) []byte {
	if cap(b) < n {
		return make([]byte, n)
	}
	return b[:n]
}

// WriteTo encodes the frame onto w, choosing the smallest length field that
// fits the payload.
func (f *Frame) WriteTo(w io.Writer) (int64, error) {
	var nt int64

	n := len(f.payload)
	header := f.header
	var extra []byte
	switch {
	case n > 65535:
		header[1] = header[1]&bitIsMasked | 127
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(n))
		extra = buf[:]
	case n > 125:
		header[1] = header[1]&bitIsMasked | 126
		var buf [2]byte
		binary.BigEndian.PutUint16(buf[:], uint16(n))
		extra = buf[:]
	default:
		header[1] = header[1]&bitIsMasked | byte(n)
	}

	wn, err := w.Write(header[:])
	nt += int64(wn)
	if err != nil {
		return nt, err
	}

	if len(extra) > 0 {
		wn, err = w.Write(extra)
		nt += int64(wn)
		if err != nil {
			return nt, err
		}
	}

	if f.IsMasked() {
		wn, err = w.Write(f.mask[:])
		nt += int64(wn)
		if err != nil {
			return nt, err
		}
	}

	if n > 0 {
		wn, err = w.Write(f.payload)
		nt += int64(wn)
		if err != nil {
			return nt, err
		}
	}

	return nt, nil
}
