package websocket

import (
	"bytes"
	"testing"

	"github.com/coalflow/websocket/wserrors"
)

func TestFrameRoundTripUnmasked(t *testing.T) {
	f := newFrame()
	f.SetFin()
	f.SetOpcode(OpcodeText)
	f.SetPayload([]byte("hello"))

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}

	got := newFrame()
	if _, err := got.ReadFrom(&buf, 0); err != nil {
		t.Fatal(err)
	}

	if !got.IsFin() {
		t.Error("expected fin bit set")
	}
	if got.Opcode() != OpcodeText {
		t.Errorf("opcode = %v, want text", got.Opcode())
	}
	if string(got.Payload()) != "hello" {
		t.Errorf("payload = %q, want hello", got.Payload())
	}
}

func TestFrameRoundTripMasked(t *testing.T) {
	f := newFrame()
	f.SetFin()
	f.SetOpcode(OpcodeBinary)
	f.SetPayload([]byte{1, 2, 3, 4, 5})
	f.Mask()

	if !f.IsMasked() {
		t.Fatal("expected mask bit set after Mask()")
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}

	got := newFrame()
	if _, err := got.ReadFrom(&buf, 0); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Payload(), []byte{1, 2, 3, 4, 5}) {
		t.Errorf("payload = %v, want unmasked original", got.Payload())
	}
}

func TestFrameExtendedLength16(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 200)

	f := newFrame()
	f.SetFin()
	f.SetOpcode(OpcodeBinary)
	f.SetPayload(payload)

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	if buf.Bytes()[1]&bitmaskPayloadLength != 126 {
		t.Fatalf("expected 126 length marker, got header byte %x", buf.Bytes()[1])
	}

	got := newFrame()
	if _, err := got.ReadFrom(&buf, 0); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Payload(), payload) {
		t.Error("round-tripped payload mismatch")
	}
}

func TestFrameExtendedLength64(t *testing.T) {
	payload := bytes.Repeat([]byte{0xCD}, 70000)

	f := newFrame()
	f.SetFin()
	f.SetOpcode(OpcodeBinary)
	f.SetPayload(payload)

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	if buf.Bytes()[1]&bitmaskPayloadLength != 127 {
		t.Fatalf("expected 127 length marker, got header byte %x", buf.Bytes()[1])
	}

	got := newFrame()
	if _, err := got.ReadFrom(&buf, 0); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Payload(), payload) {
		t.Error("round-tripped payload mismatch")
	}
}

func TestFrameControlFrameMustBeFinal(t *testing.T) {
	f := newFrame()
	f.SetOpcode(OpcodePing) // fin left unset

	var buf bytes.Buffer
	f.WriteTo(&buf)

	got := newFrame()
	_, err := got.ReadFrom(&buf, 0)
	if err == nil {
		t.Fatal("expected error decoding a fragmented control frame")
	}
}

func TestFrameControlFrameTooBig(t *testing.T) {
	f := newFrame()
	f.SetFin()
	f.SetOpcode(OpcodePing)
	f.SetPayload(bytes.Repeat([]byte{0x01}, 126))

	var buf bytes.Buffer
	f.WriteTo(&buf)

	got := newFrame()
	_, err := got.ReadFrom(&buf, 0)
	if err == nil {
		t.Fatal("expected error decoding an oversized control frame")
	}
}

func TestFrameMaxPayloadEnforced(t *testing.T) {
	f := newFrame()
	f.SetFin()
	f.SetOpcode(OpcodeBinary)
	f.SetPayload(bytes.Repeat([]byte{0x01}, 100))

	var buf bytes.Buffer
	f.WriteTo(&buf)

	got := newFrame()
	_, err := got.ReadFrom(&buf, 50)
	if err == nil {
		t.Fatal("expected error when payload exceeds maxPayload")
	}
}

func TestFrameExtendedLength64TopBitSetIsInvalidLength(t *testing.T) {
	// FIN + binary, length marker 127, then an 8-byte length with its top
	// bit set — not encodable by any real payload, since no frame can carry
	// 2^63 bytes; RFC 6455 treats this as a malformed length, distinct from
	// a well-formed length that simply exceeds a configured cap.
	buf := bytes.NewBuffer([]byte{
		0x82, 0x7F,
		0x80, 0, 0, 0, 0, 0, 0, 0,
	})

	got := newFrame()
	_, err := got.ReadFrom(buf, 0)
	if err != wserrors.ErrInvalidPayloadLength {
		t.Fatalf("got %v, want ErrInvalidPayloadLength", err)
	}
}

func TestFramePoolResetsState(t *testing.T) {
	f := acquireFrame()
	f.SetFin()
	f.SetOpcode(OpcodeText)
	f.SetPayload([]byte("leftover"))
	releaseFrame(f)

	f2 := acquireFrame()
	if f2.IsFin() || f2.Opcode() != OpcodeContinuation || len(f2.Payload()) != 0 {
		t.Fatal("acquireFrame returned a frame with stale state")
	}
}
