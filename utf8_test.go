package websocket

import "testing"

func feedAll(t *testing.T, chunks ...[]byte) bool {
	t.Helper()
	var v utf8Validator
	for _, c := range chunks {
		if !v.Feed(c) {
			return false
		}
	}
	return v.Accepting()
}

func TestUTF8ValidatorASCII(t *testing.T) {
	if !feedAll(t, []byte("hello world")) {
		t.Fatal("expected plain ASCII to validate")
	}
}

func TestUTF8ValidatorMultiByte(t *testing.T) {
	// "héllo wörld" mixes 2-byte and is valid UTF-8.
	if !feedAll(t, []byte("h\xc3\xa9llo w\xc3\xb6rld")) {
		t.Fatal("expected valid multi-byte UTF-8 to validate")
	}
}

func TestUTF8ValidatorSplitAcrossChunks(t *testing.T) {
	// U+00E9 (é) is 0xC3 0xA9; split the two bytes across two Feed calls.
	if !feedAll(t, []byte{0xC3}, []byte{0xA9}) {
		t.Fatal("expected a code point split across chunks to validate")
	}
}

func TestUTF8ValidatorIncompleteAtEnd(t *testing.T) {
	// A lead byte with no continuation byte at all: not accepting at the end.
	if feedAll(t, []byte{0xC3}) {
		t.Fatal("expected an incomplete sequence at message end to be rejected")
	}
}

func TestUTF8ValidatorOverlong(t *testing.T) {
	// 0xE0 0x80 0x80 is an overlong encoding of NUL.
	if feedAll(t, []byte{0xE0, 0x80, 0x80}) {
		t.Fatal("expected overlong encoding to be rejected")
	}
}

func TestUTF8ValidatorSurrogate(t *testing.T) {
	// 0xED 0xA0 0x80 would decode to U+D800, a surrogate half.
	if feedAll(t, []byte{0xED, 0xA0, 0x80}) {
		t.Fatal("expected a surrogate code point to be rejected")
	}
}

func TestUTF8ValidatorBeyondMaxCodepoint(t *testing.T) {
	// 0xF4 0x90 0x80 0x80 would decode past U+10FFFF.
	if feedAll(t, []byte{0xF4, 0x90, 0x80, 0x80}) {
		t.Fatal("expected a code point beyond U+10FFFF to be rejected")
	}
	// 0xF4 0x8F 0xBF 0xBF is exactly U+10FFFF and must be accepted.
	if !feedAll(t, []byte{0xF4, 0x8F, 0xBF, 0xBF}) {
		t.Fatal("expected U+10FFFF itself to validate")
	}
}

func TestUTF8ValidatorInvalidContinuation(t *testing.T) {
	// A lead byte followed by an ASCII byte instead of a continuation byte.
	if feedAll(t, []byte{0xC3, 0x41}) {
		t.Fatal("expected a bad continuation byte to be rejected")
	}
}

func TestUTF8ValidatorReset(t *testing.T) {
	var v utf8Validator
	v.Feed([]byte{0xC3}) // leaves need > 0
	v.Reset()
	if !v.Accepting() {
		t.Fatal("expected Reset to return the validator to the accepting state")
	}
}
