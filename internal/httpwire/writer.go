package httpwire

import (
	"bytes"
	"fmt"
)

// WriteRequest serializes a GET request line, headers, and terminating blank
// line to buf. The opening handshake is always a GET with no body.
func WriteRequest(buf *bytes.Buffer, target string, headers Header, order []string) {
	fmt.Fprintf(buf, "GET %s HTTP/1.1\r\n", target)
	writeHeaders(buf, headers, order)
}

// WriteStatusLine serializes a status line.
func WriteStatusLine(buf *bytes.Buffer, code int, reason string) {
	fmt.Fprintf(buf, "HTTP/1.1 %d %s\r\n", code, reason)
}

// WriteHeaders serializes headers in order, followed by the blank line that
// terminates the header block. order lists the canonical keys to emit, and
// exists so callers control header ordering the way a hand-built handshake
// response would (Upgrade/Connection/Accept before any subprotocol line).
func WriteHeaders(buf *bytes.Buffer, headers Header, order []string) {
	writeHeaders(buf, headers, order)
}

func writeHeaders(buf *bytes.Buffer, headers Header, order []string) {
	for _, key := range order {
		for _, v := range headers[canonicalKey(key)] {
			fmt.Fprintf(buf, "%s: %s\r\n", key, v)
		}
	}
	buf.WriteString("\r\n")
}
