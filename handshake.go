package websocket

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/coalflow/websocket/internal/httpwire"
	"github.com/coalflow/websocket/wserrors"
)

// deadlineConn is the slice of net.Conn the handshake needs to bound its own
// running time; any transport.Stream implementation satisfies it.
type deadlineConn interface {
	io.Reader
	io.Writer
	SetDeadline(t time.Time) error
}

// acceptKey derives the Sec-WebSocket-Accept value from a client's
// Sec-WebSocket-Key, per RFC 6455 section 4.2.2 item 5.5.
func acceptKey(clientKey string) string {
	h := sha1.New()
	h.Write([]byte(clientKey))
	h.Write([]byte(GUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// newClientKey generates a fresh, random 16-byte Sec-WebSocket-Key.
func newClientKey() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err) // crypto/rand.Read failing means the OS entropy source is broken
	}
	return base64.StdEncoding.EncodeToString(b[:])
}

// handshakeResult carries what the opening handshake negotiated beyond the
// upgrade itself.
type handshakeResult struct {
	Subprotocol string
}

// clientHandshake performs the client side of the opening handshake over
// conn: it sends the upgrade request for u and validates the server's
// response, enforcing opts.HandshakeTimeout and opts.HandshakeHeaderLimit.
// clientHandshake performs the client side of the opening handshake over
// conn. br is the buffered reader the resulting Conn will keep using for
// every read afterwards; passing the same br in avoids losing any bytes
// the handshake's read of the status line and headers buffered ahead of
// themselves. A nil br makes clientHandshake use a throwaway one, which is
// only safe when nothing will be read from conn again.
func clientHandshake(conn deadlineConn, br *bufio.Reader, u *url.URL, opts *Options) (handshakeResult, error) {
	if opts.HandshakeTimeout > 0 {
		conn.SetDeadline(time.Now().Add(opts.HandshakeTimeout))
		defer conn.SetDeadline(time.Time{})
	}

	sentKey := newClientKey()
	expected := acceptKey(sentKey)

	headers := httpwire.NewHeader()
	headers.Set("Host", u.Host)
	headers.Set("Upgrade", "websocket")
	headers.Set("Connection", "Upgrade")
	headers.Set("Sec-WebSocket-Key", sentKey)
	headers.Set("Sec-WebSocket-Version", "13")
	order := []string{"Host", "Upgrade", "Connection", "Sec-WebSocket-Key", "Sec-WebSocket-Version"}
	if opts.Origin != "" {
		headers.Set("Origin", opts.Origin)
		order = append(order, "Origin")
	}
	if len(opts.Subprotocols) > 0 {
		headers.Set("Sec-WebSocket-Protocol", strings.Join(opts.Subprotocols, ", "))
		order = append(order, "Sec-WebSocket-Protocol")
	}

	target := u.RequestURI()
	var buf bytes.Buffer
	httpwire.WriteRequest(&buf, target, headers, order)
	if _, err := conn.Write(buf.Bytes()); err != nil {
		return handshakeResult{}, err
	}

	if br == nil {
		br = bufio.NewReader(conn)
	}
	lr := httpwire.NewLimitedReader(br, opts.HandshakeHeaderLimit)

	status, err := httpwire.ReadStatusLine(lr)
	if err != nil {
		return handshakeResult{}, translateHandshakeErr(err)
	}
	respHeaders, err := httpwire.ReadHeaders(lr)
	if err != nil {
		return handshakeResult{}, translateHandshakeErr(err)
	}

	if status.StatusCode != 101 {
		return handshakeResult{}, fmt.Errorf("%w: server responded %d %s", wserrors.ErrCannotUpgrade, status.StatusCode, status.Reason)
	}
	if !respHeaders.HasToken("Upgrade", "websocket") {
		return handshakeResult{}, wserrors.ErrCannotUpgrade
	}
	if !respHeaders.HasToken("Connection", "upgrade") {
		return handshakeResult{}, wserrors.ErrCannotUpgrade
	}
	if respHeaders.Get("Sec-WebSocket-Accept") != expected {
		return handshakeResult{}, wserrors.ErrCannotUpgrade
	}

	var result handshakeResult
	if proto := respHeaders.Get("Sec-WebSocket-Protocol"); proto != "" {
		if !containsFold(opts.Subprotocols, proto) {
			return handshakeResult{}, wserrors.ErrCannotUpgrade
		}
		result.Subprotocol = proto
	}

	return result, nil
}

// serverHandshake performs the server side of the opening handshake over
// conn: it reads and validates the client's upgrade request and writes
// either a 101 response or an error response, enforcing
// opts.HandshakeTimeout and opts.HandshakeHeaderLimit. br, if non-nil, is a
// reader that may already have buffered bytes read ahead of the handshake
// (e.g. by an HTTP server that peeked at the request first); a nil br makes
// serverHandshake use a throwaway bufio.Reader over conn.
func serverHandshake(conn deadlineConn, br *bufio.Reader, opts *Options) (handshakeResult, error) {
	if opts.HandshakeTimeout > 0 {
		conn.SetDeadline(time.Now().Add(opts.HandshakeTimeout))
		defer conn.SetDeadline(time.Time{})
	}
	if br == nil {
		br = bufio.NewReader(conn)
	}
	lr := httpwire.NewLimitedReader(br, opts.HandshakeHeaderLimit)

	reqLine, err := httpwire.ReadRequestLine(lr)
	if err != nil {
		err = translateHandshakeErr(err)
		writeErrorResponse(conn, 400, "Bad Request", err.Error())
		return handshakeResult{}, err
	}
	headers, err := httpwire.ReadHeaders(lr)
	if err != nil {
		err = translateHandshakeErr(err)
		writeErrorResponse(conn, 400, "Bad Request", err.Error())
		return handshakeResult{}, err
	}

	if headers.Get("Sec-WebSocket-Version") != "13" {
		writeVersionError(conn)
		return handshakeResult{}, fmt.Errorf("%w: unsupported Sec-WebSocket-Version", wserrors.ErrCannotUpgrade)
	}

	if fail := validateUpgradeRequest(reqLine, headers); fail != "" {
		writeErrorResponse(conn, 400, "Bad Request", fail)
		return handshakeResult{}, fmt.Errorf("%w: %s", wserrors.ErrCannotUpgrade, fail)
	}

	clientKey := headers.Get("Sec-WebSocket-Key")

	var result handshakeResult
	if len(opts.Subprotocols) > 0 {
		offered := splitCommaList(headers.Get("Sec-WebSocket-Protocol"))
		for _, want := range opts.Subprotocols {
			if containsFold(offered, want) {
				result.Subprotocol = want
				break
			}
		}
	}

	respHeaders := httpwire.NewHeader()
	respHeaders.Set("Upgrade", "websocket")
	respHeaders.Set("Connection", "Upgrade")
	respHeaders.Set("Sec-WebSocket-Accept", acceptKey(clientKey))
	order := []string{"Upgrade", "Connection", "Sec-WebSocket-Accept"}
	if result.Subprotocol != "" {
		respHeaders.Set("Sec-WebSocket-Protocol", result.Subprotocol)
		order = append(order, "Sec-WebSocket-Protocol")
	}

	var buf bytes.Buffer
	httpwire.WriteStatusLine(&buf, 101, "Switching Protocols")
	httpwire.WriteHeaders(&buf, respHeaders, order)
	if _, err := conn.Write(buf.Bytes()); err != nil {
		return handshakeResult{}, err
	}

	return result, nil
}

// validateUpgradeRequest checks the request line and headers against RFC
// 6455 section 4.2.1, returning a human-readable reason the request is
// rejected, or "" if it is valid.
func validateUpgradeRequest(line httpwire.RequestLine, h httpwire.Header) string {
	if line.Method != "GET" {
		return "method must be GET"
	}
	var major, minor int
	if n, _ := fmt.Sscanf(line.Proto, "HTTP/%d.%d", &major, &minor); n != 2 || major < 1 || (major == 1 && minor < 1) {
		return "must be HTTP/1.1 or later"
	}
	if !h.HasToken("Upgrade", "websocket") {
		return "missing Upgrade: websocket"
	}
	if !h.HasToken("Connection", "upgrade") {
		return "missing Connection: Upgrade"
	}
	key := h.Get("Sec-WebSocket-Key")
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil || len(raw) != 16 {
		return "invalid Sec-WebSocket-Key"
	}
	return ""
}

// translateHandshakeErr maps the low-level errors ReadRequestLine,
// ReadHeaders, and ReadStatusLine can return onto the sentinels the rest of
// the engine matches against: a deadline blown by opts.HandshakeTimeout
// becomes ErrHandshakeTimeout, and a request/status line or header block
// past opts.HandshakeHeaderLimit becomes ErrHandshakeHeaderTooBig.
func translateHandshakeErr(err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return wserrors.ErrHandshakeTimeout
	}
	if errors.Is(err, httpwire.ErrHeaderTooLarge) {
		return wserrors.ErrHandshakeHeaderTooBig
	}
	return err
}

func writeErrorResponse(w io.Writer, code int, reason, body string) {
	var buf bytes.Buffer
	httpwire.WriteStatusLine(&buf, code, reason)
	headers := httpwire.NewHeader()
	headers.Set("Content-Length", strconv.Itoa(len(body)))
	headers.Set("Content-Type", "text/plain; charset=utf-8")
	httpwire.WriteHeaders(&buf, headers, []string{"Content-Length", "Content-Type"})
	buf.WriteString(body)
	w.Write(buf.Bytes())
}

// writeVersionError answers an unsupported Sec-WebSocket-Version with the
// 426 response RFC 6455 section 4.4 requires, advertising the one version
// this engine speaks.
func writeVersionError(w io.Writer) {
	body := "unsupported Sec-WebSocket-Version"
	var buf bytes.Buffer
	httpwire.WriteStatusLine(&buf, 426, "Upgrade Required")
	headers := httpwire.NewHeader()
	headers.Set("Sec-WebSocket-Version", "13")
	headers.Set("Content-Length", strconv.Itoa(len(body)))
	headers.Set("Content-Type", "text/plain; charset=utf-8")
	httpwire.WriteHeaders(&buf, headers, []string{"Sec-WebSocket-Version", "Content-Length", "Content-Type"})
	buf.WriteString(body)
	w.Write(buf.Bytes())
}

func splitCommaList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

func containsFold(list []string, want string) bool {
	for _, v := range list {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}
