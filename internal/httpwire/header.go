// Package httpwire implements the small slice of HTTP/1.1 the WebSocket
// opening handshake needs: the request/status line, headers, and nothing
// about bodies, chunked transfer, or any method besides GET. It exists
// because net/http ties request parsing to a full server loop and a
// response writer that a 101 Switching Protocols upgrade has no use for.
package httpwire

import "strings"

// Header is an HTTP header multimap with case-insensitive keys, per RFC 7230
// section 3.2 ("Each header field consists of a case-insensitive field
// name"). The reference codec this package replaces stored headers in a
// plain case-sensitive map, which silently broke lookups against handshake
// headers sent in unexpected case.
type Header map[string][]string

// NewHeader returns an empty Header.
func NewHeader() Header {
	return make(Header)
}

func canonicalKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Add appends value to key's list of values.
func (h Header) Add(key, value string) {
	k := canonicalKey(key)
	h[k] = append(h[k], value)
}

// Set replaces key's list of values with a single value.
func (h Header) Set(key, value string) {
	h[canonicalKey(key)] = []string{value}
}

// Get returns the first value associated with key, or "" if absent.
func (h Header) Get(key string) string {
	v := h[canonicalKey(key)]
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// Values returns every value associated with key.
func (h Header) Values(key string) []string {
	return h[canonicalKey(key)]
}

// Has reports whether key is present, regardless of case.
func (h Header) Has(key string) bool {
	_, ok := h[canonicalKey(key)]
	return ok
}

// HasToken reports whether key's value, or any of its comma-separated
// tokens, case-insensitively equals token. This is how Connection: Upgrade
// and Upgrade: websocket must be matched per RFC 6455 section 4.2.1 — either
// header may legally carry other comma-separated tokens alongside the one
// that matters.
func (h Header) HasToken(key, token string) bool {
	token = strings.ToLower(token)
	for _, v := range h.Values(key) {
		for _, part := range strings.Split(v, ",") {
			if strings.ToLower(strings.TrimSpace(part)) == token {
				return true
			}
		}
	}
	return false
}
