package websocket

import "crypto/rand"

// applyMask XORs b in place with the repeating 4-byte key, per RFC 6455
// section 5.3.
func applyMask(key, b []byte) {
	for i := range b {
		b[i] ^= key[i&3]
	}
}

// genMask fills key with cryptographically random bytes.
func genMask(key []byte) {
	rand.Read(key)
}
