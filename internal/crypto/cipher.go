// Package crypto implements the xsalsa20poly1305 transport encryption used by
// voice packets, along with the nonce strategies negotiated at connect time.
package crypto

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	KeySize   = 32
	NonceSize = 24
	TagSize   = secretbox.Overhead
)

var (
	ErrShortPacket = errors.New("crypto: packet too short")
	ErrDecrypt     = errors.New("crypto: authentication failed")
)

// Cipher holds the session secret. Copying a Cipher copies the key.
type Cipher struct {
	key [KeySize]byte
}

func NewCipher(key [KeySize]byte) Cipher {
	return Cipher{key: key}
}

// Clone returns an independent copy of c.
func (c *Cipher) Clone() Cipher {
	return Cipher{key: c.key}
}

// Equal reports whether both ciphers hold the same key.
func (c *Cipher) Equal(other *Cipher) bool {
	return other != nil && c.key == other.key
}

// Seal encrypts payload and returns header || box || nonce suffix. The nonce is
// drawn from state, which advances for lite mode.
func (c *Cipher) Seal(state *State, header, payload []byte) []byte {
	var nonce [NonceSize]byte
	suffix := state.writeNonce(&nonce, header)
	out := make([]byte, 0, len(header)+len(payload)+TagSize+len(suffix))
	out = append(out, header...)
	out = secretbox.Seal(out, payload, &nonce, &c.key)
	return append(out, suffix...)
}

// Open authenticates and decrypts packet, whose first headerLen bytes are the
// cleartext header. The returned plaintext is a fresh slice.
func (c *Cipher) Open(mode Mode, packet []byte, headerLen int) ([]byte, error) {
	suffixLen := mode.SuffixLen()
	if headerLen < 0 || len(packet) < headerLen+TagSize+suffixLen {
		return nil, fmt.Errorf("%w: %d bytes, header %d", ErrShortPacket, len(packet), headerLen)
	}
	var nonce [NonceSize]byte
	end := len(packet) - suffixLen
	switch mode {
	case ModeSuffix, ModeLite:
		copy(nonce[:], packet[end:])
	default:
		copy(nonce[:], packet[:headerLen])
	}
	plain, ok := secretbox.Open(nil, packet[headerLen:end], &nonce, &c.key)
	if !ok {
		return nil, ErrDecrypt
	}
	return plain, nil
}

func (c Cipher) String() string {
	return "crypto.Cipher{redacted}"
}
