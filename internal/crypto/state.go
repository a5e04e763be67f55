package crypto

import (
	"crypto/rand"
	"encoding/binary"
)

// State is the nonce bookkeeping for one connection generation. It is owned
// by a single connection and is not safe for concurrent use.
type State struct {
	mode Mode
	lite uint32
}

func NewState(mode Mode) *State {
	return &State{mode: mode}
}

func (s *State) Kind() Mode {
	return s.mode
}

// LiteNonce returns the counter the next lite-mode packet will carry.
func (s *State) LiteNonce() uint32 {
	return s.lite
}

// writeNonce fills nonce for a packet with the given header and returns the
// bytes to append after the ciphertext. Lite counters wrap on overflow.
func (s *State) writeNonce(nonce *[NonceSize]byte, header []byte) []byte {
	switch s.mode {
	case ModeSuffix:
		// crypto/rand.Read never returns an error on supported platforms.
		_, _ = rand.Read(nonce[:])
		suffix := make([]byte, NonceSize)
		copy(suffix, nonce[:])
		return suffix
	case ModeLite:
		binary.BigEndian.PutUint32(nonce[:4], s.lite)
		s.lite++
		suffix := make([]byte, 4)
		copy(suffix, nonce[:4])
		return suffix
	default:
		copy(nonce[:], header)
		return nil
	}
}
