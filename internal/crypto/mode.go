package crypto

import "fmt"

// Mode selects how the per-packet nonce is derived and carried.
type Mode int

const (
	// ModeNormal uses the RTP header, zero padded, as the nonce.
	ModeNormal Mode = iota
	// ModeSuffix appends 24 random nonce bytes to every packet.
	ModeSuffix
	// ModeLite appends a 4-byte big-endian counter to every packet.
	ModeLite
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "xsalsa20_poly1305"
	case ModeSuffix:
		return "xsalsa20_poly1305_suffix"
	case ModeLite:
		return "xsalsa20_poly1305_lite"
	default:
		return fmt.Sprintf("crypto.Mode(%d)", int(m))
	}
}

// SuffixLen is the number of nonce bytes appended after the ciphertext.
func (m Mode) SuffixLen() int {
	switch m {
	case ModeSuffix:
		return NonceSize
	case ModeLite:
		return 4
	default:
		return 0
	}
}

func (m Mode) Valid() bool {
	return m == ModeNormal || m == ModeSuffix || m == ModeLite
}

func ParseMode(s string) (Mode, error) {
	for _, m := range []Mode{ModeNormal, ModeSuffix, ModeLite} {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown crypto mode %q", s)
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
