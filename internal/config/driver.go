package config

import (
	"fmt"

	"github.com/foxseedlab/koedriver/internal/audio"
	"github.com/foxseedlab/koedriver/internal/crypto"
)

// DecodeMode controls how much work the receive task does on inbound voice.
type DecodeMode int

const (
	DecodePass DecodeMode = iota
	DecodeDecrypt
	DecodeDecode
)

func (m DecodeMode) String() string {
	switch m {
	case DecodePass:
		return "pass"
	case DecodeDecode:
		return "decode"
	default:
		return "decrypt"
	}
}

func (m *DecodeMode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "pass":
		*m = DecodePass
	case "decrypt", "":
		*m = DecodeDecrypt
	case "decode":
		*m = DecodeDecode
	default:
		return fmt.Errorf("unknown decode mode %q", string(b))
	}
	return nil
}

// Driver is the runtime-tunable part of the voice driver. It can be replaced
// while the mixer runs.
type Driver struct {
	CryptoMode         crypto.Mode
	DecodeMode         DecodeMode
	MixMode            audio.MixMode
	Bitrate            audio.Bitrate
	PreallocatedTracks int
}

func DefaultDriver() Driver {
	return Driver{
		CryptoMode:         crypto.ModeLite,
		DecodeMode:         DecodeDecrypt,
		MixMode:            audio.MixStereo,
		Bitrate:            audio.BitrateAuto,
		PreallocatedTracks: 1,
	}
}

func (d Driver) Validate() error {
	if !d.CryptoMode.Valid() {
		return fmt.Errorf("VOICE_CRYPTO_MODE is invalid: %s", d.CryptoMode)
	}
	if !d.Bitrate.Valid() {
		return fmt.Errorf("VOICE_BITRATE must be between 500 and 512000, got %s", d.Bitrate)
	}
	if d.PreallocatedTracks < 0 {
		return fmt.Errorf("VOICE_PREALLOCATED_TRACKS must not be negative, got %d", d.PreallocatedTracks)
	}
	return nil
}

func (d Driver) EncoderConfig() audio.EncoderConfig {
	return audio.EncoderConfig{MixMode: d.MixMode, Bitrate: d.Bitrate}
}
