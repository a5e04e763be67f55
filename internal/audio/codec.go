package audio

import (
	"fmt"
	"strconv"
	"time"
)

const (
	SampleRate      = 48000
	FrameDuration   = 20 * time.Millisecond
	SamplesPerFrame = SampleRate / 1000 * 20
	// MaxOpusFrameBytes bounds one encoded 20 ms frame.
	MaxOpusFrameBytes = 1275
	// DefaultBitrate is used when no explicit bitrate is configured.
	DefaultBitrate = 128_000
)

// SilenceFrame is the three-byte opus frame for 20 ms of silence.
var SilenceFrame = []byte{0xF8, 0xFF, 0xFE}

type MixMode int

const (
	MixStereo MixMode = iota
	MixMono
)

func (m MixMode) Channels() int {
	if m == MixMono {
		return 1
	}
	return 2
}

// FrameSamples is the interleaved sample count of one 20 ms frame.
func (m MixMode) FrameSamples() int {
	return SamplesPerFrame * m.Channels()
}

func (m MixMode) String() string {
	if m == MixMono {
		return "mono"
	}
	return "stereo"
}

func (m *MixMode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "stereo", "":
		*m = MixStereo
	case "mono":
		*m = MixMono
	default:
		return fmt.Errorf("unknown mix mode %q", string(b))
	}
	return nil
}

type bitrateKind int

const (
	bitrateAuto bitrateKind = iota
	bitrateMax
	bitrateBits
)

// Bitrate is an encoder target: automatic, maximum, or explicit bits/s.
type Bitrate struct {
	kind bitrateKind
	bits int
}

var (
	BitrateAuto = Bitrate{kind: bitrateAuto}
	BitrateMax  = Bitrate{kind: bitrateMax}
)

func BitsPerSecond(n int) Bitrate {
	return Bitrate{kind: bitrateBits, bits: n}
}

// Bits returns the explicit rate and whether one is set.
func (b Bitrate) Bits() (int, bool) {
	return b.bits, b.kind == bitrateBits
}

func (b Bitrate) IsAuto() bool { return b.kind == bitrateAuto }
func (b Bitrate) IsMax() bool  { return b.kind == bitrateMax }

func (b Bitrate) Valid() bool {
	if b.kind != bitrateBits {
		return true
	}
	return b.bits >= 500 && b.bits <= 512_000
}

func (b Bitrate) String() string {
	switch b.kind {
	case bitrateMax:
		return "max"
	case bitrateBits:
		return strconv.Itoa(b.bits)
	default:
		return "auto"
	}
}

func (b *Bitrate) UnmarshalText(text []byte) error {
	switch s := string(text); s {
	case "auto", "":
		*b = BitrateAuto
	case "max":
		*b = BitrateMax
	default:
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid bitrate %q: %w", s, err)
		}
		*b = BitsPerSecond(n)
	}
	return nil
}

type EncoderConfig struct {
	MixMode MixMode
	Bitrate Bitrate
}

// Encoder turns one interleaved PCM frame into an opus packet.
type Encoder interface {
	Encode(pcm []int16, out []byte) (int, error)
	SetBitrate(b Bitrate) error
}

type EncoderFactory func(cfg EncoderConfig) (Encoder, error)

type Decoder interface {
	Decode(opus []byte, pcm []int16) (int, error)
}

type DecoderFactory func() (Decoder, error)
