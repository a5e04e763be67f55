//go:build !opus

package audio

import "github.com/foxseedlab/koedriver/internal/audio"

// Without libopus every frame goes out as opus silence.
type silenceEncoder struct{}

func NewOpusEncoder(_ audio.EncoderConfig) (audio.Encoder, error) {
	return silenceEncoder{}, nil
}

func (silenceEncoder) Encode(_ []int16, out []byte) (int, error) {
	return copy(out, audio.SilenceFrame), nil
}

func (silenceEncoder) SetBitrate(_ audio.Bitrate) error { return nil }

type silenceDecoder struct{}

func NewOpusDecoder() (audio.Decoder, error) {
	return silenceDecoder{}, nil
}

func (silenceDecoder) Decode(_ []byte, pcm []int16) (int, error) {
	n := audio.MixStereo.FrameSamples()
	if n > len(pcm) {
		n = len(pcm)
	}
	clear(pcm[:n])
	return n, nil
}
