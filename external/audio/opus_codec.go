//go:build opus

package audio

import (
	"fmt"

	"github.com/foxseedlab/koedriver/internal/audio"
	"github.com/hraban/opus"
)

type OpusEncoder struct {
	enc *opus.Encoder
}

func NewOpusEncoder(cfg audio.EncoderConfig) (audio.Encoder, error) {
	enc, err := opus.NewEncoder(audio.SampleRate, cfg.MixMode.Channels(), opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}
	e := &OpusEncoder{enc: enc}
	if err := e.SetBitrate(cfg.Bitrate); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *OpusEncoder) Encode(pcm []int16, out []byte) (int, error) {
	return e.enc.Encode(pcm, out)
}

func (e *OpusEncoder) SetBitrate(b audio.Bitrate) error {
	if !b.Valid() {
		return fmt.Errorf("bitrate %s out of range", b)
	}
	switch {
	case b.IsAuto():
		return e.enc.SetBitrate(audio.DefaultBitrate)
	case b.IsMax():
		return e.enc.SetBitrateToMax()
	default:
		bits, _ := b.Bits()
		return e.enc.SetBitrate(bits)
	}
}

type OpusDecoder struct {
	dec *opus.Decoder
}

func NewOpusDecoder() (audio.Decoder, error) {
	dec, err := opus.NewDecoder(audio.SampleRate, 2)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}
	return &OpusDecoder{dec: dec}, nil
}

// Decode returns the interleaved sample count written to pcm.
func (d *OpusDecoder) Decode(data []byte, pcm []int16) (int, error) {
	n, err := d.dec.Decode(data, pcm)
	if err != nil {
		return 0, err
	}
	return n * 2, nil
}
