package audio

import (
	"encoding/binary"
	"errors"
	"io"
)

// Source yields interleaved signed 16-bit PCM. ReadPCM returns io.EOF once the
// source is exhausted.
type Source interface {
	ReadPCM(buf []int16) (int, error)
}

type readerSource struct {
	r       io.Reader
	scratch []byte
}

// NewReaderSource reads little-endian s16 PCM from r.
func NewReaderSource(r io.Reader) Source {
	return &readerSource{r: r}
}

func (s *readerSource) ReadPCM(buf []int16) (int, error) {
	need := len(buf) * 2
	if cap(s.scratch) < need {
		s.scratch = make([]byte, need)
	}
	b := s.scratch[:need]
	n, err := io.ReadFull(s.r, b)
	samples := n / 2
	for i := 0; i < samples; i++ {
		buf[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		if samples > 0 {
			return samples, nil
		}
		err = io.EOF
	}
	return samples, err
}

// ClampPCM saturates a mixed sample into the int16 range.
func ClampPCM(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
