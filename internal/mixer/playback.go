package mixer

import (
	"errors"
	"io"

	"github.com/foxseedlab/koedriver/internal/audio"
	"github.com/foxseedlab/koedriver/internal/events"
	"github.com/foxseedlab/koedriver/internal/message"
	"github.com/foxseedlab/koedriver/internal/tracks"
	"github.com/google/uuid"
	"github.com/pion/rtp"
)

const (
	rtpPayloadType = 0x78
	// silenceFrames are sent after the last audible frame so receivers can
	// close their jitter buffers cleanly.
	silenceFrames = 5
)

type mixTrack struct {
	*tracks.Track
	last tracks.PlayMode
}

// outbound is the RTP sequencing and speaking state of the live connection.
type outbound struct {
	sequence    uint16
	timestamp   uint32
	speaking    bool
	silenceLeft int

	acc  []int32
	read []int16
	pcm  []int16
	opus []byte
}

func (o *outbound) reset() {
	o.speaking = false
	o.silenceLeft = 0
}

func (o *outbound) ensure(samples int) {
	if cap(o.acc) < samples {
		o.acc = make([]int32, samples)
		o.read = make([]int16, samples)
		o.pcm = make([]int16, samples)
	}
	o.acc = o.acc[:samples]
	o.read = o.read[:samples]
	o.pcm = o.pcm[:samples]
	if o.opus == nil {
		o.opus = make([]byte, audio.MaxOpusFrameBytes)
	}
}

func (m *Mixer) addTrack(t *tracks.Track) {
	if t == nil {
		return
	}
	mode := t.Handle().State().Playing
	m.tracks = append(m.tracks, &mixTrack{Track: t, last: mode})
	m.sendEvent(events.AddTrack{Handle: t.Handle()})
	if mode == tracks.Play {
		m.sendEvent(events.FireTrackEvent{Event: events.TrackPlay, IDs: []uuid.UUID{t.ID()}})
	}
}

func (m *Mixer) stopAll() {
	if len(m.tracks) == 0 {
		return
	}
	ids := make([]uuid.UUID, 0, len(m.tracks))
	for _, t := range m.tracks {
		t.Handle().Stop()
		ids = append(ids, t.ID())
	}
	m.removeTracks(ids)
	clear(m.tracks)
	m.tracks = m.tracks[:0]
}

func (m *Mixer) removeTracks(ids []uuid.UUID) {
	m.sendEvent(events.FireTrackEvent{Event: events.TrackEnd, IDs: ids})
	for _, id := range ids {
		m.sendEvent(events.RemoveTrack{ID: id})
	}
}

// tick produces one frame of output.
func (m *Mixer) tick() {
	if m.disabled {
		return
	}
	audible := m.mix()
	if m.conn == nil {
		return
	}
	if audible && !m.muted && m.encoder != nil {
		n, err := m.encoder.Encode(m.out.pcm, m.out.opus)
		if err != nil {
			m.log.Warn("failed to encode frame", "error", err)
			return
		}
		m.setSpeaking(true)
		m.out.silenceLeft = silenceFrames
		m.send(m.out.opus[:n])
		return
	}
	if m.out.silenceLeft > 0 {
		m.out.silenceLeft--
		m.send(audio.SilenceFrame)
		if m.out.silenceLeft == 0 {
			m.setSpeaking(false)
		}
	}
}

// mix sums every playing track into m.out.pcm and reports whether any track
// produced samples. Finished tracks are removed.
func (m *Mixer) mix() bool {
	samples := m.cfg.MixMode.FrameSamples()
	m.out.ensure(samples)
	clear(m.out.acc)

	audible := false
	var ended []uuid.UUID
	kept := m.tracks[:0]
	for _, t := range m.tracks {
		st := t.Handle().State()
		if st.Playing != t.last {
			m.firePlayMode(t, st.Playing)
		}
		if st.Playing.Done() {
			ended = append(ended, t.ID())
			continue
		}
		if st.Playing != tracks.Play {
			kept = append(kept, t)
			continue
		}
		n, err := t.Source.ReadPCM(m.out.read)
		for i := 0; i < n; i++ {
			m.out.acc[i] += int32(float32(m.out.read[i]) * st.Volume)
		}
		if n > 0 {
			audible = true
			t.Handle().Advance(audio.FrameDuration)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				m.log.Warn("track source failed; ending track", "track_id", t.ID().String(), "error", err)
			}
			t.Handle().MarkEnded()
			t.last = tracks.End
			ended = append(ended, t.ID())
			continue
		}
		kept = append(kept, t)
	}
	clear(m.tracks[len(kept):])
	m.tracks = kept

	for i, v := range m.out.acc {
		m.out.pcm[i] = audio.ClampPCM(v)
	}
	if len(ended) > 0 {
		m.removeTracks(ended)
	}
	return audible
}

func (m *Mixer) firePlayMode(t *mixTrack, mode tracks.PlayMode) {
	t.last = mode
	var ev events.TrackEvent
	switch mode {
	case tracks.Play:
		ev = events.TrackPlay
	case tracks.Pause:
		ev = events.TrackPause
	default:
		return
	}
	m.sendEvent(events.FireTrackEvent{Event: ev, IDs: []uuid.UUID{t.ID()}})
}

func (m *Mixer) send(payload []byte) {
	h := rtp.Header{
		Version:        2,
		PayloadType:    rtpPayloadType,
		SequenceNumber: m.out.sequence,
		Timestamp:      m.out.timestamp,
		SSRC:           m.conn.SSRC,
	}
	m.out.sequence++
	m.out.timestamp += audio.SamplesPerFrame
	header, err := h.Marshal()
	if err != nil {
		m.log.Warn("failed to build rtp header", "error", err)
		return
	}
	packet := m.conn.Cipher.Seal(m.conn.Crypto, header, payload)
	if err := m.conn.UDPTx.Send(message.UDPTxPacket{Generation: m.generation, Data: packet}); err != nil {
		m.log.Debug("transmit task unavailable; dropping frame", "generation", m.generation, "error", err)
		return
	}
	m.metrics.FrameSent()
}

func (m *Mixer) setSpeaking(speaking bool) {
	if m.out.speaking == speaking {
		return
	}
	m.out.speaking = speaking
	if !speaking {
		m.out.silenceLeft = 0
	}
	if m.ws != nil {
		_ = m.ws.Send(message.WsSpeaking{Speaking: speaking})
	}
}
