package mixer

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/foxseedlab/koedriver/internal/audio"
	"github.com/foxseedlab/koedriver/internal/chanx"
	"github.com/foxseedlab/koedriver/internal/config"
	"github.com/foxseedlab/koedriver/internal/events"
	"github.com/foxseedlab/koedriver/internal/message"
	"github.com/foxseedlab/koedriver/internal/metrics"
	"github.com/foxseedlab/koedriver/internal/tracks"
	"github.com/pion/rtp"
	"github.com/prometheus/client_golang/prometheus"
)

type fakeEncoder struct {
	frames  int
	bitrate audio.Bitrate
}

func (e *fakeEncoder) Encode(_ []int16, out []byte) (int, error) {
	e.frames++
	return copy(out, []byte{0x01, 0x02, 0x03, 0x04}), nil
}

func (e *fakeEncoder) SetBitrate(b audio.Bitrate) error {
	e.bitrate = b
	return nil
}

type encoderFactory struct {
	built []*fakeEncoder
	fail  bool
}

func (f *encoderFactory) New(cfg audio.EncoderConfig) (audio.Encoder, error) {
	if f.fail {
		return nil, errors.New("no encoder")
	}
	e := &fakeEncoder{bitrate: cfg.Bitrate}
	f.built = append(f.built, e)
	return e, nil
}

// constSource yields frames of a fixed sample until frames run out.
type constSource struct {
	sample int16
	frames int
}

func (s *constSource) ReadPCM(buf []int16) (int, error) {
	if s.frames == 0 {
		return 0, io.EOF
	}
	s.frames--
	for i := range buf {
		buf[i] = s.sample
	}
	return len(buf), nil
}

type testMixer struct {
	*Mixer
	tx      chanx.Sender[Message]
	events  chanx.Receiver[events.Message]
	factory *encoderFactory
}

func newTestMixer(t *testing.T) testMixer {
	t.Helper()
	tx, rx := chanx.Unbounded[Message]()
	evTx, evRx := chanx.Unbounded[events.Message]()
	f := &encoderFactory{}
	m := New(rx, Interconnect{Events: evTx}, Config{
		Driver:     config.DefaultDriver(),
		NewEncoder: f.New,
		Metrics:    metrics.New(prometheus.NewRegistry()),
	})
	return testMixer{Mixer: m, tx: tx, events: evRx, factory: f}
}

func TestMixer_StartsIdle(t *testing.T) {
	m := newTestMixer(t)
	if m.State() != StateIdle {
		t.Fatalf("expected idle, got %s", m.State())
	}
	if _, ok := m.Generation(); ok {
		t.Fatal("expected no generation before the first connection")
	}
}

func TestMixer_SetConnSetConnDropConn(t *testing.T) {
	m := newTestMixer(t)
	a := newTestConn(1)
	b := newTestConn(2)

	m.handle(SetConn{Conn: a.conn, Generation: 1})
	if m.State() != StateConnected {
		t.Fatalf("expected connected, got %s", m.State())
	}
	if rx, tx := a.poisons(); rx != 0 || tx != 0 {
		t.Fatalf("expected conn a to stay alive, got rx=%d tx=%d", rx, tx)
	}

	m.handle(SetConn{Conn: b.conn, Generation: 2})
	if rx, tx := a.poisons(); rx != 1 || tx != 1 {
		t.Fatalf("expected conn a torn down once, got rx=%d tx=%d", rx, tx)
	}
	if gen, _ := m.Generation(); gen != 2 {
		t.Fatalf("expected generation 2, got %d", gen)
	}

	m.handle(DropConn{})
	if rx, tx := b.poisons(); rx != 1 || tx != 1 {
		t.Fatalf("expected conn b torn down once, got rx=%d tx=%d", rx, tx)
	}
	if rx, tx := a.poisons(); rx != 0 || tx != 0 {
		t.Fatalf("expected no further teardown of conn a, got rx=%d tx=%d", rx, tx)
	}
	if m.State() != StateIdle {
		t.Fatalf("expected idle, got %s", m.State())
	}
}

func TestMixer_SetConnSameConnectionKeepsIt(t *testing.T) {
	m := newTestMixer(t)
	a := newTestConn(1)
	m.handle(SetConn{Conn: a.conn, Generation: 1})
	m.handle(SetConn{Conn: a.conn, Generation: 2})
	if rx, tx := a.poisons(); rx != 0 || tx != 0 {
		t.Fatalf("expected no teardown, got rx=%d tx=%d", rx, tx)
	}
	if gen, _ := m.Generation(); gen != 2 {
		t.Fatalf("expected generation 2, got %d", gen)
	}
}

func TestMixer_GenerationNeverDecreases(t *testing.T) {
	m := newTestMixer(t)
	var last uint32
	for i, requested := range []uint32{5, 3, 5, 9, 0} {
		m.handle(SetConn{Conn: newTestConn(uint32(i)).conn, Generation: requested})
		gen, _ := m.Generation()
		if i > 0 && gen <= last {
			t.Fatalf("expected generation above %d for request %d, got %d", last, requested, gen)
		}
		last = gen
	}
	if last != 10 {
		t.Fatalf("expected generation 10, got %d", last)
	}
}

func TestMixer_DropConnWhenIdle(t *testing.T) {
	m := newTestMixer(t)
	m.handle(DropConn{})
	if m.State() != StateIdle {
		t.Fatalf("expected idle, got %s", m.State())
	}
}

func TestMixer_DisabledKeepsConnection(t *testing.T) {
	m := newTestMixer(t)
	a := newTestConn(1)
	m.handle(SetConn{Conn: a.conn, Generation: 1})
	m.handle(SetDisabled{Disabled: true})
	if m.State() != StateDisabled {
		t.Fatalf("expected disabled, got %s", m.State())
	}
	if rx, tx := a.poisons(); rx != 0 || tx != 0 {
		t.Fatal("expected disabling not to tear down the connection")
	}
	m.handle(SetDisabled{Disabled: false})
	if m.State() != StateConnected {
		t.Fatalf("expected connected, got %s", m.State())
	}

	m.handle(SetDisabled{Disabled: true})
	m.handle(DropConn{})
	if m.State() != StateDisabled {
		t.Fatalf("expected disabled after drop, got %s", m.State())
	}
	m.handle(SetDisabled{Disabled: false})
	if m.State() != StateIdle {
		t.Fatalf("expected idle, got %s", m.State())
	}
}

func TestMixer_PoisonTearsDownAndStops(t *testing.T) {
	m := newTestMixer(t)
	a := newTestConn(1)
	m.handle(SetConn{Conn: a.conn, Generation: 1})
	if stop := m.handle(Poison{}); !stop {
		t.Fatal("expected poison to stop the mixer")
	}
	if m.State() != StatePoisoned {
		t.Fatalf("expected poisoned, got %s", m.State())
	}
	if rx, tx := a.poisons(); rx != 1 || tx != 1 {
		t.Fatalf("expected conn torn down once, got rx=%d tx=%d", rx, tx)
	}
	if stop := m.handle(SetMute{Mute: true}); !stop || m.muted {
		t.Fatal("expected commands after poison to be ignored")
	}
}

func TestMixerRun_NothingAfterPoison(t *testing.T) {
	m := newTestMixer(t)
	a := newTestConn(1)
	b := newTestConn(2)
	_ = m.tx.Send(SetConn{Conn: a.conn, Generation: 1})
	_ = m.tx.Send(Poison{})
	_ = m.tx.Send(SetConn{Conn: b.conn, Generation: 2})
	_ = m.tx.Send(SetMute{Mute: true})

	done := make(chan struct{})
	go func() {
		m.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("mixer did not stop")
	}
	if gen, _ := m.Generation(); gen != 1 {
		t.Fatalf("expected generation 1, got %d", gen)
	}
	if m.muted {
		t.Fatal("expected mute after poison to be ignored")
	}
	if rx, tx := a.poisons(); rx != 1 || tx != 1 {
		t.Fatalf("expected conn a torn down once, got rx=%d tx=%d", rx, tx)
	}
	if rx, tx := b.poisons(); rx != 0 || tx != 0 {
		t.Fatalf("expected conn b never installed, got rx=%d tx=%d", rx, tx)
	}
	if err := m.tx.Send(DropConn{}); !errors.Is(err, chanx.ErrDisconnected) {
		t.Fatalf("expected ErrDisconnected after exit, got %v", err)
	}
}

func TestMixerRun_AppliesInOrder(t *testing.T) {
	m := newTestMixer(t)
	conns := []connEnds{newTestConn(1), newTestConn(2), newTestConn(3)}
	_ = m.tx.Send(SetDisabled{Disabled: true})
	_ = m.tx.Send(SetMute{Mute: true})
	_ = m.tx.Send(SetDisabled{Disabled: false})
	for i, c := range conns {
		_ = m.tx.Send(SetConn{Conn: c.conn, Generation: uint32(i + 1)})
	}
	_ = m.tx.Send(SetMute{Mute: false})
	_ = m.tx.Send(Poison{})

	done := make(chan struct{})
	go func() {
		m.Run(context.Background())
		close(done)
	}()
	<-done

	if m.disabled || m.muted {
		t.Fatalf("expected final flags from the last commands, got disabled=%v muted=%v", m.disabled, m.muted)
	}
	if gen, _ := m.Generation(); gen != 3 {
		t.Fatalf("expected generation 3, got %d", gen)
	}
	for i, c := range conns {
		if rx, tx := c.poisons(); rx != 1 || tx != 1 {
			t.Fatalf("expected conn %d torn down once, got rx=%d tx=%d", i, rx, tx)
		}
	}
}

func TestMixerRun_ContextCancelTearsDown(t *testing.T) {
	m := newTestMixer(t)
	a := newTestConn(1)
	m.handle(SetConn{Conn: a.conn, Generation: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
	if rx, tx := a.poisons(); rx != 1 || tx != 1 {
		t.Fatalf("expected conn torn down on exit, got rx=%d tx=%d", rx, tx)
	}
	if m.State() != StatePoisoned {
		t.Fatalf("expected poisoned, got %s", m.State())
	}
}

func TestMixer_RebuildEncoderFailureKeepsRunning(t *testing.T) {
	m := newTestMixer(t)
	m.factory.fail = true
	m.handle(RebuildEncoder{})
	if m.encoder != nil {
		t.Fatal("expected no encoder after failed rebuild")
	}
	m.handle(SetBitrate{Bitrate: audio.BitsPerSecond(64000)})
	m.handle(RebuildEncoder{})

	a := newTestConn(1)
	m.handle(SetConn{Conn: a.conn, Generation: 1})
	m.handle(AddTrack{Track: tracks.New(&constSource{sample: 100, frames: 3})})
	m.tick()
	if _, ok := a.tx.TryRecv(); ok {
		t.Fatal("expected no audio without an encoder")
	}

	m.factory.fail = false
	m.handle(RebuildEncoder{})
	if m.encoder == nil {
		t.Fatal("expected encoder after successful rebuild")
	}
	if got := m.factory.built[len(m.factory.built)-1].bitrate; got != audio.BitsPerSecond(64000) {
		t.Fatalf("expected rebuilt encoder at 64000, got %s", got)
	}
}

func TestMixer_SetBitrateUpdatesEncoder(t *testing.T) {
	m := newTestMixer(t)
	m.handle(SetBitrate{Bitrate: audio.BitrateMax})
	enc := m.factory.built[0]
	if !enc.bitrate.IsMax() {
		t.Fatalf("expected max bitrate, got %s", enc.bitrate)
	}
}

func TestMixer_SetConfigForwardsToReceiveTask(t *testing.T) {
	m := newTestMixer(t)
	a := newTestConn(1)
	m.handle(SetConn{Conn: a.conn, Generation: 1})
	cfg := config.DefaultDriver()
	cfg.MixMode = audio.MixMono
	cfg.DecodeMode = config.DecodeDecode
	m.handle(SetConfig{Config: cfg})

	msg, ok := a.rx.TryRecv()
	if !ok {
		t.Fatal("expected config to be forwarded")
	}
	got, ok := msg.(message.UDPRxSetConfig)
	if !ok || got.Config.DecodeMode != config.DecodeDecode {
		t.Fatalf("expected UDPRxSetConfig with decode mode, got %#v", msg)
	}
	if len(m.factory.built) != 2 {
		t.Fatalf("expected encoder rebuilt for new mix mode, got %d builds", len(m.factory.built))
	}
}

func TestMixer_TickSendsSealedFramesAndSpeaking(t *testing.T) {
	m := newTestMixer(t)
	wsTx, wsRx := chanx.Unbounded[message.WsMessage]()
	a := newTestConn(77)
	m.handle(Ws{Sender: &wsTx})
	m.handle(SetConn{Conn: a.conn, Generation: 4})
	track := tracks.New(&constSource{sample: 1000, frames: 2})
	m.handle(AddTrack{Track: track})

	for i := 0; i < 2+silenceFrames+2; i++ {
		m.tick()
	}

	var packets []message.UDPTxPacket
	for {
		msg, ok := a.tx.TryRecv()
		if !ok {
			break
		}
		if p, ok := msg.(message.UDPTxPacket); ok {
			packets = append(packets, p)
		}
	}
	if len(packets) != 2+silenceFrames {
		t.Fatalf("expected %d packets, got %d", 2+silenceFrames, len(packets))
	}
	var prev rtp.Header
	for i, p := range packets {
		if p.Generation != 4 {
			t.Fatalf("expected generation 4, got %d", p.Generation)
		}
		var h rtp.Header
		if _, err := h.Unmarshal(p.Data); err != nil {
			t.Fatalf("failed to parse header: %v", err)
		}
		if h.SSRC != 77 || h.PayloadType != rtpPayloadType {
			t.Fatalf("unexpected header: %+v", h)
		}
		if i > 0 && (h.SequenceNumber != prev.SequenceNumber+1 || h.Timestamp != prev.Timestamp+audio.SamplesPerFrame) {
			t.Fatalf("expected consecutive headers, got %+v after %+v", h, prev)
		}
		prev = h
		if _, err := a.conn.Cipher.Open(a.conn.Crypto.Kind(), p.Data, h.MarshalSize()); err != nil {
			t.Fatalf("expected packet %d to open, got %v", i, err)
		}
	}

	var speaking []bool
	for {
		msg, ok := wsRx.TryRecv()
		if !ok {
			break
		}
		if s, ok := msg.(message.WsSpeaking); ok {
			speaking = append(speaking, s.Speaking)
		}
	}
	if len(speaking) != 2 || !speaking[0] || speaking[1] {
		t.Fatalf("expected speaking on then off, got %v", speaking)
	}
	if st := track.Handle().State(); st.Playing != tracks.End {
		t.Fatalf("expected track to end, got %s", st.Playing)
	}
}

func TestMixer_TrackEndFiresEvents(t *testing.T) {
	m := newTestMixer(t)
	track := tracks.New(&constSource{sample: 1, frames: 1})
	m.handle(AddTrack{Track: track})
	m.tick()
	m.tick()

	var kinds []string
	for {
		msg, ok := m.events.TryRecv()
		if !ok {
			break
		}
		switch msg := msg.(type) {
		case events.AddTrack:
			kinds = append(kinds, "add")
		case events.FireTrackEvent:
			kinds = append(kinds, msg.Event.String())
		case events.RemoveTrack:
			kinds = append(kinds, "remove")
		}
	}
	want := []string{"add", "track_play", "track_end", "remove"}
	if len(kinds) != len(want) {
		t.Fatalf("expected %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, kinds)
		}
	}
	if len(m.tracks) != 0 {
		t.Fatalf("expected no tracks left, got %d", len(m.tracks))
	}
}

func TestMixer_MutedSendsNoAudio(t *testing.T) {
	m := newTestMixer(t)
	a := newTestConn(1)
	m.handle(SetConn{Conn: a.conn, Generation: 1})
	m.handle(SetMute{Mute: true})
	track := tracks.New(&constSource{sample: 5, frames: 3})
	m.handle(AddTrack{Track: track})
	m.tick()
	if _, ok := a.tx.TryRecv(); ok {
		t.Fatal("expected no frames while muted")
	}
	if st := track.Handle().State(); st.Position != audio.FrameDuration {
		t.Fatalf("expected track to keep advancing while muted, got %s", st.Position)
	}
}

func TestMixer_DisabledProducesNothing(t *testing.T) {
	m := newTestMixer(t)
	a := newTestConn(1)
	m.handle(SetConn{Conn: a.conn, Generation: 1})
	m.handle(SetDisabled{Disabled: true})
	track := tracks.New(&constSource{sample: 5, frames: 3})
	m.handle(AddTrack{Track: track})
	m.tick()
	if _, ok := a.tx.TryRecv(); ok {
		t.Fatal("expected no frames while disabled")
	}
	if st := track.Handle().State(); st.Position != 0 {
		t.Fatalf("expected track to stay put while disabled, got %s", st.Position)
	}
}

func TestMixer_SetTrackReplacesTracks(t *testing.T) {
	m := newTestMixer(t)
	first := tracks.New(&constSource{sample: 1, frames: 10})
	second := tracks.New(&constSource{sample: 2, frames: 10})
	m.handle(AddTrack{Track: first})
	m.handle(SetTrack{Track: second})
	if len(m.tracks) != 1 || m.tracks[0].ID() != second.ID() {
		t.Fatal("expected only the new track to remain")
	}
	if st := first.Handle().State(); st.Playing != tracks.Stop {
		t.Fatalf("expected replaced track to stop, got %s", st.Playing)
	}
	m.handle(SetTrack{})
	if len(m.tracks) != 0 {
		t.Fatalf("expected tracks cleared, got %d", len(m.tracks))
	}
}

func TestMixer_WsDetach(t *testing.T) {
	m := newTestMixer(t)
	wsTx, wsRx := chanx.Unbounded[message.WsMessage]()
	a := newTestConn(1)
	m.handle(Ws{Sender: &wsTx})
	m.handle(Ws{})
	m.handle(SetConn{Conn: a.conn, Generation: 1})
	m.handle(AddTrack{Track: tracks.New(&constSource{sample: 1, frames: 1})})
	m.tick()
	if wsRx.Len() != 0 {
		t.Fatalf("expected nothing on detached ws sink, got %d", wsRx.Len())
	}
}

func TestMixer_ReplaceInterconnectReannouncesTracks(t *testing.T) {
	m := newTestMixer(t)
	track := tracks.New(&constSource{sample: 1, frames: 10})
	m.handle(AddTrack{Track: track})

	evTx, evRx := chanx.Unbounded[events.Message]()
	m.handle(ReplaceInterconnect{Interconnect: Interconnect{Events: evTx}})
	msg, ok := evRx.TryRecv()
	if !ok {
		t.Fatal("expected track to be announced on the new event channel")
	}
	if add, ok := msg.(events.AddTrack); !ok || add.Handle != track.Handle() {
		t.Fatalf("expected AddTrack for the existing track, got %#v", msg)
	}
}
