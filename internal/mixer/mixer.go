// Package mixer runs the task that owns playback state and the active
// transport connection. Every other component reconfigures it by sending
// Message values.
package mixer

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/foxseedlab/koedriver/internal/audio"
	"github.com/foxseedlab/koedriver/internal/chanx"
	"github.com/foxseedlab/koedriver/internal/config"
	"github.com/foxseedlab/koedriver/internal/events"
	"github.com/foxseedlab/koedriver/internal/message"
	"github.com/foxseedlab/koedriver/internal/metrics"
	"github.com/looplab/fsm"
)

type Config struct {
	Driver     config.Driver
	NewEncoder audio.EncoderFactory
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	// Interval between audio frames. Zero means audio.FrameDuration.
	Interval time.Duration
}

type Mixer struct {
	rx           chanx.Receiver[Message]
	interconnect Interconnect
	cfg          config.Driver
	newEncoder   audio.EncoderFactory
	metrics      *metrics.Metrics
	log          *slog.Logger
	interval     time.Duration

	state         *fsm.FSM
	conn          *Connection
	generation    uint32
	hasGeneration bool
	ws            *chanx.Sender[message.WsMessage]
	muted         bool
	disabled      bool
	poisoned      bool

	bitrate audio.Bitrate
	encoder audio.Encoder
	tracks  []*mixTrack

	out outbound
}

func New(rx chanx.Receiver[Message], ic Interconnect, cfg Config) *Mixer {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = audio.FrameDuration
	}
	m := &Mixer{
		rx:           rx,
		interconnect: ic,
		cfg:          cfg.Driver,
		newEncoder:   cfg.NewEncoder,
		metrics:      cfg.Metrics,
		log:          log,
		interval:     interval,
		bitrate:      cfg.Driver.Bitrate,
		tracks:       make([]*mixTrack, 0, cfg.Driver.PreallocatedTracks),
	}
	m.state = newStateMachine(func(from, to string) {
		m.metrics.MixerStateChanged(from, to)
		m.log.Debug("mixer state changed", "from", from, "to", to)
	})
	m.metrics.MixerStateChanged("", StateIdle)
	m.rebuildEncoder()
	return m
}

// Run drains commands and produces one audio frame per interval until Poison
// is received or ctx ends. Any connection still held on exit is torn down.
func (m *Mixer) Run(ctx context.Context) {
	defer m.shutdown()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.log.Debug("mixer started")
	for {
		select {
		case <-ctx.Done():
			m.log.Debug("mixer stopped", "reason", ctx.Err())
			return
		case <-m.rx.Notify():
			if m.drain() {
				return
			}
		case <-ticker.C:
			if m.drain() {
				return
			}
			m.tick()
		}
	}
}

// drain applies every queued command and reports whether Poison was seen.
func (m *Mixer) drain() bool {
	for {
		msg, ok := m.rx.TryRecv()
		if !ok {
			return false
		}
		if m.handle(msg) {
			return true
		}
	}
}

// handle applies one command and reports whether the mixer must stop.
func (m *Mixer) handle(msg Message) bool {
	if m.poisoned {
		return true
	}
	m.metrics.MixerCommand(msg.kind())
	switch msg := msg.(type) {
	case AddTrack:
		m.addTrack(msg.Track)
	case SetTrack:
		m.stopAll()
		m.addTrack(msg.Track)
	case SetBitrate:
		m.setBitrate(msg.Bitrate)
	case SetConfig:
		m.setConfig(msg.Config)
	case SetMute:
		m.muted = msg.Mute
	case SetDisabled:
		m.disabled = msg.Disabled
		if m.disabled {
			m.setSpeaking(false)
		}
	case SetConn:
		m.setConn(msg.Conn, msg.Generation)
	case Ws:
		m.ws = msg.Sender
	case DropConn:
		m.dropConn()
	case ReplaceInterconnect:
		m.replaceInterconnect(msg.Interconnect)
	case RebuildEncoder:
		m.rebuildEncoder()
	case Poison:
		m.dropConn()
		m.poisoned = true
		m.syncState()
		m.log.Debug("mixer poisoned")
		return true
	}
	m.syncState()
	return false
}

func (m *Mixer) setConn(conn *Connection, requested uint32) {
	if conn == nil {
		m.dropConn()
		return
	}
	if m.conn != nil && m.conn != conn {
		m.teardown()
	}
	gen := requested
	if m.hasGeneration && gen <= m.generation {
		gen = m.generation
		if gen < math.MaxUint32 {
			gen++
		}
	}
	m.conn = conn
	m.generation = gen
	m.hasGeneration = true
	m.out.reset()
	m.metrics.Generation(gen)
	m.log.Debug("connection installed", "generation", gen, "requested_generation", requested, "ssrc", conn.SSRC)
}

func (m *Mixer) dropConn() {
	if m.conn == nil {
		return
	}
	m.teardown()
}

func (m *Mixer) teardown() {
	m.setSpeaking(false)
	m.conn.Close()
	m.metrics.Teardown()
	m.log.Debug("connection torn down", "generation", m.generation, "ssrc", m.conn.SSRC)
	m.conn = nil
}

// Generation returns the generation of the most recently installed
// connection.
func (m *Mixer) Generation() (uint32, bool) {
	return m.generation, m.hasGeneration
}

func (m *Mixer) setConfig(cfg config.Driver) {
	rebuild := cfg.MixMode != m.cfg.MixMode || cfg.Bitrate != m.cfg.Bitrate
	m.cfg = cfg
	m.bitrate = cfg.Bitrate
	if rebuild {
		m.rebuildEncoder()
	}
	if m.conn != nil {
		_ = m.conn.UDPRx.Send(message.UDPRxSetConfig{Config: cfg})
	}
}

func (m *Mixer) setBitrate(b audio.Bitrate) {
	m.bitrate = b
	if m.encoder == nil {
		return
	}
	if err := m.encoder.SetBitrate(b); err != nil {
		m.log.Warn("failed to apply bitrate; keeping previous", "bitrate", b.String(), "error", err)
	}
}

// rebuildEncoder replaces the encoder. On failure the mixer keeps running
// without one and stays silent until a later rebuild succeeds.
func (m *Mixer) rebuildEncoder() {
	if m.newEncoder == nil {
		m.encoder = nil
		return
	}
	cfg := m.cfg.EncoderConfig()
	cfg.Bitrate = m.bitrate
	enc, err := m.newEncoder(cfg)
	if err != nil {
		m.encoder = nil
		m.log.Warn("failed to rebuild encoder; mixer continues silent", "mix_mode", cfg.MixMode.String(), "bitrate", cfg.Bitrate.String(), "error", err)
		return
	}
	m.encoder = enc
}

func (m *Mixer) replaceInterconnect(ic Interconnect) {
	m.interconnect = ic
	for _, t := range m.tracks {
		m.sendEvent(events.AddTrack{Handle: t.Handle()})
	}
}

func (m *Mixer) sendEvent(msg events.Message) {
	if err := m.interconnect.Events.Send(msg); err != nil {
		m.log.Debug("event task unavailable; dropping event", "error", err)
	}
}

func (m *Mixer) shutdown() {
	m.rx.Close()
	m.dropConn()
	if !m.poisoned {
		m.poisoned = true
		m.syncState()
	}
}
