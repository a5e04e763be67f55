// Package driver is the public face of a voice connection for one guild. It
// owns the mixer and event tasks for its whole life and spawns transport
// tasks for every connection it establishes.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/foxseedlab/koedriver/internal/audio"
	"github.com/foxseedlab/koedriver/internal/chanx"
	"github.com/foxseedlab/koedriver/internal/config"
	"github.com/foxseedlab/koedriver/internal/crypto"
	"github.com/foxseedlab/koedriver/internal/events"
	"github.com/foxseedlab/koedriver/internal/message"
	"github.com/foxseedlab/koedriver/internal/metrics"
	"github.com/foxseedlab/koedriver/internal/mixer"
	"github.com/foxseedlab/koedriver/internal/model"
	"github.com/foxseedlab/koedriver/internal/tracks"
	"github.com/foxseedlab/koedriver/internal/udp"
	"github.com/foxseedlab/koedriver/internal/ws"
)

type Config struct {
	Driver     config.Driver
	NewEncoder audio.EncoderFactory
	NewDecoder audio.DecoderFactory
	Handshaker Handshaker
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

type session struct {
	info       model.ConnectionInfo
	generation uint32
	ws         chanx.Sender[message.WsMessage]
}

type Driver struct {
	cfg    Config
	log    *slog.Logger
	mixer  chanx.Sender[mixer.Message]
	events chanx.Sender[events.Message]
	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup

	mu         sync.Mutex
	driverCfg  config.Driver
	current    *session
	generation uint32
	connected  bool
	muted      bool
	closed     bool
}

// New starts the mixer and event tasks. Close stops them.
func New(cfg Config) *Driver {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	mixTx, mixRx := chanx.Unbounded[mixer.Message]()
	evTx, evRx := chanx.Unbounded[events.Message]()
	d := &Driver{
		cfg:       cfg,
		log:       log,
		mixer:     mixTx,
		events:    evTx,
		ctx:       ctx,
		cancel:    cancel,
		driverCfg: cfg.Driver,
	}
	m := mixer.New(mixRx, mixer.Interconnect{Events: evTx}, mixer.Config{
		Driver:     cfg.Driver,
		NewEncoder: cfg.NewEncoder,
		Metrics:    cfg.Metrics,
		Logger:     log,
	})
	d.tasks.Add(2)
	go func() {
		defer d.tasks.Done()
		m.Run(ctx)
	}()
	go func() {
		defer d.tasks.Done()
		events.Run(ctx, evRx, cfg.Metrics)
	}()
	return d
}

// Connect performs the voice handshake and hands the new connection to the
// mixer. A live connection is replaced.
func (d *Driver) Connect(ctx context.Context, info model.ConnectionInfo) error {
	if !info.Complete() {
		return ErrIncompleteInfo
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	reconnect := d.connected
	mode := d.driverCfg.CryptoMode
	d.mu.Unlock()

	kind := events.DisconnectConnect
	if reconnect {
		kind = events.DisconnectReconnect
	}
	est, err := d.cfg.Handshaker.Handshake(ctx, info, mode)
	if err != nil {
		d.fire(events.CoreDriverDisconnect{Data: events.InternalDisconnect{
			Kind:   kind,
			Reason: disconnectReason(err),
			Info:   info,
		}})
		d.log.Warn("voice handshake failed", "guild_id", info.GuildID, "channel_id", info.ChannelID, "error", err)
		return fmt.Errorf("voice handshake: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		_ = est.WS.Close()
		_ = est.UDP.Close()
		return ErrClosed
	}
	if d.current != nil {
		_ = d.current.ws.Send(message.WsPoison{})
	}
	d.generation++
	gen := d.generation
	sess, conn := d.spawn(est, info, gen)
	d.current = sess

	_ = d.mixer.Send(mixer.SetConn{Conn: conn, Generation: gen})
	wsSender := sess.ws.Clone()
	_ = d.mixer.Send(mixer.Ws{Sender: &wsSender})

	cipher := conn.Cipher.Clone()
	data := events.InternalConnect{Info: info, SSRC: est.SSRC}
	if d.connected {
		d.fire(events.CoreDriverReconnect{Data: data, UDPTx: conn.UDPTx.Clone(), WS: sess.ws.Clone(), Cipher: &cipher})
	} else {
		d.fire(events.CoreDriverConnect{Data: data, UDPTx: conn.UDPTx.Clone(), WS: sess.ws.Clone(), Cipher: &cipher})
	}
	d.connected = true
	d.log.Info("voice connection established", "guild_id", info.GuildID, "channel_id", info.ChannelID, "ssrc", est.SSRC, "crypto_mode", est.Mode.String(), "generation", gen, "reconnect", reconnect)
	return nil
}

// spawn starts the transport tasks for one connection generation. Must be
// called with d.mu held.
func (d *Driver) spawn(est *Established, info model.ConnectionInfo, gen uint32) (*session, *mixer.Connection) {
	udpRxTx, udpRxRecv := chanx.Unbounded[message.UDPRxMessage]()
	udpTxTx, udpTxRecv := chanx.Unbounded[message.UDPTxMessage]()
	wsTx, wsRecv := chanx.Unbounded[message.WsMessage]()
	cipher := crypto.NewCipher(est.Key)
	conn := mixer.NewConnection(cipher, crypto.NewState(est.Mode), est.SSRC, udpRxTx, udpTxTx)
	log := d.log.With("guild_id", info.GuildID, "generation", gen)
	onError := func(err error) { d.transportFailed(gen, err) }

	go udp.RunRx(d.ctx, udpRxRecv, udp.RxConfig{
		Conn:       est.UDP,
		Cipher:     cipher,
		Mode:       est.Mode,
		Driver:     d.driverCfg,
		NewDecoder: d.cfg.NewDecoder,
		Events:     d.events,
		Metrics:    d.cfg.Metrics,
		Logger:     log,
		OnError:    onError,
	})
	go udp.RunTx(d.ctx, udpTxRecv, udp.TxConfig{
		Conn:    est.UDP,
		SSRC:    est.SSRC,
		Metrics: d.cfg.Metrics,
		Logger:  log,
	})
	go ws.Run(d.ctx, wsRecv, ws.Config{
		Conn:              est.WS,
		SSRC:              est.SSRC,
		HeartbeatInterval: est.HeartbeatInterval,
		Events:            d.events,
		Logger:            log,
		OnError:           onError,
	})
	return &session{info: info, generation: gen, ws: wsTx}, conn
}

// transportFailed tears down the connection of generation gen if it is still
// the live one.
func (d *Driver) transportFailed(gen uint32, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil || d.current.generation != gen {
		return
	}
	info := d.current.info
	d.dropLocked()
	d.fire(events.CoreDriverDisconnect{Data: events.InternalDisconnect{
		Kind:   events.DisconnectRuntime,
		Reason: disconnectReason(err),
		Info:   info,
	}})
	d.log.Warn("voice connection lost", "guild_id", info.GuildID, "channel_id", info.ChannelID, "generation", gen, "error", err)
}

func (d *Driver) dropLocked() {
	_ = d.current.ws.Send(message.WsPoison{})
	_ = d.mixer.Send(mixer.DropConn{})
	_ = d.mixer.Send(mixer.Ws{})
	d.current = nil
}

// Leave drops the live connection, if any.
func (d *Driver) Leave() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return
	}
	info := d.current.info
	d.dropLocked()
	// The next Connect starts a new session rather than resuming this one.
	d.connected = false
	d.fire(events.CoreDriverDisconnect{Data: events.InternalDisconnect{
		Kind:   events.DisconnectRuntime,
		Reason: events.ReasonNone,
		Info:   info,
	}})
	d.log.Info("left voice channel", "guild_id", info.GuildID, "channel_id", info.ChannelID)
}

// IsConnected reports whether a connection is currently installed.
func (d *Driver) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current != nil
}

// Play adds t to the mix alongside any current tracks.
func (d *Driver) Play(t *tracks.Track) *tracks.Handle {
	d.send(mixer.AddTrack{Track: t})
	return t.Handle()
}

// PlayOnly stops every current track and plays t alone.
func (d *Driver) PlayOnly(t *tracks.Track) *tracks.Handle {
	d.send(mixer.SetTrack{Track: t})
	return t.Handle()
}

func (d *Driver) PlaySource(src audio.Source) *tracks.Handle {
	return d.Play(tracks.New(src))
}

// Stop ends every track.
func (d *Driver) Stop() {
	d.send(mixer.SetTrack{})
}

func (d *Driver) SetBitrate(b audio.Bitrate) {
	d.send(mixer.SetBitrate{Bitrate: b})
}

// SetConfig replaces the runtime config. The crypto mode applies from the
// next connection.
func (d *Driver) SetConfig(cfg config.Driver) {
	d.mu.Lock()
	d.driverCfg = cfg
	d.mu.Unlock()
	d.send(mixer.SetConfig{Config: cfg})
}

func (d *Driver) Config() config.Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.driverCfg
}

func (d *Driver) Mute(mute bool) {
	d.mu.Lock()
	d.muted = mute
	d.mu.Unlock()
	d.send(mixer.SetMute{Mute: mute})
}

func (d *Driver) IsMuted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.muted
}

func (d *Driver) SetDisabled(disabled bool) {
	d.send(mixer.SetDisabled{Disabled: disabled})
}

func (d *Driver) RebuildEncoder() {
	d.send(mixer.RebuildEncoder{})
}

func (d *Driver) AddGlobalEvent(ev events.Event, h events.Handler) {
	if err := d.events.Send(events.AddGlobalEvent{Event: ev, Handler: h}); err != nil {
		d.log.Debug("event task unavailable; dropping listener", "event", ev.String(), "error", err)
	}
}

// AddTrackEvent attaches h to one track's events.
func (d *Driver) AddTrackEvent(h *tracks.Handle, ev events.TrackEvent, handler events.Handler) {
	_ = d.events.Send(events.AddTrackEvent{ID: h.ID(), Event: ev, Handler: handler})
}

// Close leaves the channel and stops every task owned by the driver.
func (d *Driver) Close() {
	d.Leave()
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	_ = d.mixer.Send(mixer.Poison{})
	_ = d.events.Send(events.Poison{})
	d.tasks.Wait()
	d.cancel()
}

func (d *Driver) send(msg mixer.Message) {
	if err := d.mixer.Send(msg); err != nil {
		d.log.Debug("mixer unavailable; dropping command", "error", err)
	}
}

func (d *Driver) fire(c events.CoreContext) {
	if err := d.events.Send(events.FireCoreEvent{Ctx: c}); err != nil {
		d.log.Debug("event task unavailable; dropping event", "event", events.CoreEventOf(c).String(), "error", err)
	}
}
