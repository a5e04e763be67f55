// Package session keeps one voice driver per guild alive and records what
// happens to its connection.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foxseedlab/koedriver/internal/chanx"
	"github.com/foxseedlab/koedriver/internal/config"
	"github.com/foxseedlab/koedriver/internal/discord"
	"github.com/foxseedlab/koedriver/internal/events"
	"github.com/foxseedlab/koedriver/internal/metrics"
	"github.com/foxseedlab/koedriver/internal/model"
	"github.com/foxseedlab/koedriver/internal/repository"
	"github.com/foxseedlab/koedriver/internal/webhook"
)

const (
	StopReasonManualSlash      = "manual_slash"
	StopReasonParticipantsLeft = "participants_left"
	StopReasonBotRemoved       = "bot_removed"
	StopReasonServerClosed     = "server_closed"
	StopReasonConnectionLost   = "connection_lost"

	joinTimeout    = 20 * time.Second
	persistTimeout = 5 * time.Second
)

var (
	ErrAlreadyRunning = errors.New("session: driver already connected to this channel")
	ErrNotRunning     = errors.New("session: no driver for this guild")
)

// Driver is the part of *driver.Driver the manager relies on.
type Driver interface {
	Connect(ctx context.Context, info model.ConnectionInfo) error
	Leave()
	Close()
	IsConnected() bool
	Mute(mute bool)
	IsMuted() bool
	AddGlobalEvent(ev events.Event, h events.Handler)
}

type DriverFactory func(guildID string) Driver

type Manager struct {
	cfg       *config.Config
	repo      repository.Repository
	discord   discord.Client
	webhook   webhook.Sender
	metrics   *metrics.Metrics
	newDriver DriverFactory

	mu        sync.Mutex
	botUserID string
	drivers   map[string]*guildDriver

	// Connection records are written in order off the drivers' event tasks.
	records   chanx.Sender[func()]
	recordsRx chanx.Receiver[func()]
	pending   sync.WaitGroup
	closed    bool
}

type guildDriver struct {
	driver    Driver
	channelID string
	startedAt time.Time
}

func NewManager(cfg *config.Config, repo repository.Repository, dc discord.Client, wh webhook.Sender, m *metrics.Metrics, newDriver DriverFactory) *Manager {
	records, recordsRx := chanx.Unbounded[func()]()
	mgr := &Manager{
		cfg:       cfg,
		repo:      repo,
		discord:   dc,
		webhook:   wh,
		metrics:   m,
		newDriver: newDriver,
		drivers:   make(map[string]*guildDriver),
		records:   records,
		recordsRx: recordsRx,
	}
	go mgr.runRecords()
	return mgr
}

func (m *Manager) runRecords() {
	for {
		job, err := m.recordsRx.Recv(context.Background())
		if err != nil {
			return
		}
		job()
		m.pending.Done()
	}
}

func (m *Manager) enqueueRecord(job func()) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		slog.Warn("manager closed; dropping connection record")
		return
	}
	m.pending.Add(1)
	m.mu.Unlock()
	if err := m.records.Send(job); err != nil {
		m.pending.Done()
		slog.Warn("manager closed; dropping connection record", "error", err)
	}
}

// Wait blocks until every queued connection record has been written.
func (m *Manager) Wait() {
	m.pending.Wait()
}

// Close flushes queued connection records and stops the record writer.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.pending.Wait()
	m.recordsRx.Close()
}

func (m *Manager) SetBotUserID(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.botUserID = userID
}

// Start joins channelID and connects the guild's driver to it. A driver
// already in another channel of the guild moves over.
func (m *Manager) Start(ctx context.Context, guildID, channelID string) error {
	m.mu.Lock()
	gd, exists := m.drivers[guildID]
	if exists && gd.channelID == channelID && gd.driver.IsConnected() {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	if !exists {
		gd = &guildDriver{driver: m.newDriver(guildID), channelID: channelID, startedAt: time.Now()}
		m.registerListeners(gd.driver)
		m.drivers[guildID] = gd
		m.metrics.DriverStarted()
	}
	gd.channelID = channelID
	m.mu.Unlock()

	slog.Info("start requested", "guild_id", guildID, "channel_id", channelID, "existing", exists)
	joinCtx, cancel := context.WithTimeout(ctx, joinTimeout)
	defer cancel()
	info, err := m.discord.JoinVoiceChannel(joinCtx, guildID, channelID)
	if err == nil {
		err = gd.driver.Connect(joinCtx, info)
	}
	if err != nil {
		slog.Error("failed to connect voice driver", "error", err, "guild_id", guildID, "channel_id", channelID)
		if !exists {
			m.release(guildID, gd)
		}
		return fmt.Errorf("start guild %s channel %s: %w", guildID, channelID, err)
	}
	slog.Info("voice driver connected", "guild_id", guildID, "channel_id", channelID)
	return nil
}

// Stop disconnects and discards the guild's driver.
func (m *Manager) Stop(guildID, reason string) error {
	m.mu.Lock()
	gd, ok := m.drivers[guildID]
	m.mu.Unlock()
	if !ok {
		return ErrNotRunning
	}
	slog.Info("stopping voice driver", "guild_id", guildID, "channel_id", gd.channelID, "reason", reason, "uptime", time.Since(gd.startedAt).String())
	gd.driver.Leave()
	m.release(guildID, gd)
	if err := m.discord.LeaveVoiceChannel(guildID); err != nil {
		return fmt.Errorf("leave voice channel: %w", err)
	}
	if err := m.discord.SendChannelMessage(gd.channelID, disconnectedMessage(reason)); err != nil {
		slog.Warn("failed to post disconnect notice", "error", err, "channel_id", gd.channelID)
	}
	return nil
}

func (m *Manager) StopAll(reason string) {
	m.mu.Lock()
	guildIDs := make([]string, 0, len(m.drivers))
	for id := range m.drivers {
		guildIDs = append(guildIDs, id)
	}
	m.mu.Unlock()
	for _, id := range guildIDs {
		if err := m.Stop(id, reason); err != nil && !errors.Is(err, ErrNotRunning) {
			slog.Error("failed to stop voice driver", "error", err, "guild_id", id)
		}
	}
}

func (m *Manager) release(guildID string, gd *guildDriver) {
	m.mu.Lock()
	current, ok := m.drivers[guildID]
	if ok && current == gd {
		delete(m.drivers, guildID)
	}
	m.mu.Unlock()
	if ok && current == gd {
		gd.driver.Close()
		m.metrics.DriverStopped()
	}
}

func (m *Manager) driverFor(guildID string) (*guildDriver, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gd, ok := m.drivers[guildID]
	return gd, ok
}

// HandleVoiceServerUpdate reconnects a running driver after the voice server
// of its guild changed.
func (m *Manager) HandleVoiceServerUpdate(info model.ConnectionInfo) {
	gd, ok := m.driverFor(info.GuildID)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()
	if err := gd.driver.Connect(ctx, info); err != nil {
		slog.Error("failed to reconnect after voice server update", "error", err, "guild_id", info.GuildID, "endpoint", info.Endpoint)
	}
}

func (m *Manager) HandleVoiceStateUpdate(event discord.VoiceStateEvent) {
	if event.GuildID != m.cfg.DiscordGuildID {
		slog.Debug("ignoring voice event for different guild", "event_guild_id", event.GuildID)
		return
	}
	m.mu.Lock()
	botUserID := m.botUserID
	m.mu.Unlock()

	gd, running := m.driverFor(event.GuildID)
	if event.UserID == botUserID {
		if running && event.AfterChannelID == "" && event.BeforeChannelID != "" {
			slog.Warn("bot was removed from voice channel", "guild_id", event.GuildID, "channel_id", event.BeforeChannelID)
			if err := m.Stop(event.GuildID, StopReasonBotRemoved); err != nil && !errors.Is(err, ErrNotRunning) {
				slog.Error("failed to stop after bot removal", "error", err)
			}
		}
		return
	}
	if event.UserIsBot {
		return
	}

	// A driver left behind by a connection failure is revived by the next join.
	if !running || !gd.driver.IsConnected() {
		if event.AfterChannelID == m.cfg.DiscordVCID {
			if err := m.Start(context.Background(), event.GuildID, event.AfterChannelID); err != nil {
				slog.Error("failed to auto start voice driver", "error", err)
			}
			return
		}
		if !running {
			return
		}
	}
	if event.BeforeChannelID != gd.channelID || event.AfterChannelID == gd.channelID {
		return
	}
	participants, err := m.discord.ListVoiceChannelParticipants(event.GuildID, gd.channelID)
	if err != nil {
		slog.Error("failed to list voice participants", "error", err, "guild_id", event.GuildID)
		return
	}
	for _, p := range participants {
		if p.UserID != botUserID && !p.IsBot {
			return
		}
	}
	if err := m.Stop(event.GuildID, StopReasonParticipantsLeft); err != nil && !errors.Is(err, ErrNotRunning) {
		slog.Error("failed to stop after participants left", "error", err)
	}
}

func (m *Manager) registerListeners(d Driver) {
	d.AddGlobalEvent(events.Core(events.DriverConnect), events.HandlerFunc(func(ec events.EventContext) events.Action {
		if c, ok := ec.(events.DriverConnectContext); ok {
			m.enqueueRecord(func() { m.recordConnect(c.Data, repository.ConnectionKindConnect) })
		}
		return events.Keep
	}))
	d.AddGlobalEvent(events.Core(events.DriverReconnect), events.HandlerFunc(func(ec events.EventContext) events.Action {
		if c, ok := ec.(events.DriverReconnectContext); ok {
			m.enqueueRecord(func() { m.recordConnect(c.Data, repository.ConnectionKindReconnect) })
		}
		return events.Keep
	}))
	d.AddGlobalEvent(events.Core(events.DriverDisconnect), events.HandlerFunc(func(ec events.EventContext) events.Action {
		if c, ok := ec.(events.DriverDisconnectContext); ok {
			m.enqueueRecord(func() { m.recordDisconnect(c.Data) })
		}
		return events.Keep
	}))
}

func (m *Manager) recordConnect(data events.ConnectData, kind repository.ConnectionKind) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	conn, err := m.repo.RecordConnect(ctx, repository.RecordConnectInput{
		GuildID:     data.GuildID,
		ChannelID:   data.ChannelID,
		SessionID:   data.SessionID,
		Endpoint:    data.Server,
		SSRC:        data.SSRC,
		Kind:        kind,
		ConnectedAt: time.Now(),
	})
	if err != nil {
		slog.Error("failed to record voice connection", "error", err, "guild_id", data.GuildID, "kind", string(kind))
		return
	}
	slog.Info("voice connection recorded", "connection_id", conn.ID, "guild_id", data.GuildID, "kind", string(kind))
}

func (m *Manager) recordDisconnect(data events.DisconnectData) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	now := time.Now()
	if err := m.repo.RecordDisconnect(ctx, repository.RecordDisconnectInput{
		GuildID:        data.GuildID,
		ChannelID:      data.ChannelID,
		SessionID:      data.SessionID,
		Kind:           data.Kind.String(),
		Reason:         data.Reason.String(),
		DisconnectedAt: now,
	}); err != nil {
		slog.Error("failed to record voice disconnect", "error", err, "guild_id", data.GuildID)
	}
	if err := m.webhook.SendDisconnect(ctx, webhook.DisconnectPayload{
		GuildID:        data.GuildID,
		ChannelID:      data.ChannelID,
		SessionID:      data.SessionID,
		Kind:           data.Kind.String(),
		Reason:         data.Reason.String(),
		DisconnectedAt: now,
	}); err != nil {
		slog.Error("failed to send disconnect webhook", "error", err, "guild_id", data.GuildID)
	}
	if data.Kind == events.DisconnectRuntime && data.Reason != events.ReasonNone && data.ChannelID != "" {
		if err := m.discord.SendChannelMessage(data.ChannelID, disconnectedMessage(StopReasonConnectionLost)); err != nil {
			slog.Warn("failed to post disconnect notice", "error", err, "channel_id", data.ChannelID)
		}
	}
}
