package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/foxseedlab/koedriver/internal/config"
	"github.com/foxseedlab/koedriver/internal/discord"
	"github.com/foxseedlab/koedriver/internal/events"
	"github.com/foxseedlab/koedriver/internal/model"
	"github.com/foxseedlab/koedriver/internal/repository"
	"github.com/foxseedlab/koedriver/internal/webhook"
)

type mockRepository struct {
	mu          sync.Mutex
	connects    []repository.RecordConnectInput
	disconnects []repository.RecordDisconnectInput
	connectErr  error
}

func (m *mockRepository) RecordConnect(_ context.Context, input repository.RecordConnectInput) (*repository.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connectErr != nil {
		return nil, m.connectErr
	}
	m.connects = append(m.connects, input)
	at := input.ConnectedAt
	return &repository.Connection{
		ID:          fmt.Sprintf("conn-%d", len(m.connects)),
		GuildID:     input.GuildID,
		Kind:        input.Kind,
		ConnectedAt: &at,
	}, nil
}

func (m *mockRepository) RecordDisconnect(_ context.Context, input repository.RecordDisconnectInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects = append(m.disconnects, input)
	return nil
}

func (m *mockRepository) ListConnections(_ context.Context, _ string, _ int) ([]repository.Connection, error) {
	return nil, nil
}

type mockDiscordClient struct {
	sendCalls            []string
	joins                []string
	leaves               []string
	joinErr              error
	userVoiceChannelByID map[string]string
	participants         []discord.VoiceParticipant
}

func (m *mockDiscordClient) Connect(_ context.Context) error { return nil }
func (m *mockDiscordClient) Close() error                    { return nil }
func (m *mockDiscordClient) JoinVoiceChannel(_ context.Context, guildID, channelID string) (model.ConnectionInfo, error) {
	m.joins = append(m.joins, channelID)
	if m.joinErr != nil {
		return model.ConnectionInfo{}, m.joinErr
	}
	return model.ConnectionInfo{
		ChannelID: channelID,
		Endpoint:  "voice.example:443",
		GuildID:   guildID,
		SessionID: "session-1",
		Token:     "tok",
		UserID:    "bot-self",
	}, nil
}
func (m *mockDiscordClient) LeaveVoiceChannel(guildID string) error {
	m.leaves = append(m.leaves, guildID)
	return nil
}
func (m *mockDiscordClient) RegisterVoiceServerUpdateHandler(_ func(model.ConnectionInfo)) {}
func (m *mockDiscordClient) RegisterVoiceStateUpdateHandler(_ func(discord.VoiceStateEvent)) {}
func (m *mockDiscordClient) RegisterSlashCommandHandler(_ func(discord.SlashCommandEvent))   {}
func (m *mockDiscordClient) UpsertGuildSlashCommands(_ string, _ []discord.SlashCommandDefinition) error {
	return nil
}
func (m *mockDiscordClient) SendChannelMessage(_ string, content string) error {
	m.sendCalls = append(m.sendCalls, content)
	return nil
}
func (m *mockDiscordClient) GetUserVoiceChannelID(_, userID string) (string, error) {
	if m.userVoiceChannelByID == nil {
		return "", nil
	}
	return m.userVoiceChannelByID[userID], nil
}
func (m *mockDiscordClient) ListVoiceChannelParticipants(_, _ string) ([]discord.VoiceParticipant, error) {
	return m.participants, nil
}
func (m *mockDiscordClient) GetBotUserID() (string, error) { return "bot-self", nil }

type mockWebhookSender struct {
	mu       sync.Mutex
	payloads []webhook.DisconnectPayload
	gate     chan struct{}
}

func (m *mockWebhookSender) SendDisconnect(_ context.Context, payload webhook.DisconnectPayload) error {
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads = append(m.payloads, payload)
	return nil
}

type fakeDriver struct {
	connects   []model.ConnectionInfo
	connectErr error
	connected  bool
	muted      bool
	left       int
	closed     int
	handlers   map[events.Event][]events.Handler
}

func (d *fakeDriver) Connect(_ context.Context, info model.ConnectionInfo) error {
	d.connects = append(d.connects, info)
	if d.connectErr != nil {
		return d.connectErr
	}
	d.connected = true
	return nil
}
func (d *fakeDriver) Leave()            { d.left++; d.connected = false }
func (d *fakeDriver) Close()            { d.closed++ }
func (d *fakeDriver) IsConnected() bool { return d.connected }
func (d *fakeDriver) Mute(mute bool)    { d.muted = mute }
func (d *fakeDriver) IsMuted() bool     { return d.muted }
func (d *fakeDriver) AddGlobalEvent(ev events.Event, h events.Handler) {
	if d.handlers == nil {
		d.handlers = make(map[events.Event][]events.Handler)
	}
	d.handlers[ev] = append(d.handlers[ev], h)
}

func (d *fakeDriver) fire(t *testing.T, ev events.CoreEvent, ec events.EventContext) {
	t.Helper()
	hs := d.handlers[events.Core(ev)]
	if len(hs) == 0 {
		t.Fatalf("expected a handler for %s", ev)
	}
	for _, h := range hs {
		h.Act(ec)
	}
}

type testEnv struct {
	manager *Manager
	repo    *mockRepository
	dc      *mockDiscordClient
	wh      *mockWebhookSender
	drivers []*fakeDriver
}

func newTestEnv() *testEnv {
	env := &testEnv{
		repo: &mockRepository{},
		dc:   &mockDiscordClient{},
		wh:   &mockWebhookSender{},
	}
	cfg := &config.Config{
		Env:            "test",
		DiscordGuildID: "guild-1",
		DiscordVCID:    "vc-1",
	}
	env.manager = NewManager(cfg, env.repo, env.dc, env.wh, nil, func(string) Driver {
		d := &fakeDriver{}
		env.drivers = append(env.drivers, d)
		return d
	})
	env.manager.SetBotUserID("bot-self")
	return env
}

func TestNewManager_CloseStopsRecording(t *testing.T) {
	env := newTestEnv()
	_ = env.manager.Start(context.Background(), "guild-1", "vc-1")
	env.manager.Close()

	env.drivers[0].fire(t, events.DriverConnect, events.DriverConnectContext{Data: events.ConnectData{GuildID: "guild-1"}})
	env.manager.Wait()

	if len(env.repo.connects) != 0 {
		t.Fatalf("expected no records after close, got %d", len(env.repo.connects))
	}
}

func TestStart_ConnectsDriverWithJoinedInfo(t *testing.T) {
	env := newTestEnv()

	if err := env.manager.Start(context.Background(), "guild-1", "vc-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(env.drivers) != 1 {
		t.Fatalf("expected one driver, got %d", len(env.drivers))
	}
	d := env.drivers[0]
	if len(d.connects) != 1 || d.connects[0].ChannelID != "vc-1" || d.connects[0].Endpoint != "voice.example:443" {
		t.Fatalf("unexpected connects: %+v", d.connects)
	}
	if len(d.handlers) != 3 {
		t.Fatalf("expected listeners for connect, reconnect and disconnect, got %d", len(d.handlers))
	}
}

func TestStart_AlreadyRunning(t *testing.T) {
	env := newTestEnv()
	_ = env.manager.Start(context.Background(), "guild-1", "vc-1")

	err := env.manager.Start(context.Background(), "guild-1", "vc-1")
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if len(env.drivers) != 1 {
		t.Fatalf("expected driver to be reused, got %d", len(env.drivers))
	}
}

func TestStart_MovesExistingDriver(t *testing.T) {
	env := newTestEnv()
	_ = env.manager.Start(context.Background(), "guild-1", "vc-1")

	if err := env.manager.Start(context.Background(), "guild-1", "vc-2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(env.drivers) != 1 {
		t.Fatalf("expected driver to be reused, got %d", len(env.drivers))
	}
	d := env.drivers[0]
	if len(d.connects) != 2 || d.connects[1].ChannelID != "vc-2" {
		t.Fatalf("unexpected connects: %+v", d.connects)
	}
	gd, _ := env.manager.driverFor("guild-1")
	if gd.channelID != "vc-2" {
		t.Fatalf("expected channel vc-2, got %s", gd.channelID)
	}
}

func TestStart_JoinFailureReleasesDriver(t *testing.T) {
	env := newTestEnv()
	env.dc.joinErr = context.DeadlineExceeded

	err := env.manager.Start(context.Background(), "guild-1", "vc-1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if _, ok := env.manager.driverFor("guild-1"); ok {
		t.Fatal("expected failed driver to be released")
	}
	if env.drivers[0].closed != 1 {
		t.Fatalf("expected driver to be closed once, got %d", env.drivers[0].closed)
	}
}

func TestStop_LeavesAndClosesDriver(t *testing.T) {
	env := newTestEnv()
	_ = env.manager.Start(context.Background(), "guild-1", "vc-1")

	if err := env.manager.Stop("guild-1", StopReasonManualSlash); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d := env.drivers[0]
	if d.left != 1 || d.closed != 1 {
		t.Fatalf("expected leave and close once, got leave=%d close=%d", d.left, d.closed)
	}
	if len(env.dc.leaves) != 1 || env.dc.leaves[0] != "guild-1" {
		t.Fatalf("unexpected gateway leaves: %+v", env.dc.leaves)
	}
	if len(env.dc.sendCalls) != 1 || env.dc.sendCalls[0] != disconnectedMessage(StopReasonManualSlash) {
		t.Fatalf("unexpected channel messages: %+v", env.dc.sendCalls)
	}
	if err := env.manager.Stop("guild-1", StopReasonManualSlash); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestStopAll_StopsEveryGuild(t *testing.T) {
	env := newTestEnv()
	_ = env.manager.Start(context.Background(), "guild-1", "vc-1")
	_ = env.manager.Start(context.Background(), "guild-2", "vc-9")

	env.manager.StopAll(StopReasonServerClosed)

	for i, d := range env.drivers {
		if d.closed != 1 {
			t.Fatalf("expected driver %d to be closed, got %d", i, d.closed)
		}
	}
	if len(env.manager.drivers) != 0 {
		t.Fatalf("expected no drivers left, got %d", len(env.manager.drivers))
	}
}

func TestListeners_RecordConnectAndReconnect(t *testing.T) {
	env := newTestEnv()
	_ = env.manager.Start(context.Background(), "guild-1", "vc-1")
	d := env.drivers[0]
	data := events.ConnectData{ChannelID: "vc-1", GuildID: "guild-1", SessionID: "session-1", Server: "voice.example:443", SSRC: 42}

	d.fire(t, events.DriverConnect, events.DriverConnectContext{Data: data})
	d.fire(t, events.DriverReconnect, events.DriverReconnectContext{Data: data})
	env.manager.Wait()

	if len(env.repo.connects) != 2 {
		t.Fatalf("expected two recorded connects, got %d", len(env.repo.connects))
	}
	first, second := env.repo.connects[0], env.repo.connects[1]
	if first.Kind != repository.ConnectionKindConnect || second.Kind != repository.ConnectionKindReconnect {
		t.Fatalf("unexpected kinds: %s, %s", first.Kind, second.Kind)
	}
	if first.SSRC != 42 || first.Endpoint != "voice.example:443" || first.ConnectedAt.IsZero() {
		t.Fatalf("unexpected connect input: %+v", first)
	}
}

func TestListeners_DisconnectRecordsAndNotifies(t *testing.T) {
	env := newTestEnv()
	_ = env.manager.Start(context.Background(), "guild-1", "vc-1")
	d := env.drivers[0]

	d.fire(t, events.DriverDisconnect, events.DriverDisconnectContext{Data: events.DisconnectData{
		Kind:      events.DisconnectRuntime,
		Reason:    events.ReasonWsClosed,
		ChannelID: "vc-1",
		GuildID:   "guild-1",
		SessionID: "session-1",
	}})
	env.manager.Wait()

	if len(env.repo.disconnects) != 1 {
		t.Fatalf("expected one recorded disconnect, got %d", len(env.repo.disconnects))
	}
	got := env.repo.disconnects[0]
	if got.Kind != events.DisconnectRuntime.String() || got.Reason != events.ReasonWsClosed.String() {
		t.Fatalf("unexpected disconnect input: %+v", got)
	}
	if len(env.wh.payloads) != 1 || env.wh.payloads[0].Reason != events.ReasonWsClosed.String() {
		t.Fatalf("unexpected webhook payloads: %+v", env.wh.payloads)
	}
	if len(env.dc.sendCalls) != 1 {
		t.Fatalf("expected a disconnect notice, got %+v", env.dc.sendCalls)
	}
}

func TestListeners_ConnectFailureIsNotPostedToChannel(t *testing.T) {
	env := newTestEnv()
	_ = env.manager.Start(context.Background(), "guild-1", "vc-1")

	env.drivers[0].fire(t, events.DriverDisconnect, events.DriverDisconnectContext{Data: events.DisconnectData{
		Kind:    events.DisconnectConnect,
		Reason:  events.ReasonTimedOut,
		GuildID: "guild-1",
	}})
	env.manager.Wait()

	if len(env.wh.payloads) != 1 {
		t.Fatalf("expected webhook to fire, got %d", len(env.wh.payloads))
	}
	if len(env.dc.sendCalls) != 0 {
		t.Fatalf("expected no channel message, got %+v", env.dc.sendCalls)
	}
}

func TestHandleVoiceServerUpdate_ReconnectsRunningDriver(t *testing.T) {
	env := newTestEnv()
	env.manager.HandleVoiceServerUpdate(model.ConnectionInfo{GuildID: "guild-1", Endpoint: "ignored:443"})
	if len(env.drivers) != 0 {
		t.Fatal("expected no driver to be created for an idle guild")
	}

	_ = env.manager.Start(context.Background(), "guild-1", "vc-1")
	env.manager.HandleVoiceServerUpdate(model.ConnectionInfo{GuildID: "guild-1", Endpoint: "moved.example:443"})

	d := env.drivers[0]
	if len(d.connects) != 2 || d.connects[1].Endpoint != "moved.example:443" {
		t.Fatalf("unexpected connects: %+v", d.connects)
	}
}

func TestHandleVoiceStateUpdate_IgnoresOtherGuild(t *testing.T) {
	env := newTestEnv()

	env.manager.HandleVoiceStateUpdate(discord.VoiceStateEvent{
		GuildID:        "guild-2",
		AfterChannelID: "vc-1",
		UserID:         "user-1",
	})

	if len(env.dc.joins) != 0 {
		t.Fatalf("expected no joins, got %+v", env.dc.joins)
	}
}

func TestHandleVoiceStateUpdate_AutoStartsOnTargetChannel(t *testing.T) {
	env := newTestEnv()

	env.manager.HandleVoiceStateUpdate(discord.VoiceStateEvent{GuildID: "guild-1", AfterChannelID: "vc-other", UserID: "user-1"})
	if len(env.dc.joins) != 0 {
		t.Fatalf("expected no join for non-target channel, got %+v", env.dc.joins)
	}
	env.manager.HandleVoiceStateUpdate(discord.VoiceStateEvent{GuildID: "guild-1", AfterChannelID: "vc-1", UserID: "bot-2", UserIsBot: true})
	if len(env.dc.joins) != 0 {
		t.Fatalf("expected bots to be ignored, got %+v", env.dc.joins)
	}
	env.manager.HandleVoiceStateUpdate(discord.VoiceStateEvent{GuildID: "guild-1", AfterChannelID: "vc-1", UserID: "user-1"})
	if len(env.dc.joins) != 1 || env.dc.joins[0] != "vc-1" {
		t.Fatalf("expected join of vc-1, got %+v", env.dc.joins)
	}
}

func TestHandleVoiceStateUpdate_StopsWhenOnlyBotsRemain(t *testing.T) {
	env := newTestEnv()
	_ = env.manager.Start(context.Background(), "guild-1", "vc-1")
	env.dc.participants = []discord.VoiceParticipant{
		{UserID: "bot-self", IsBot: true},
		{UserID: "music-bot", IsBot: true},
	}

	env.manager.HandleVoiceStateUpdate(discord.VoiceStateEvent{GuildID: "guild-1", BeforeChannelID: "vc-1", UserID: "user-1"})

	if _, ok := env.manager.driverFor("guild-1"); ok {
		t.Fatal("expected driver to stop once no humans remain")
	}
}

func TestHandleVoiceStateUpdate_KeepsRunningWhileHumansRemain(t *testing.T) {
	env := newTestEnv()
	_ = env.manager.Start(context.Background(), "guild-1", "vc-1")
	env.dc.participants = []discord.VoiceParticipant{
		{UserID: "bot-self", IsBot: true},
		{UserID: "user-2"},
	}

	env.manager.HandleVoiceStateUpdate(discord.VoiceStateEvent{GuildID: "guild-1", BeforeChannelID: "vc-1", UserID: "user-1"})

	if _, ok := env.manager.driverFor("guild-1"); !ok {
		t.Fatal("expected driver to keep running")
	}
}

func TestHandleVoiceStateUpdate_BotRemovedStopsDriver(t *testing.T) {
	env := newTestEnv()
	_ = env.manager.Start(context.Background(), "guild-1", "vc-1")

	env.manager.HandleVoiceStateUpdate(discord.VoiceStateEvent{GuildID: "guild-1", BeforeChannelID: "vc-1", UserID: "bot-self", UserIsBot: true})

	if _, ok := env.manager.driverFor("guild-1"); ok {
		t.Fatal("expected driver to stop after bot removal")
	}
	if env.dc.sendCalls[len(env.dc.sendCalls)-1] != disconnectedMessage(StopReasonBotRemoved) {
		t.Fatalf("unexpected notice: %+v", env.dc.sendCalls)
	}
}

func slashEvent(command string, got *string) discord.SlashCommandEvent {
	return discord.SlashCommandEvent{
		GuildID:     "guild-1",
		CommandName: command,
		UserID:      "user-1",
		RespondEphemeral: func(content string) error {
			*got = content
			return nil
		},
	}
}

func TestHandleSlashCommand_JoinRequiresVC(t *testing.T) {
	env := newTestEnv()
	var got string

	env.manager.HandleSlashCommand(slashEvent(commandJoin, &got))

	if got != messageEphemeralJoinVCFirst {
		t.Fatalf("expected join-vc-first message, got %q", got)
	}
	if len(env.drivers) != 0 {
		t.Fatalf("expected no driver, got %d", len(env.drivers))
	}
}

func TestHandleSlashCommand_JoinMuteLeave(t *testing.T) {
	env := newTestEnv()
	env.dc.userVoiceChannelByID = map[string]string{"user-1": "vc-3"}
	var got string

	env.manager.HandleSlashCommand(slashEvent(commandJoin, &got))
	if got != joinEphemeralTitle("vc-3") {
		t.Fatalf("unexpected join response: %q", got)
	}
	env.manager.HandleSlashCommand(slashEvent(commandJoin, &got))
	if got != messageEphemeralAlreadyRunning {
		t.Fatalf("unexpected second join response: %q", got)
	}

	env.manager.HandleSlashCommand(slashEvent(commandMute, &got))
	if got != messageMutedEphemeral || !env.drivers[0].muted {
		t.Fatalf("expected driver to be muted, got %q", got)
	}
	env.manager.HandleSlashCommand(slashEvent(commandMute, &got))
	if got != messageUnmutedEphemeral || env.drivers[0].muted {
		t.Fatalf("expected driver to be unmuted, got %q", got)
	}

	env.manager.HandleSlashCommand(slashEvent(commandLeave, &got))
	if got != leaveEphemeralTitle("vc-3") {
		t.Fatalf("unexpected leave response: %q", got)
	}
	env.manager.HandleSlashCommand(slashEvent(commandLeave, &got))
	if got != messageEphemeralNotRunning {
		t.Fatalf("unexpected second leave response: %q", got)
	}
}

func TestHandleSlashCommand_WrongGuildAndUnknown(t *testing.T) {
	env := newTestEnv()
	var got string

	ev := slashEvent(commandJoin, &got)
	ev.GuildID = "guild-2"
	env.manager.HandleSlashCommand(ev)
	if got != messageEphemeralWrongGuild {
		t.Fatalf("expected wrong guild message, got %q", got)
	}

	env.manager.HandleSlashCommand(slashEvent("unknown", &got))
	if got != messageEphemeralUnknownCommand {
		t.Fatalf("expected unknown command message, got %q", got)
	}
}

func TestSlashCommandDefinitions_HaveDescriptions(t *testing.T) {
	for _, def := range SlashCommandDefinitions() {
		if def.Name == "" || def.Description == "" {
			t.Fatalf("incomplete definition: %+v", def)
		}
	}
}

func TestListeners_VoluntaryLeaveIsNotPostedAsFailure(t *testing.T) {
	env := newTestEnv()
	_ = env.manager.Start(context.Background(), "guild-1", "vc-1")

	env.drivers[0].fire(t, events.DriverDisconnect, events.DriverDisconnectContext{Data: events.DisconnectData{
		Kind:      events.DisconnectRuntime,
		Reason:    events.ReasonNone,
		ChannelID: "vc-1",
		GuildID:   "guild-1",
	}})
	env.manager.Wait()

	if len(env.repo.disconnects) != 1 {
		t.Fatalf("expected the leave to be recorded, got %d", len(env.repo.disconnects))
	}
	if len(env.dc.sendCalls) != 0 {
		t.Fatalf("expected no failure notice, got %+v", env.dc.sendCalls)
	}
}

func TestListeners_DisconnectDoesNotBlockEventTask(t *testing.T) {
	env := newTestEnv()
	env.wh.gate = make(chan struct{})
	_ = env.manager.Start(context.Background(), "guild-1", "vc-1")
	d := env.drivers[0]

	fired := make(chan struct{})
	disconnect := d.handlers[events.Core(events.DriverDisconnect)][0]
	connect := d.handlers[events.Core(events.DriverConnect)][0]
	go func() {
		disconnect.Act(events.DriverDisconnectContext{Data: events.DisconnectData{
			Kind:    events.DisconnectRuntime,
			Reason:  events.ReasonWsClosed,
			GuildID: "guild-1",
		}})
		connect.Act(events.DriverConnectContext{Data: events.ConnectData{GuildID: "guild-1", SSRC: 7}})
		close(fired)
	}()
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("expected handlers to return while the webhook is pending")
	}

	close(env.wh.gate)
	env.manager.Wait()

	env.wh.mu.Lock()
	payloads := len(env.wh.payloads)
	env.wh.mu.Unlock()
	if payloads != 1 {
		t.Fatalf("expected one webhook payload, got %d", payloads)
	}
	env.repo.mu.Lock()
	defer env.repo.mu.Unlock()
	if len(env.repo.disconnects) != 1 || len(env.repo.connects) != 1 || env.repo.connects[0].SSRC != 7 {
		t.Fatalf("expected disconnect then connect to be recorded, got %+v / %+v", env.repo.disconnects, env.repo.connects)
	}
}

func TestHandleVoiceStateUpdate_RestartsDriverAfterConnectionLoss(t *testing.T) {
	env := newTestEnv()
	_ = env.manager.Start(context.Background(), "guild-1", "vc-1")
	d := env.drivers[0]
	d.connected = false

	env.manager.HandleVoiceStateUpdate(discord.VoiceStateEvent{GuildID: "guild-1", AfterChannelID: "vc-1", UserID: "user-1"})

	if len(env.dc.joins) != 2 {
		t.Fatalf("expected a second join, got %+v", env.dc.joins)
	}
	if len(env.drivers) != 1 {
		t.Fatalf("expected the existing driver to be reused, got %d", len(env.drivers))
	}
	if len(d.connects) != 2 || !d.connected {
		t.Fatalf("expected the driver to connect again, got %+v", d.connects)
	}

	env.manager.HandleVoiceStateUpdate(discord.VoiceStateEvent{GuildID: "guild-1", AfterChannelID: "vc-1", UserID: "user-2"})
	if len(env.dc.joins) != 2 {
		t.Fatalf("expected no join while connected, got %+v", env.dc.joins)
	}
}
