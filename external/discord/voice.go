package discord

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/foxseedlab/koedriver/internal/model"
)

// voiceCollector merges the two gateway dispatches that describe a voice
// session (server update and the bot's own state update) into a
// model.ConnectionInfo per guild.
type voiceCollector struct {
	mu       sync.Mutex
	userID   string
	infos    map[string]*model.ConnectionInfo
	waiters  map[string]chan model.ConnectionInfo
	handlers []func(model.ConnectionInfo)
}

func newVoiceCollector() *voiceCollector {
	return &voiceCollector{
		infos:   make(map[string]*model.ConnectionInfo),
		waiters: make(map[string]chan model.ConnectionInfo),
	}
}

func (v *voiceCollector) setUserID(userID string) {
	v.mu.Lock()
	v.userID = userID
	v.mu.Unlock()
}

func (v *voiceCollector) onServerUpdate(vsu *discordgo.VoiceServerUpdate) {
	if vsu == nil || vsu.GuildID == "" {
		return
	}
	v.mu.Lock()
	info := v.entry(vsu.GuildID)
	changed := info.Endpoint != "" && (info.Endpoint != vsu.Endpoint || info.Token != vsu.Token)
	info.Endpoint = vsu.Endpoint
	info.Token = vsu.Token
	snapshot, notify, handlers := v.settle(vsu.GuildID)
	v.mu.Unlock()

	if notify {
		return
	}
	if changed && snapshot.Complete() {
		slog.Info("voice server moved", "guild_id", snapshot.GuildID, "endpoint", snapshot.Endpoint)
		for _, h := range handlers {
			h(snapshot)
		}
	}
}

func (v *voiceCollector) onStateUpdate(vs *discordgo.VoiceStateUpdate) {
	if vs == nil || vs.VoiceState == nil || vs.GuildID == "" {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.userID == "" || vs.UserID != v.userID {
		return
	}
	if vs.ChannelID == "" {
		delete(v.infos, vs.GuildID)
		return
	}
	info := v.entry(vs.GuildID)
	info.ChannelID = vs.ChannelID
	info.SessionID = vs.SessionID
	v.settle(vs.GuildID)
}

func (v *voiceCollector) entry(guildID string) *model.ConnectionInfo {
	info, ok := v.infos[guildID]
	if !ok {
		info = &model.ConnectionInfo{GuildID: guildID, UserID: v.userID}
		v.infos[guildID] = info
	}
	return info
}

// settle hands a complete info to a pending join. Callers hold mu.
func (v *voiceCollector) settle(guildID string) (model.ConnectionInfo, bool, []func(model.ConnectionInfo)) {
	info := *v.infos[guildID]
	w, ok := v.waiters[guildID]
	if ok && info.Complete() {
		delete(v.waiters, guildID)
		w <- info
		return info, true, nil
	}
	return info, false, slices.Clone(v.handlers)
}

func (v *voiceCollector) expect(guildID string) <-chan model.ConnectionInfo {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.infos, guildID)
	w := make(chan model.ConnectionInfo, 1)
	v.waiters[guildID] = w
	return w
}

func (v *voiceCollector) cancel(guildID string) {
	v.mu.Lock()
	delete(v.waiters, guildID)
	v.mu.Unlock()
}

func (v *voiceCollector) forget(guildID string) {
	v.mu.Lock()
	delete(v.infos, guildID)
	delete(v.waiters, guildID)
	v.mu.Unlock()
}

func (v *voiceCollector) addHandler(h func(model.ConnectionInfo)) {
	v.mu.Lock()
	v.handlers = append(v.handlers, h)
	v.mu.Unlock()
}

func (v *voiceCollector) wait(ctx context.Context, guildID string, w <-chan model.ConnectionInfo) (model.ConnectionInfo, error) {
	select {
	case info := <-w:
		return info, nil
	case <-ctx.Done():
		v.cancel(guildID)
		return model.ConnectionInfo{}, fmt.Errorf("waiting for voice server of guild %s: %w", guildID, ctx.Err())
	}
}
