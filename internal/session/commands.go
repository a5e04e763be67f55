package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/foxseedlab/koedriver/internal/discord"
)

const (
	commandJoin  = "koe-join"
	commandLeave = "koe-leave"
	commandMute  = "koe-mute"
)

func SlashCommandDefinitions() []discord.SlashCommandDefinition {
	return []discord.SlashCommandDefinition{
		{Name: commandJoin, Description: slashCommandJoinDescription},
		{Name: commandLeave, Description: slashCommandLeaveDescription},
		{Name: commandMute, Description: slashCommandMuteDescription},
	}
}

func (m *Manager) HandleSlashCommand(event discord.SlashCommandEvent) {
	respond := func(content string) {
		if event.RespondEphemeral == nil {
			return
		}
		if err := event.RespondEphemeral(content); err != nil {
			slog.Error("failed to respond to slash command", "error", err, "command", event.CommandName)
		}
	}
	if event.GuildID != m.cfg.DiscordGuildID {
		respond(messageEphemeralWrongGuild)
		return
	}

	switch event.CommandName {
	case commandJoin:
		channelID, err := m.discord.GetUserVoiceChannelID(event.GuildID, event.UserID)
		if err != nil {
			slog.Error("failed to look up user voice channel", "error", err, "user_id", event.UserID)
			respond(messageEphemeralVoiceLookupFailed)
			return
		}
		if channelID == "" {
			respond(messageEphemeralJoinVCFirst)
			return
		}
		err = m.Start(context.Background(), event.GuildID, channelID)
		switch {
		case errors.Is(err, ErrAlreadyRunning):
			respond(messageEphemeralAlreadyRunning)
		case err != nil:
			respond(messageEphemeralStartFailed)
		default:
			respond(joinEphemeralTitle(channelID))
		}
	case commandLeave:
		gd, ok := m.driverFor(event.GuildID)
		if !ok {
			respond(messageEphemeralNotRunning)
			return
		}
		if err := m.Stop(event.GuildID, StopReasonManualSlash); err != nil {
			if errors.Is(err, ErrNotRunning) {
				respond(messageEphemeralNotRunning)
				return
			}
			slog.Error("failed to stop voice driver", "error", err)
			respond(messageEphemeralStopFailed)
			return
		}
		respond(leaveEphemeralTitle(gd.channelID))
	case commandMute:
		gd, ok := m.driverFor(event.GuildID)
		if !ok {
			respond(messageEphemeralNotRunning)
			return
		}
		muted := !gd.driver.IsMuted()
		gd.driver.Mute(muted)
		if muted {
			respond(messageMutedEphemeral)
		} else {
			respond(messageUnmutedEphemeral)
		}
	default:
		respond(messageEphemeralUnknownCommand)
	}
}
