package discord

import (
	"context"

	"github.com/foxseedlab/koedriver/internal/model"
)

type SlashCommandDefinition struct {
	Name        string
	Description string
}

type SlashCommandEvent struct {
	GuildID          string
	ChannelID        string
	CommandName      string
	UserID           string
	RespondEphemeral func(content string) error
}

type VoiceStateEvent struct {
	GuildID         string
	UserID          string
	UserIsBot       bool
	BeforeChannelID string
	AfterChannelID  string
}

type VoiceParticipant struct {
	UserID string
	IsBot  bool
}

// Client is the main gateway session. It only signals voice channel
// membership; the voice connection itself belongs to the driver.
type Client interface {
	Connect(ctx context.Context) error
	Close() error
	// JoinVoiceChannel asks the gateway to move the bot into channelID and
	// waits for the voice server and session details.
	JoinVoiceChannel(ctx context.Context, guildID, channelID string) (model.ConnectionInfo, error)
	LeaveVoiceChannel(guildID string) error
	// RegisterVoiceServerUpdateHandler is called when the voice server of a
	// joined guild changes and the driver must reconnect.
	RegisterVoiceServerUpdateHandler(handler func(model.ConnectionInfo))
	RegisterVoiceStateUpdateHandler(handler func(VoiceStateEvent))
	RegisterSlashCommandHandler(handler func(SlashCommandEvent))
	UpsertGuildSlashCommands(guildID string, defs []SlashCommandDefinition) error
	SendChannelMessage(channelID, content string) error
	GetUserVoiceChannelID(guildID, userID string) (string, error)
	ListVoiceChannelParticipants(guildID, channelID string) ([]VoiceParticipant, error)
	GetBotUserID() (string, error)
}
