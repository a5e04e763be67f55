package webhook

import (
	"context"
	"time"
)

// DisconnectPayload is posted whenever a voice driver loses its connection.
type DisconnectPayload struct {
	GuildID        string    `json:"guild_id"`
	ChannelID      string    `json:"channel_id"`
	SessionID      string    `json:"session_id"`
	Kind           string    `json:"kind"`
	Reason         string    `json:"reason"`
	DisconnectedAt time.Time `json:"disconnected_at"`
}

type Sender interface {
	SendDisconnect(ctx context.Context, payload DisconnectPayload) error
}
