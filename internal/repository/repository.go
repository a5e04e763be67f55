package repository

import (
	"context"
	"time"
)

type RecordConnectInput struct {
	GuildID     string
	ChannelID   string
	SessionID   string
	Endpoint    string
	SSRC        uint32
	Kind        ConnectionKind
	ConnectedAt time.Time
}

type RecordDisconnectInput struct {
	GuildID        string
	ChannelID      string
	SessionID      string
	Kind           string
	Reason         string
	DisconnectedAt time.Time
}

type Repository interface {
	// RecordConnect closes any open connection of the guild and opens a new one.
	RecordConnect(ctx context.Context, input RecordConnectInput) (*Connection, error)
	// RecordDisconnect closes the open connection of the guild, or stores a
	// failed attempt when none is open.
	RecordDisconnect(ctx context.Context, input RecordDisconnectInput) error
	ListConnections(ctx context.Context, guildID string, limit int) ([]Connection, error)
}
