package repository

import "time"

type ConnectionKind string

const (
	ConnectionKindConnect   ConnectionKind = "connect"
	ConnectionKindReconnect ConnectionKind = "reconnect"
)

// Connection is one voice session of the driver. A failed first attempt is
// stored with a nil ConnectedAt.
type Connection struct {
	ID               string
	GuildID          string
	ChannelID        string
	SessionID        string
	Endpoint         string
	SSRC             uint32
	Kind             ConnectionKind
	ConnectedAt      *time.Time
	DisconnectedAt   *time.Time
	DisconnectKind   string
	DisconnectReason string
	CreatedAt        time.Time
}

func (c *Connection) Open() bool {
	return c.ConnectedAt != nil && c.DisconnectedAt == nil
}
