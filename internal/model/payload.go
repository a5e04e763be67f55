package model

// SpeakingState is the bitflag set a client announces alongside its SSRC.
type SpeakingState uint8

const (
	SpeakingMicrophone SpeakingState = 1 << iota
	SpeakingSoundshare
	SpeakingPriority
)

func (s SpeakingState) Microphone() bool { return s&SpeakingMicrophone != 0 }

// Speaking maps an SSRC to a user and reports its transmit state.
type Speaking struct {
	Delay    *uint32       `json:"delay,omitempty"`
	Speaking SpeakingState `json:"speaking"`
	SSRC     uint32        `json:"ssrc"`
	UserID   string        `json:"user_id,omitempty"`
}

type ClientDisconnect struct {
	UserID string `json:"user_id"`
}

type Heartbeat struct {
	Nonce int64 `json:"nonce"`
}

// ConnectionInfo is what the main gateway hands over for joining a voice
// server.
type ConnectionInfo struct {
	ChannelID string
	Endpoint  string
	GuildID   string
	SessionID string
	Token     string
	UserID    string
}

func (c ConnectionInfo) Complete() bool {
	return c.Endpoint != "" && c.GuildID != "" && c.SessionID != "" && c.Token != "" && c.UserID != ""
}
