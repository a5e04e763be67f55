package model

import "encoding/json"

// Voice gateway opcodes.
const (
	OpIdentify           = 0
	OpSelectProtocol     = 1
	OpReady              = 2
	OpHeartbeat          = 3
	OpSessionDescription = 4
	OpSpeaking           = 5
	OpHeartbeatAck       = 6
	OpResume             = 7
	OpHello              = 8
	OpResumed            = 9
	OpClientDisconnect   = 13
)

type GatewayRequest struct {
	Op   int `json:"op"`
	Data any `json:"d"`
}

type GatewayEvent struct {
	Op   int             `json:"op"`
	Data json.RawMessage `json:"d"`
}

type Identify struct {
	ServerID  string `json:"server_id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
}

type Hello struct {
	HeartbeatInterval float64 `json:"heartbeat_interval"`
}

type Ready struct {
	SSRC  uint32   `json:"ssrc"`
	IP    string   `json:"ip"`
	Port  int      `json:"port"`
	Modes []string `json:"modes"`
}

type SelectProtocol struct {
	Protocol string             `json:"protocol"`
	Data     SelectProtocolData `json:"data"`
}

type SelectProtocolData struct {
	Address string `json:"address"`
	Port    uint16 `json:"port"`
	Mode    string `json:"mode"`
}

type SessionDescription struct {
	SecretKey [32]byte `json:"secret_key"`
	Mode      string   `json:"mode"`
}
