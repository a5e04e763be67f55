package events

import (
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

// SpeakingUpdateData reports that an SSRC started or stopped sending audio.
type SpeakingUpdateData struct {
	SSRC     uint32
	Speaking bool
}

// VoiceData is a received voice packet. Packet and Audio alias the receive
// task's buffers and must not be retained past the listener call.
type VoiceData struct {
	SSRC uint32
	// Audio is the decoded PCM for this packet, nil unless decoding is
	// enabled.
	Audio         []int16
	Packet        []byte
	PayloadOffset int
	PayloadEndPad int
}

// Payload returns the opus bytes inside Packet.
func (d VoiceData) Payload() []byte {
	return payloadOf(d.Packet, d.PayloadOffset, d.PayloadEndPad)
}

func (d VoiceData) Header() (rtp.Header, error) {
	var h rtp.Header
	_, err := h.Unmarshal(d.Packet)
	return h, err
}

// RtcpData is a received control packet. Packet aliases the receive task's
// buffer.
type RtcpData struct {
	Packet        []byte
	PayloadOffset int
	PayloadEndPad int
}

func (d RtcpData) Payload() []byte {
	return payloadOf(d.Packet, d.PayloadOffset, d.PayloadEndPad)
}

// Packets decodes the compound control packet.
func (d RtcpData) Packets() ([]rtcp.Packet, error) {
	return rtcp.Unmarshal(d.Packet)
}

func payloadOf(packet []byte, offset, endPad int) []byte {
	end := len(packet) - endPad
	if offset < 0 || offset > end || end > len(packet) {
		return nil
	}
	return packet[offset:end]
}

type ConnectData struct {
	ChannelID string
	GuildID   string
	SessionID string
	Server    string
	SSRC      uint32
}

// DisconnectKind says which phase of the connection failed.
type DisconnectKind int

const (
	DisconnectConnect DisconnectKind = iota
	DisconnectReconnect
	DisconnectRuntime
)

func (k DisconnectKind) String() string {
	switch k {
	case DisconnectConnect:
		return "connect"
	case DisconnectReconnect:
		return "reconnect"
	case DisconnectRuntime:
		return "runtime"
	default:
		return "unknown"
	}
}

// DisconnectReason is why the connection ended. ReasonNone means the caller
// asked to leave.
type DisconnectReason int

const (
	ReasonNone DisconnectReason = iota
	ReasonAttemptDiscarded
	ReasonInternal
	ReasonIO
	ReasonProtocolViolation
	ReasonTimedOut
	ReasonWsClosed
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonAttemptDiscarded:
		return "attempt_discarded"
	case ReasonInternal:
		return "internal"
	case ReasonIO:
		return "io"
	case ReasonProtocolViolation:
		return "protocol_violation"
	case ReasonTimedOut:
		return "timed_out"
	case ReasonWsClosed:
		return "ws_closed"
	default:
		return "unknown"
	}
}

type DisconnectData struct {
	Kind      DisconnectKind
	Reason    DisconnectReason
	ChannelID string
	GuildID   string
	SessionID string
}
