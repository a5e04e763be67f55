package events

import "github.com/foxseedlab/koedriver/internal/model"

type InternalSpeakingUpdate struct {
	SSRC     uint32
	Speaking bool
}

// InternalVoicePacket is owned by the receive task until it is fired.
type InternalVoicePacket struct {
	SSRC          uint32
	Audio         []int16
	Packet        []byte
	PayloadOffset int
	PayloadEndPad int
}

type InternalRtcpPacket struct {
	Packet        []byte
	PayloadOffset int
	PayloadEndPad int
}

type InternalConnect struct {
	Info model.ConnectionInfo
	SSRC uint32
}

type InternalDisconnect struct {
	Kind   DisconnectKind
	Reason DisconnectReason
	Info   model.ConnectionInfo
}

func (u InternalSpeakingUpdate) data() SpeakingUpdateData {
	return SpeakingUpdateData{SSRC: u.SSRC, Speaking: u.Speaking}
}

func (p *InternalVoicePacket) data() VoiceData {
	return VoiceData{
		SSRC:          p.SSRC,
		Audio:         p.Audio,
		Packet:        p.Packet,
		PayloadOffset: p.PayloadOffset,
		PayloadEndPad: p.PayloadEndPad,
	}
}

func (p *InternalRtcpPacket) data() RtcpData {
	return RtcpData{
		Packet:        p.Packet,
		PayloadOffset: p.PayloadOffset,
		PayloadEndPad: p.PayloadEndPad,
	}
}

func (c InternalConnect) data() ConnectData {
	return ConnectData{
		ChannelID: c.Info.ChannelID,
		GuildID:   c.Info.GuildID,
		SessionID: c.Info.SessionID,
		Server:    c.Info.Endpoint,
		SSRC:      c.SSRC,
	}
}

func (d InternalDisconnect) data() DisconnectData {
	return DisconnectData{
		Kind:      d.Kind,
		Reason:    d.Reason,
		ChannelID: d.Info.ChannelID,
		GuildID:   d.Info.GuildID,
		SessionID: d.Info.SessionID,
	}
}
