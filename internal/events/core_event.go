package events

// CoreEvent is the kind of a globally matchable driver event. It carries no
// payload and exists only to route fired events to registered listeners.
type CoreEvent int

const (
	SpeakingStateUpdate CoreEvent = iota + 1
	SpeakingUpdate
	VoicePacket
	RtcpPacket
	ClientDisconnect
	DriverConnect
	DriverReconnect
	DriverDisconnect
)

var coreEventNames = map[CoreEvent]string{
	SpeakingStateUpdate: "speaking_state_update",
	SpeakingUpdate:      "speaking_update",
	VoicePacket:         "voice_packet",
	RtcpPacket:          "rtcp_packet",
	ClientDisconnect:    "client_disconnect",
	DriverConnect:       "driver_connect",
	DriverReconnect:     "driver_reconnect",
	DriverDisconnect:    "driver_disconnect",
}

func (e CoreEvent) String() string {
	if name, ok := coreEventNames[e]; ok {
		return name
	}
	return "unknown"
}

func (e CoreEvent) Valid() bool {
	_, ok := coreEventNames[e]
	return ok
}

// CoreEvents lists every CoreEvent in declaration order.
func CoreEvents() []CoreEvent {
	return []CoreEvent{
		SpeakingStateUpdate,
		SpeakingUpdate,
		VoicePacket,
		RtcpPacket,
		ClientDisconnect,
		DriverConnect,
		DriverReconnect,
		DriverDisconnect,
	}
}
