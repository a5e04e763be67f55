package events

import (
	"github.com/foxseedlab/koedriver/internal/chanx"
	"github.com/foxseedlab/koedriver/internal/crypto"
	"github.com/foxseedlab/koedriver/internal/message"
	"github.com/foxseedlab/koedriver/internal/model"
	"github.com/foxseedlab/koedriver/internal/tracks"
)

// CoreContext is an event as produced inside the driver. It may hold buffers
// and handles the producer still owns and is only ever seen by the event task.
type CoreContext interface {
	isCoreContext()
}

type CoreSpeakingStateUpdate struct{ Data model.Speaking }

type CoreSpeakingUpdate struct{ Data InternalSpeakingUpdate }

type CoreVoicePacket struct{ Data *InternalVoicePacket }

type CoreRtcpPacket struct{ Data *InternalRtcpPacket }

type CoreClientDisconnect struct{ Data model.ClientDisconnect }

type CoreDriverConnect struct {
	Data   InternalConnect
	UDPTx  chanx.Sender[message.UDPTxMessage]
	WS     chanx.Sender[message.WsMessage]
	Cipher *crypto.Cipher
}

type CoreDriverReconnect struct {
	Data   InternalConnect
	UDPTx  chanx.Sender[message.UDPTxMessage]
	WS     chanx.Sender[message.WsMessage]
	Cipher *crypto.Cipher
}

type CoreDriverDisconnect struct{ Data InternalDisconnect }

func (CoreSpeakingStateUpdate) isCoreContext() {}
func (CoreSpeakingUpdate) isCoreContext()      {}
func (CoreVoicePacket) isCoreContext()         {}
func (CoreRtcpPacket) isCoreContext()          {}
func (CoreClientDisconnect) isCoreContext()    {}
func (CoreDriverConnect) isCoreContext()       {}
func (CoreDriverReconnect) isCoreContext()     {}
func (CoreDriverDisconnect) isCoreContext()    {}

// EventContext is what listeners receive. Slices alias driver buffers for the
// duration of the call; everything else is a copy.
type EventContext interface {
	isEventContext()
}

// TrackStateHandle pairs a track's state at fire time with its handle.
type TrackStateHandle struct {
	State  tracks.State
	Handle *tracks.Handle
}

// TrackContext is delivered for track events. It is empty when a global track
// listener fires with no associated track.
type TrackContext struct{ Tracks []TrackStateHandle }

type SpeakingStateUpdateContext struct{ Data model.Speaking }

type SpeakingUpdateContext struct{ Data SpeakingUpdateData }

type VoicePacketContext struct{ Data VoiceData }

type RtcpPacketContext struct{ Data RtcpData }

type ClientDisconnectContext struct{ Data model.ClientDisconnect }

type DriverConnectContext struct {
	Data   ConnectData
	UDPTx  chanx.Sender[message.UDPTxMessage]
	WS     chanx.Sender[message.WsMessage]
	Cipher CipherWrapper
}

type DriverReconnectContext struct {
	Data   ConnectData
	UDPTx  chanx.Sender[message.UDPTxMessage]
	WS     chanx.Sender[message.WsMessage]
	Cipher CipherWrapper
}

type DriverDisconnectContext struct{ Data DisconnectData }

func (TrackContext) isEventContext()               {}
func (SpeakingStateUpdateContext) isEventContext() {}
func (SpeakingUpdateContext) isEventContext()      {}
func (VoicePacketContext) isEventContext()         {}
func (RtcpPacketContext) isEventContext()          {}
func (ClientDisconnectContext) isEventContext()    {}
func (DriverConnectContext) isEventContext()       {}
func (DriverReconnectContext) isEventContext()     {}
func (DriverDisconnectContext) isEventContext()    {}

// CipherWrapper is a listener's own copy of the session cipher. Using it never
// touches the nonce state of the live connection.
type CipherWrapper struct {
	cipher crypto.Cipher
	valid  bool
}

func wrapCipher(c *crypto.Cipher) CipherWrapper {
	if c == nil {
		return CipherWrapper{}
	}
	return CipherWrapper{cipher: c.Clone(), valid: true}
}

// Valid reports whether a cipher was present when the event fired.
func (w CipherWrapper) Valid() bool { return w.valid }

func (w CipherWrapper) Open(mode crypto.Mode, packet []byte, headerLen int) ([]byte, error) {
	return w.cipher.Open(mode, packet, headerLen)
}

func (w CipherWrapper) Seal(state *crypto.State, header, payload []byte) []byte {
	return w.cipher.Seal(state, header, payload)
}

// Equal reports whether w was cloned from a cipher holding the same key as c.
func (w CipherWrapper) Equal(c *crypto.Cipher) bool {
	return w.valid && w.cipher.Equal(c)
}

func (w CipherWrapper) String() string {
	return "events.CipherWrapper{redacted}"
}

// ToUserContext converts an internal event into the view handed to listeners.
// It returns nil for an unknown context.
func ToUserContext(c CoreContext) EventContext {
	switch c := c.(type) {
	case CoreSpeakingStateUpdate:
		return SpeakingStateUpdateContext{Data: copySpeaking(c.Data)}
	case CoreSpeakingUpdate:
		return SpeakingUpdateContext{Data: c.Data.data()}
	case CoreVoicePacket:
		if c.Data == nil {
			return VoicePacketContext{}
		}
		return VoicePacketContext{Data: c.Data.data()}
	case CoreRtcpPacket:
		if c.Data == nil {
			return RtcpPacketContext{}
		}
		return RtcpPacketContext{Data: c.Data.data()}
	case CoreClientDisconnect:
		return ClientDisconnectContext{Data: c.Data}
	case CoreDriverConnect:
		return DriverConnectContext{
			Data:   c.Data.data(),
			UDPTx:  c.UDPTx.Clone(),
			WS:     c.WS.Clone(),
			Cipher: wrapCipher(c.Cipher),
		}
	case CoreDriverReconnect:
		return DriverReconnectContext{
			Data:   c.Data.data(),
			UDPTx:  c.UDPTx.Clone(),
			WS:     c.WS.Clone(),
			Cipher: wrapCipher(c.Cipher),
		}
	case CoreDriverDisconnect:
		return DriverDisconnectContext{Data: c.Data.data()}
	default:
		return nil
	}
}

func copySpeaking(s model.Speaking) model.Speaking {
	if s.Delay != nil {
		d := *s.Delay
		s.Delay = &d
	}
	return s
}

// ToCoreEvent classifies ec for global listener matching. Track contexts have
// no CoreEvent.
func ToCoreEvent(ec EventContext) (CoreEvent, bool) {
	switch ec.(type) {
	case SpeakingStateUpdateContext:
		return SpeakingStateUpdate, true
	case SpeakingUpdateContext:
		return SpeakingUpdate, true
	case VoicePacketContext:
		return VoicePacket, true
	case RtcpPacketContext:
		return RtcpPacket, true
	case ClientDisconnectContext:
		return ClientDisconnect, true
	case DriverConnectContext:
		return DriverConnect, true
	case DriverReconnectContext:
		return DriverReconnect, true
	case DriverDisconnectContext:
		return DriverDisconnect, true
	default:
		return 0, false
	}
}

// CoreEventOf classifies an internal event without converting it.
func CoreEventOf(c CoreContext) CoreEvent {
	switch c.(type) {
	case CoreSpeakingStateUpdate:
		return SpeakingStateUpdate
	case CoreSpeakingUpdate:
		return SpeakingUpdate
	case CoreVoicePacket:
		return VoicePacket
	case CoreRtcpPacket:
		return RtcpPacket
	case CoreClientDisconnect:
		return ClientDisconnect
	case CoreDriverConnect:
		return DriverConnect
	case CoreDriverReconnect:
		return DriverReconnect
	case CoreDriverDisconnect:
		return DriverDisconnect
	default:
		return 0
	}
}
