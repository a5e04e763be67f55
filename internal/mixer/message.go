package mixer

import (
	"github.com/foxseedlab/koedriver/internal/audio"
	"github.com/foxseedlab/koedriver/internal/chanx"
	"github.com/foxseedlab/koedriver/internal/config"
	"github.com/foxseedlab/koedriver/internal/events"
	"github.com/foxseedlab/koedriver/internal/message"
	"github.com/foxseedlab/koedriver/internal/tracks"
)

// Message is a command for the mixer task. Commands are applied in the order
// they were sent.
type Message interface {
	kind() string
}

type AddTrack struct{ Track *tracks.Track }

// SetTrack stops every current track and plays Track alone. A nil Track only
// clears.
type SetTrack struct{ Track *tracks.Track }

type SetBitrate struct{ Bitrate audio.Bitrate }

type SetConfig struct{ Config config.Driver }

type SetMute struct{ Mute bool }

type SetDisabled struct{ Disabled bool }

// SetConn installs Conn, tearing down any different connection first.
type SetConn struct {
	Conn       *Connection
	Generation uint32
}

// Ws attaches the control channel sink. A nil Sender detaches it.
type Ws struct {
	Sender *chanx.Sender[message.WsMessage]
}

type DropConn struct{}

type ReplaceInterconnect struct{ Interconnect Interconnect }

type RebuildEncoder struct{}

type Poison struct{}

func (AddTrack) kind() string            { return "add_track" }
func (SetTrack) kind() string            { return "set_track" }
func (SetBitrate) kind() string          { return "set_bitrate" }
func (SetConfig) kind() string           { return "set_config" }
func (SetMute) kind() string             { return "set_mute" }
func (SetDisabled) kind() string         { return "set_disabled" }
func (SetConn) kind() string             { return "set_conn" }
func (Ws) kind() string                  { return "ws" }
func (DropConn) kind() string            { return "drop_conn" }
func (ReplaceInterconnect) kind() string { return "replace_interconnect" }
func (RebuildEncoder) kind() string      { return "rebuild_encoder" }
func (Poison) kind() string              { return "poison" }

// Interconnect is the set of channels the mixer uses to reach other tasks
// that are not tied to a connection.
type Interconnect struct {
	Events chanx.Sender[events.Message]
}
