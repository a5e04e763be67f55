// Package events routes driver and track events to user listeners.
package events

import "fmt"

// TrackEvent is a playback transition of a single track.
type TrackEvent int

const (
	TrackPlay TrackEvent = iota + 1
	TrackPause
	TrackEnd
)

func (e TrackEvent) String() string {
	switch e {
	case TrackPlay:
		return "track_play"
	case TrackPause:
		return "track_pause"
	case TrackEnd:
		return "track_end"
	default:
		return "unknown"
	}
}

// Event is a listener subscription key: either a CoreEvent or a TrackEvent.
type Event struct {
	core  CoreEvent
	track TrackEvent
}

func Core(e CoreEvent) Event { return Event{core: e} }

func Track(e TrackEvent) Event { return Event{track: e} }

func (e Event) CoreEvent() (CoreEvent, bool) { return e.core, e.core != 0 }

func (e Event) TrackEvent() (TrackEvent, bool) { return e.track, e.track != 0 }

func (e Event) String() string {
	if e.core != 0 {
		return e.core.String()
	}
	if e.track != 0 {
		return e.track.String()
	}
	return fmt.Sprintf("event(%d,%d)", e.core, e.track)
}

// Action tells the dispatcher what to do with a listener after it ran.
type Action int

const (
	Keep Action = iota
	Cancel
)

type Handler interface {
	Act(ec EventContext) Action
}

type HandlerFunc func(ec EventContext) Action

func (f HandlerFunc) Act(ec EventContext) Action { return f(ec) }
