package events

import (
	"context"
	"log/slog"

	"github.com/foxseedlab/koedriver/internal/chanx"
	"github.com/foxseedlab/koedriver/internal/metrics"
	"github.com/foxseedlab/koedriver/internal/tracks"
	"github.com/google/uuid"
)

// Message is a command for the event task.
type Message interface {
	isEventMessage()
}

type AddGlobalEvent struct {
	Event   Event
	Handler Handler
}

type AddTrackEvent struct {
	ID      uuid.UUID
	Event   TrackEvent
	Handler Handler
}

type AddTrack struct{ Handle *tracks.Handle }

type RemoveTrack struct{ ID uuid.UUID }

type FireCoreEvent struct{ Ctx CoreContext }

// FireTrackEvent fires ev for every listed track that the task knows about.
type FireTrackEvent struct {
	Event TrackEvent
	IDs   []uuid.UUID
}

type Poison struct{}

func (AddGlobalEvent) isEventMessage() {}
func (AddTrackEvent) isEventMessage()  {}
func (AddTrack) isEventMessage()       {}
func (RemoveTrack) isEventMessage()    {}
func (FireCoreEvent) isEventMessage()  {}
func (FireTrackEvent) isEventMessage() {}
func (Poison) isEventMessage()         {}

type runner struct {
	global  *GlobalEvents
	local   trackEvents
	handles map[uuid.UUID]*tracks.Handle
	metrics *metrics.Metrics
}

// Run is the event task. It owns every listener and exits on Poison, when ctx
// ends, or when rx is closed.
func Run(ctx context.Context, rx chanx.Receiver[Message], m *metrics.Metrics) {
	defer rx.Close()
	r := &runner{
		global:  NewGlobalEvents(),
		local:   make(trackEvents),
		handles: make(map[uuid.UUID]*tracks.Handle),
		metrics: m,
	}
	slog.Debug("event task started")
	for {
		msg, err := rx.Recv(ctx)
		if err != nil {
			slog.Debug("event task stopped", "reason", err)
			return
		}
		if !r.handle(msg) {
			slog.Debug("event task poisoned")
			return
		}
	}
}

func (r *runner) handle(msg Message) bool {
	switch msg := msg.(type) {
	case AddGlobalEvent:
		if !r.global.Add(msg.Event, msg.Handler) {
			slog.Warn("ignoring listener for unknown event", "event", msg.Event.String())
		}
	case AddTrackEvent:
		if msg.Handler != nil {
			r.local.add(msg.ID, msg.Event, msg.Handler)
		}
	case AddTrack:
		if msg.Handle != nil {
			r.handles[msg.Handle.ID()] = msg.Handle
		}
	case RemoveTrack:
		delete(r.handles, msg.ID)
		delete(r.local, msg.ID)
	case FireCoreEvent:
		if n := r.global.FireCore(msg.Ctx); n > 0 {
			r.metrics.EventDispatched(CoreEventOf(msg.Ctx).String())
		}
	case FireTrackEvent:
		r.fireTrack(msg)
	case Poison:
		return false
	}
	return true
}

func (r *runner) fireTrack(msg FireTrackEvent) {
	all := make([]TrackStateHandle, 0, len(msg.IDs))
	ran := 0
	for _, id := range msg.IDs {
		h, ok := r.handles[id]
		if !ok {
			continue
		}
		sh := TrackStateHandle{State: h.State(), Handle: h}
		all = append(all, sh)
		ran += r.local.fire(id, msg.Event, TrackContext{Tracks: []TrackStateHandle{sh}})
	}
	if len(all) > 0 {
		ran += r.global.FireTrack(msg.Event, TrackContext{Tracks: all})
	}
	if ran > 0 {
		r.metrics.EventDispatched(msg.Event.String())
	}
}
