package events

import (
	"log/slog"

	"github.com/google/uuid"
)

// GlobalEvents holds listeners that are not bound to a single track. It is
// owned by the event task.
type GlobalEvents struct {
	core  map[CoreEvent][]Handler
	track map[TrackEvent][]Handler
}

func NewGlobalEvents() *GlobalEvents {
	return &GlobalEvents{
		core:  make(map[CoreEvent][]Handler),
		track: make(map[TrackEvent][]Handler),
	}
}

func (g *GlobalEvents) Add(ev Event, h Handler) bool {
	if h == nil {
		return false
	}
	if ce, ok := ev.CoreEvent(); ok && ce.Valid() {
		g.core[ce] = append(g.core[ce], h)
		return true
	}
	if te, ok := ev.TrackEvent(); ok {
		g.track[te] = append(g.track[te], h)
		return true
	}
	return false
}

func (g *GlobalEvents) Len() int {
	n := 0
	for _, hs := range g.core {
		n += len(hs)
	}
	for _, hs := range g.track {
		n += len(hs)
	}
	return n
}

// FireCore converts c once and runs every listener registered for its kind.
// It returns the number of listeners that ran.
func (g *GlobalEvents) FireCore(c CoreContext) int {
	ce := CoreEventOf(c)
	hs := g.core[ce]
	if len(hs) == 0 {
		return 0
	}
	ec := ToUserContext(c)
	g.core[ce] = runHandlers(hs, ec, ce.String())
	return len(hs)
}

// FireTrack runs the global listeners for te with the given track context.
func (g *GlobalEvents) FireTrack(te TrackEvent, tc TrackContext) int {
	hs := g.track[te]
	if len(hs) == 0 {
		return 0
	}
	g.track[te] = runHandlers(hs, tc, te.String())
	return len(hs)
}

type trackListener struct {
	event   TrackEvent
	handler Handler
}

// trackEvents holds listeners attached to individual tracks.
type trackEvents map[uuid.UUID][]trackListener

func (t trackEvents) add(id uuid.UUID, te TrackEvent, h Handler) {
	t[id] = append(t[id], trackListener{event: te, handler: h})
}

func (t trackEvents) fire(id uuid.UUID, te TrackEvent, tc TrackContext) int {
	ls := t[id]
	ran := 0
	kept := ls[:0]
	for _, l := range ls {
		if l.event != te {
			kept = append(kept, l)
			continue
		}
		ran++
		if call(l.handler, tc, te.String()) == Keep {
			kept = append(kept, l)
		}
	}
	if len(kept) == 0 {
		delete(t, id)
	} else {
		t[id] = kept
	}
	return ran
}

func runHandlers(hs []Handler, ec EventContext, name string) []Handler {
	kept := hs[:0]
	for _, h := range hs {
		if call(h, ec, name) == Keep {
			kept = append(kept, h)
		}
	}
	for i := len(kept); i < len(hs); i++ {
		hs[i] = nil
	}
	return kept
}

// call runs one listener. A panicking listener is removed.
func call(h Handler, ec EventContext, name string) (action Action) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event listener panicked; removing it", "event", name, "panic", r)
			action = Cancel
		}
	}()
	return h.Act(ec)
}
