// Package tracks holds the playback bookkeeping shared between the mixer and
// listeners: a Track is handed to the mixer, its Handle stays with the caller.
package tracks

import (
	"sync"
	"time"

	"github.com/foxseedlab/koedriver/internal/audio"
	"github.com/google/uuid"
)

type PlayMode int

const (
	Play PlayMode = iota
	Pause
	Stop
	End
)

func (m PlayMode) String() string {
	switch m {
	case Play:
		return "play"
	case Pause:
		return "pause"
	case Stop:
		return "stop"
	case End:
		return "end"
	default:
		return "unknown"
	}
}

// Done reports whether the track can never produce audio again.
func (m PlayMode) Done() bool {
	return m == Stop || m == End
}

type State struct {
	Playing  PlayMode
	Volume   float32
	Position time.Duration
	PlayTime time.Duration
}

type Track struct {
	Source audio.Source
	handle *Handle
}

func New(src audio.Source) *Track {
	return &Track{
		Source: src,
		handle: &Handle{
			id:    uuid.New(),
			state: State{Playing: Play, Volume: 1},
		},
	}
}

// WithVolume sets the starting volume and returns t.
func (t *Track) WithVolume(v float32) *Track {
	t.handle.SetVolume(v)
	return t
}

// Paused makes the track start in the paused state and returns t.
func (t *Track) Paused() *Track {
	t.handle.Pause()
	return t
}

func (t *Track) Handle() *Handle { return t.handle }

func (t *Track) ID() uuid.UUID { return t.handle.id }

// Handle controls a track after it has been given to the mixer.
type Handle struct {
	id uuid.UUID

	mu    sync.RWMutex
	state State
}

func (h *Handle) ID() uuid.UUID { return h.id }

func (h *Handle) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

func (h *Handle) Play()  { h.setMode(Play) }
func (h *Handle) Pause() { h.setMode(Pause) }
func (h *Handle) Stop()  { h.setMode(Stop) }

func (h *Handle) SetVolume(v float32) {
	if v < 0 {
		v = 0
	}
	h.mu.Lock()
	h.state.Volume = v
	h.mu.Unlock()
}

func (h *Handle) setMode(m PlayMode) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.Playing.Done() {
		return
	}
	h.state.Playing = m
}

// Advance records one mixed frame. Only the mixer calls this.
func (h *Handle) Advance(d time.Duration) {
	h.mu.Lock()
	h.state.Position += d
	h.state.PlayTime += d
	h.mu.Unlock()
}

// MarkEnded moves the track to End. Only the mixer calls this.
func (h *Handle) MarkEnded() {
	h.mu.Lock()
	if h.state.Playing != Stop {
		h.state.Playing = End
	}
	h.mu.Unlock()
}
