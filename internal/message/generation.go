package message

import "sync"

// GenerationFilter remembers the newest connection generation seen and
// rejects anything older.
type GenerationFilter struct {
	mu      sync.Mutex
	current uint32
	seen    bool
}

// Accept records gen if it is not stale and reports whether data tagged with
// it may be used.
func (f *GenerationFilter) Accept(gen uint32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen && gen < f.current {
		return false
	}
	f.current = gen
	f.seen = true
	return true
}

func (f *GenerationFilter) Current() (uint32, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, f.seen
}
