package events

import "sync"

// Recorder is a bounded in-memory Emitter retaining the most recent events for
// RPC queries and tests. Oldest entries are dropped once the cap is reached.
type Recorder struct {
	mu     sync.RWMutex
	events []Event
	cap    int
}

// NewRecorder constructs a recorder bounded to cap events. A non-positive cap
// defaults to 256.
func NewRecorder(cap int) *Recorder {
	if cap <= 0 {
		cap = 256
	}
	return &Recorder{cap: cap}
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	if len(r.events) > r.cap {
		r.events = append([]Event(nil), r.events[len(r.events)-r.cap:]...)
	}
}

// Recent returns up to limit of the most recent events, newest last.
func (r *Recorder) Recent(limit int) []Event {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 || limit > len(r.events) {
		limit = len(r.events)
	}
	out := make([]Event, limit)
	copy(out, r.events[len(r.events)-limit:])
	return out
}
