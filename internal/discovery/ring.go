package discovery

import "sync"

// messageRing remembers the last n message ids. Once full, the oldest id
// is forgotten when a new one arrives.
type messageRing struct {
	mu    sync.Mutex
	ids   []string
	index map[string]struct{}
	next  int
}

func newMessageRing(n int) *messageRing {
	return &messageRing{
		ids:   make([]string, n),
		index: make(map[string]struct{}, n),
	}
}

// Seen records id and reports whether it was already present. Empty ids
// are never considered duplicates.
func (r *messageRing) Seen(id string) bool {
	if id == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.index[id]; ok {
		return true
	}

	if old := r.ids[r.next]; old != "" {
		delete(r.index, old)
	}
	r.ids[r.next] = id
	r.index[id] = struct{}{}
	r.next = (r.next + 1) % len(r.ids)
	return false
}
