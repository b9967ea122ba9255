package locator

import "sync"

// Registry maps a replaced element to its placeholder. An element is claimed
// before the page is touched so that concurrent duplicate commands cannot
// both insert a placeholder.
type Registry struct {
	mu      sync.Mutex
	entries map[ElementID]*registryEntry
}

type registryEntry struct {
	placeholder Placeholder
	done        bool
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[ElementID]*registryEntry)}
}

func (r *Registry) claim(id ElementID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; ok {
		return false
	}
	r.entries[id] = &registryEntry{}
	return true
}

func (r *Registry) complete(id ElementID, ph Placeholder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = &registryEntry{placeholder: ph, done: true}
}

func (r *Registry) release(id ElementID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Lookup returns the placeholder inserted for id, if the replacement finished.
func (r *Registry) Lookup(id ElementID) (Placeholder, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || !e.done {
		return Placeholder{}, false
	}
	return e.placeholder, true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.done {
			n++
		}
	}
	return n
}
