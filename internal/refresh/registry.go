package refresh

import (
	"context"
	"sort"
	"sync"
)

// Registry holds the live coordinator for every panel, keyed by panel name.
// The watcher swaps entries wholesale when a source file changes; the HTTP
// layer and the feed read them.
type Registry struct {
	mu     sync.RWMutex
	panels map[string]*Coordinator
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{panels: make(map[string]*Coordinator)}
}

// Set registers a coordinator under its panel name, replacing any previous
// holder of that name.
func (r *Registry) Set(c *Coordinator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.panels[c.Panel().Name] = c
}

// Get returns the coordinator for a panel name, reporting presence.
func (r *Registry) Get(name string) (*Coordinator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.panels[name]
	return c, ok
}

// All returns every registered coordinator, sorted by panel name.
func (r *Registry) All() []*Coordinator {
	r.mu.RLock()
	out := make([]*Coordinator, 0, len(r.panels))
	for _, c := range r.panels {
		out = append(out, c)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Panel().Name < out[j].Panel().Name
	})
	return out
}

// Len returns the number of registered panels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.panels)
}

// ReplaceSource swaps every panel declared by the given source file for the
// provided set. Panels from other sources are untouched. It returns the
// names that were dropped.
func (r *Registry) ReplaceSource(source string, coords []*Coordinator) []string {
	next := make(map[string]struct{}, len(coords))
	for _, c := range coords {
		next[c.Panel().Name] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for name, c := range r.panels {
		if c.Panel().Source != source {
			continue
		}
		if _, keep := next[name]; !keep {
			delete(r.panels, name)
			removed = append(removed, name)
		}
	}
	for _, c := range coords {
		r.panels[c.Panel().Name] = c
	}

	sort.Strings(removed)
	return removed
}

// Notify fans an entity change out to every coordinator. Each runs on its
// own goroutine; the generation counter inside the coordinator keeps
// concurrent runs ordered.
func (r *Registry) Notify(ctx context.Context, entityID string) {
	for _, c := range r.All() {
		go c.OnNotify(ctx, entityID)
	}
}
