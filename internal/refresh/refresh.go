// Package refresh decides when a panel needs re-resolution and coordinates
// the re-resolution itself. Change detection compares per-entity fingerprints
// captured after the last successful resolution; the Coordinator layers a
// generation counter and a cache-window throttle on top.
package refresh

import (
	"github.com/vk/chartgridgo/internal/resolver"
	"github.com/vk/chartgridgo/internal/statestore"
)

// Fingerprints maps entity id to its last observed "state|marker" string.
type Fingerprints map[string]string

// missingFingerprint marks an entity absent from the store. Distinct from
// any real fingerprint, so disappearance and reappearance both register as
// changes.
const missingFingerprint = "missing"

// Fingerprint renders one entity's change marker.
func Fingerprint(ent statestore.Entity) string {
	return ent.State + "|" + ent.LastUpdated
}

func currentFingerprint(store statestore.Store, id string) string {
	if ent, ok := store.Lookup(id); ok {
		return Fingerprint(ent)
	}
	return missingFingerprint
}

// ShouldUpdate reports whether any watched entity changed since last.
// No watched entities or no store means nothing can have changed.
func ShouldUpdate(store statestore.Store, watched resolver.Watched, last Fingerprints) bool {
	if store == nil || len(watched) == 0 {
		return false
	}
	for id := range watched {
		if last[id] != currentFingerprint(store, id) {
			return true
		}
	}
	return false
}

// Snapshot captures fingerprints for exactly the watched set. Callers take a
// snapshot only after a successful resolution, so a failed one is retried on
// the next notification instead of being masked.
func Snapshot(store statestore.Store, watched resolver.Watched) Fingerprints {
	fps := make(Fingerprints, len(watched))
	for id := range watched {
		fps[id] = currentFingerprint(store, id)
	}
	return fps
}
