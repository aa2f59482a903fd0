package plate

import (
	"sync"
	"time"
)

// DefaultCooldown is the minimum interval between two accepted sightings of
// the same plate.
const DefaultCooldown = 500 * time.Millisecond

// pruneFactor bounds how long an idle plate entry is retained. Entries older
// than pruneFactor×cooldown are removed on every Check call.
const pruneFactor = 10

// Window suppresses duplicate acceptance of the same plate text within a
// cooldown interval. It is safe for concurrent use; the lock is never held
// across calls into other components.
type Window struct {
	mu       sync.Mutex
	cooldown time.Duration
	lastSeen map[string]time.Time
}

// NewWindow creates a deduplication window with the given cooldown.
// Non-positive cooldowns fall back to DefaultCooldown.
func NewWindow(cooldown time.Duration) *Window {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Window{
		cooldown: cooldown,
		lastSeen: make(map[string]time.Time),
	}
}

// Check reports whether a sighting of plate at time now should be accepted.
// A plate is accepted when it has no prior entry or its last accepted
// sighting is at least one cooldown in the past; acceptance records now as
// the new last-seen time. Suppressed sightings do not refresh the entry.
func (w *Window) Check(plate string, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if last, ok := w.lastSeen[plate]; ok && now.Sub(last) < w.cooldown {
		return false
	}
	w.lastSeen[plate] = now

	maxAge := w.cooldown * pruneFactor
	for p, last := range w.lastSeen {
		if now.Sub(last) > maxAge {
			delete(w.lastSeen, p)
		}
	}
	return true
}

// Cooldown returns the configured cooldown interval.
func (w *Window) Cooldown() time.Duration {
	return w.cooldown
}

// Len returns the number of tracked plates.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.lastSeen)
}
